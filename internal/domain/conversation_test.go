package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectKeyIsOrderIndependent(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	assert.Equal(t, DirectKey(a, b), DirectKey(b, a))
	assert.NotEqual(t, DirectKey(a, b), DirectKey(a, uuid.New()))
}

func TestMessageTombstoneClearsContent(t *testing.T) {
	content := "secret"
	m := Message{ID: uuid.New(), Seq: 7, Content: &content, MediaRefs: []string{"img"}}
	by := uuid.New()

	m.Tombstone(by, time.Now())

	assert.True(t, m.Deleted)
	assert.Nil(t, m.Content)
	assert.Nil(t, m.MediaRefs)
	assert.Equal(t, int64(7), m.Seq)
	require.NotNil(t, m.DeletedBy)
	assert.Equal(t, by, *m.DeletedBy)
}

func TestEphemeralEventOmitsSequence(t *testing.T) {
	evt, err := NewEvent(EventPresenceChanged, uuid.Nil, uuid.New(), Presence{Online: true})
	require.NoError(t, err)
	assert.False(t, evt.IsDurable())

	data, err := json.Marshal(evt)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "sequence")
	assert.NotContains(t, raw, "conversation_id")
	assert.Equal(t, EventPresenceChanged, raw["type"])
}
