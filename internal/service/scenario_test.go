package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/relay/internal/apperr"
)

func TestScenario_DirectChatUnreadCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b := env.user(t, "A"), env.user(t, "B")

	c1, created, err := env.convs.GetOrCreateDirect(ctx, a, b)
	require.NoError(t, err)
	require.True(t, created)

	m1, err := env.messages.Send(ctx, a, c1.ID, SendMessageInput{Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), m1.Seq)

	page, err := env.messages.List(ctx, b, c1.ID, ListMessagesQuery{Limit: 20})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, m1.ID, page.Messages[0].ID)

	before, err := env.receipts.UnreadCount(ctx, b, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), before.UnreadCount)

	_, err = env.receipts.MarkRead(ctx, b, c1.ID, m1.ID)
	require.NoError(t, err)

	aState, err := env.receipts.UnreadCount(ctx, a, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), aState.UnreadCount)

	bState, err := env.receipts.UnreadCount(ctx, b, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bState.UnreadCount)
}

func TestScenario_GroupCapacity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, x, y := env.user(t, "O"), env.user(t, "X"), env.user(t, "Y")

	g, err := env.convs.CreateGroup(ctx, o, CreateGroupInput{Name: "G", MaxMembers: intPtr(2)})
	require.NoError(t, err)

	_, err = env.convs.JoinGroup(ctx, x, g.ID)
	require.NoError(t, err)

	full, err := env.convs.Get(ctx, o, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, full.MemberCount)

	_, err = env.convs.JoinGroup(ctx, y, g.ID)
	assert.Equal(t, apperr.KindCapacity, apperr.KindOf(err))
}
