package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/service"
)

// fakeLog is an in-memory event log per conversation.
type fakeLog struct {
	mu     sync.Mutex
	events map[uuid.UUID][]domain.Event
	denied map[uuid.UUID]bool
	// afterHead runs once HeadSequence has read the head.
	afterHead func()
}

func newFakeLog() *fakeLog {
	return &fakeLog{events: make(map[uuid.UUID][]domain.Event), denied: make(map[uuid.UUID]bool)}
}

func (l *fakeLog) append(t *testing.T, convID uuid.UUID, eventType string, payload any) *domain.Event {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()

	evt, err := domain.NewEvent(eventType, convID, uuid.New(), payload)
	require.NoError(t, err)
	evt.Sequence = int64(len(l.events[convID]) + 1)
	l.events[convID] = append(l.events[convID], *evt)
	return evt
}

func (l *fakeLog) ReplayEvents(_ context.Context, userID, convID uuid.UUID, after int64, limit int) ([]domain.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.denied[userID] {
		return nil, service.ErrNotMember
	}

	var out []domain.Event
	for _, e := range l.events[convID] {
		if e.Sequence > after && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *fakeLog) HeadSequence(_ context.Context, userID, convID uuid.UUID) (int64, error) {
	l.mu.Lock()
	if l.denied[userID] {
		l.mu.Unlock()
		return 0, service.ErrNotMember
	}
	head := int64(len(l.events[convID]))
	hook := l.afterHead
	l.mu.Unlock()

	if hook != nil {
		hook()
	}
	return head, nil
}

func newTestHub(t *testing.T, log *fakeLog) *Hub {
	t.Helper()
	hub := NewHub(log, nil, nil, Config{SendBuffer: 64, GapTimeout: 40 * time.Millisecond, ReplayBatch: 2})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func connect(t *testing.T, hub *Hub, userID uuid.UUID) *Client {
	t.Helper()
	c := NewClient(hub, nil, userID)
	require.True(t, hub.Register(c))
	return c
}

func nextFrame(t *testing.T, c *Client) domain.Event {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "client was disconnected")
		var evt domain.Event
		require.NoError(t, json.Unmarshal(data, &evt))
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return domain.Event{}
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected frame: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func subscribe(t *testing.T, hub *Hub, c *Client, convID uuid.UUID, since *int64) {
	t.Helper()
	require.NoError(t, hub.Subscribe(context.Background(), c, convID, since))
	assert.Equal(t, TypeSubscribed, nextFrame(t, c).Type)
}

func TestHub_DeliversOutOfOrderEventsInSequence(t *testing.T) {
	log := newFakeLog()
	hub := newTestHub(t, log)
	convID := uuid.New()
	c := connect(t, hub, uuid.New())
	subscribe(t, hub, c, convID, nil)

	e1 := log.append(t, convID, domain.EventMessageNew, nil)
	e2 := log.append(t, convID, domain.EventMessageNew, nil)
	e3 := log.append(t, convID, domain.EventMessageNew, nil)

	ctx := context.Background()
	require.NoError(t, hub.Dispatch(ctx, e2))
	require.NoError(t, hub.Dispatch(ctx, e1))
	require.NoError(t, hub.Dispatch(ctx, e3))

	for want := int64(1); want <= 3; want++ {
		assert.Equal(t, want, nextFrame(t, c).Sequence)
	}
}

func TestHub_DropsDuplicates(t *testing.T) {
	log := newFakeLog()
	hub := newTestHub(t, log)
	convID := uuid.New()
	c := connect(t, hub, uuid.New())
	subscribe(t, hub, c, convID, nil)

	e1 := log.append(t, convID, domain.EventMessageNew, nil)
	ctx := context.Background()
	require.NoError(t, hub.Dispatch(ctx, e1))
	require.NoError(t, hub.Dispatch(ctx, e1))

	assert.Equal(t, e1.ID, nextFrame(t, c).ID)
	assertNoFrame(t, c)
}

func TestHub_BackfillsGapFromLog(t *testing.T) {
	log := newFakeLog()
	hub := newTestHub(t, log)
	convID := uuid.New()
	c := connect(t, hub, uuid.New())
	subscribe(t, hub, c, convID, nil)

	log.append(t, convID, domain.EventMessageNew, nil)
	log.append(t, convID, domain.EventReactionAdded, nil)
	log.append(t, convID, domain.EventMessageEdited, nil)
	e4 := log.append(t, convID, domain.EventMessageNew, nil)

	// Only the newest event reaches this node; 1-3 must come from the log.
	require.NoError(t, hub.Dispatch(context.Background(), e4))

	for want := int64(1); want <= 4; want++ {
		assert.Equal(t, want, nextFrame(t, c).Sequence)
	}
	assertNoFrame(t, c)
}

func TestHub_SubscribeSinceReplaysMissedEvents(t *testing.T) {
	log := newFakeLog()
	hub := newTestHub(t, log)
	convID := uuid.New()
	for i := 0; i < 5; i++ {
		log.append(t, convID, domain.EventMessageNew, nil)
	}

	c := connect(t, hub, uuid.New())
	since := int64(2)
	subscribe(t, hub, c, convID, &since)

	for want := int64(3); want <= 5; want++ {
		assert.Equal(t, want, nextFrame(t, c).Sequence)
	}

	e6 := log.append(t, convID, domain.EventMessageNew, nil)
	require.NoError(t, hub.Dispatch(context.Background(), e6))
	assert.Equal(t, int64(6), nextFrame(t, c).Sequence)
}

func TestHub_SubscribeCatchesEventCommittedDuringSubscribe(t *testing.T) {
	log := newFakeLog()
	hub := newTestHub(t, log)
	convID := uuid.New()
	c := connect(t, hub, uuid.New())

	// Committed and fanned out after the head was read but before the
	// subscription was registered.
	log.afterHead = func() {
		e1 := log.append(t, convID, domain.EventMessageNew, nil)
		require.NoError(t, hub.Dispatch(context.Background(), e1))
	}
	subscribe(t, hub, c, convID, nil)

	assert.Equal(t, int64(1), nextFrame(t, c).Sequence)
	assertNoFrame(t, c)
}

func TestHub_RecoversLostNewestEvent(t *testing.T) {
	log := newFakeLog()
	hub := NewHub(log, nil, nil, Config{SendBuffer: 64, GapTimeout: 40 * time.Millisecond, ReplayBatch: 2, TailInterval: 100 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	convID := uuid.New()
	c := connect(t, hub, uuid.New())
	subscribe(t, hub, c, convID, nil)

	e1 := log.append(t, convID, domain.EventMessageNew, nil)
	log.append(t, convID, domain.EventMessageNew, nil)

	// The second event never reaches this node and nothing follows it.
	require.NoError(t, hub.Dispatch(ctx, e1))

	assert.Equal(t, int64(1), nextFrame(t, c).Sequence)
	assert.Equal(t, int64(2), nextFrame(t, c).Sequence)
	assertNoFrame(t, c)
}

func TestHub_SubscribeRequiresMembership(t *testing.T) {
	log := newFakeLog()
	hub := newTestHub(t, log)
	outsider := uuid.New()
	log.denied[outsider] = true

	c := connect(t, hub, outsider)
	err := hub.Subscribe(context.Background(), c, uuid.New(), nil)
	assert.ErrorIs(t, err, service.ErrNotMember)
}

func TestHub_EphemeralEventsSkipActor(t *testing.T) {
	log := newFakeLog()
	hub := newTestHub(t, log)
	convID := uuid.New()
	alice, bob := uuid.New(), uuid.New()

	ca := connect(t, hub, alice)
	cb := connect(t, hub, bob)
	subscribe(t, hub, ca, convID, nil)
	subscribe(t, hub, cb, convID, nil)

	typing, err := domain.NewEvent(domain.EventTypingStarted, convID, alice, domain.TypingPayload{UserID: alice})
	require.NoError(t, err)
	require.NoError(t, hub.Dispatch(context.Background(), typing))

	assert.Equal(t, domain.EventTypingStarted, nextFrame(t, cb).Type)
	assertNoFrame(t, ca)

	presence, err := domain.NewEvent(domain.EventPresenceChanged, uuid.Nil, bob, domain.Presence{UserID: bob, Online: true})
	require.NoError(t, err)
	require.NoError(t, hub.Dispatch(context.Background(), presence))

	assert.Equal(t, domain.EventPresenceChanged, nextFrame(t, ca).Type)
	assertNoFrame(t, cb)
}

func TestHub_UnreadUpdateSkipsWatchingConnections(t *testing.T) {
	log := newFakeLog()
	hub := newTestHub(t, log)
	convID := uuid.New()
	bob := uuid.New()

	watching := connect(t, hub, bob)
	subscribe(t, hub, watching, convID, nil)
	elsewhere := connect(t, hub, bob)

	evt, err := domain.NewEvent(domain.EventUnreadUpdated, convID, uuid.Nil, domain.UnreadPayload{ConversationID: convID, UnreadCount: 1})
	require.NoError(t, err)
	evt.TargetUserID = bob
	require.NoError(t, hub.Dispatch(context.Background(), evt))

	assert.Equal(t, domain.EventUnreadUpdated, nextFrame(t, elsewhere).Type)
	assertNoFrame(t, watching)
}

func TestHub_MemberLeftEndsSubscription(t *testing.T) {
	log := newFakeLog()
	hub := newTestHub(t, log)
	convID := uuid.New()
	bob := uuid.New()

	c := connect(t, hub, bob)
	subscribe(t, hub, c, convID, nil)

	left := log.append(t, convID, domain.EventMemberLeft, domain.MemberPayload{UserID: bob, ActorID: bob})
	after := log.append(t, convID, domain.EventMessageNew, nil)
	ctx := context.Background()
	require.NoError(t, hub.Dispatch(ctx, left))
	require.NoError(t, hub.Dispatch(ctx, after))

	assert.Equal(t, domain.EventMemberLeft, nextFrame(t, c).Type)
	assertNoFrame(t, c)
}

func TestHub_DisconnectsSlowConsumer(t *testing.T) {
	log := newFakeLog()
	hub := NewHub(log, nil, nil, Config{SendBuffer: 2, GapTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	convID := uuid.New()
	c := connect(t, hub, uuid.New())
	require.NoError(t, hub.Subscribe(ctx, c, convID, nil))

	for i := 0; i < 3; i++ {
		require.NoError(t, hub.Dispatch(ctx, log.append(t, convID, domain.EventMessageNew, nil)))
	}

	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("slow consumer was not disconnected")
	}
}

func TestHub_DispatchAfterShutdown(t *testing.T) {
	hub := NewHub(newFakeLog(), nil, nil, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	evt, err := domain.NewEvent(domain.EventPresenceChanged, uuid.Nil, uuid.New(), nil)
	require.NoError(t, err)
	assert.Error(t, hub.Dispatch(context.Background(), evt))
	assert.False(t, hub.Register(NewClient(hub, nil, uuid.New())))
}
