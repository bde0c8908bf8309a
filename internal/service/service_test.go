package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/relay/internal/config"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository/memory"
)

const (
	defaultTypingTTL      = 5 * time.Second
	defaultTypingThrottle = 2 * time.Second
	defaultPresenceTTL    = 90 * time.Second
)

var testLimits = config.LimitsConfig{
	MaxContentLength: 4000,
	MaxMediaRefs:     10,
	DefaultPageSize:  50,
	MaxPageSize:      100,
	DefaultGroupSize: 256,
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (n *recordingNotifier) Publish(_ context.Context, evt *domain.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return nil
}

func (n *recordingNotifier) ofType(eventType string) []*domain.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*domain.Event
	for _, e := range n.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// stepClock advances one millisecond per reading so ordering by time is
// deterministic.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type testEnv struct {
	db        *memory.DB
	notifier  *recordingNotifier
	convs     *ConversationService
	messages  *MessageService
	reactions *ReactionService
	receipts  *ReceiptService
	typing    *TypingService
	presence  *PresenceService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := memory.NewDB()
	convRepo := memory.NewConversationRepo(db)
	msgRepo := memory.NewMessageRepo(db)
	receiptRepo := memory.NewReceiptRepo(db)
	n := &recordingNotifier{}

	env := &testEnv{
		db:        db,
		notifier:  n,
		convs:     NewConversationService(convRepo, memory.NewUserRepo(db), testLimits),
		messages:  NewMessageService(msgRepo, convRepo, testLimits),
		reactions: NewReactionService(memory.NewReactionRepo(db), msgRepo, convRepo),
		receipts:  NewReceiptService(receiptRepo, msgRepo, convRepo),
		typing:    NewTypingService(memory.NewTypingStore(), convRepo, defaultTypingTTL, defaultTypingThrottle),
		presence:  NewPresenceService(memory.NewPresenceStore(), defaultPresenceTTL),
	}
	t.Cleanup(env.typing.Close)

	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	env.convs.now = clock.Now
	env.messages.now = clock.Now
	env.reactions.now = clock.Now
	env.receipts.now = clock.Now

	unread := NewUnreadDispatcher(convRepo, receiptRepo, nil)
	unread.SetNotifier(n)
	env.messages.SetUnreadDispatcher(unread)
	env.receipts.SetUnreadDispatcher(unread)

	env.convs.SetNotifier(n)
	env.messages.SetNotifier(n)
	env.reactions.SetNotifier(n)
	env.receipts.SetNotifier(n)
	env.typing.SetNotifier(n)
	env.presence.SetNotifier(n)
	return env
}

func (e *testEnv) user(t *testing.T, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	e.db.PutUser(domain.User{ID: id, DisplayName: name})
	return id
}

func (e *testEnv) direct(t *testing.T, a, b uuid.UUID) *domain.Conversation {
	t.Helper()
	conv, _, err := e.convs.GetOrCreateDirect(context.Background(), a, b)
	require.NoError(t, err)
	return conv
}

func (e *testEnv) send(t *testing.T, sender, convID uuid.UUID, content string) *domain.Message {
	t.Helper()
	msg, err := e.messages.Send(context.Background(), sender, convID, SendMessageInput{Content: content})
	require.NoError(t, err)
	return msg
}
