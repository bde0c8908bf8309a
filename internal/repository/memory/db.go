// Package memory implements the repository contracts in process memory.
// All repositories built from one DB share a lock, so every mutation is atomic
// with the log event it appends.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
)

type pairKey struct {
	a, b uuid.UUID
}

type reactionKey struct {
	messageID uuid.UUID
	userID    uuid.UUID
	emoji     string
}

type clientKey struct {
	conversationID uuid.UUID
	senderID       uuid.UUID
	clientMsgID    string
}

type DB struct {
	mu sync.Mutex

	users     map[uuid.UUID]domain.User
	autoUsers bool

	convs      map[uuid.UUID]*domain.Conversation
	directKeys map[string]uuid.UUID
	members    map[uuid.UUID]map[uuid.UUID]*domain.Member

	messages  map[uuid.UUID]*domain.Message
	logs      map[uuid.UUID][]uuid.UUID
	clientIDs map[clientKey]uuid.UUID
	events    map[uuid.UUID][]domain.Event

	reactions     map[uuid.UUID][]domain.Reaction
	reactionIndex map[reactionKey]struct{}
	cursors       map[pairKey]int64
	receipts      map[uuid.UUID][]domain.ReadReceipt

	now func() time.Time
}

type Option func(*DB)

// WithAutoUsers makes every user id resolve to a placeholder user. Useful when
// the identity provider does not mirror accounts into relay.
func WithAutoUsers() Option {
	return func(db *DB) { db.autoUsers = true }
}

func NewDB(opts ...Option) *DB {
	db := &DB{
		users:         make(map[uuid.UUID]domain.User),
		convs:         make(map[uuid.UUID]*domain.Conversation),
		directKeys:    make(map[string]uuid.UUID),
		members:       make(map[uuid.UUID]map[uuid.UUID]*domain.Member),
		messages:      make(map[uuid.UUID]*domain.Message),
		logs:          make(map[uuid.UUID][]uuid.UUID),
		clientIDs:     make(map[clientKey]uuid.UUID),
		events:        make(map[uuid.UUID][]domain.Event),
		reactions:     make(map[uuid.UUID][]domain.Reaction),
		reactionIndex: make(map[reactionKey]struct{}),
		cursors:       make(map[pairKey]int64),
		receipts:      make(map[uuid.UUID][]domain.ReadReceipt),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// PutUser registers a user. Callers mirror accounts from the identity provider.
func (db *DB) PutUser(u domain.User) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[u.ID] = u
}

// appendEvent allocates the next event sequence of conv. Caller holds db.mu.
func (db *DB) appendEvent(conv *domain.Conversation, eventType string, actorID uuid.UUID, at time.Time, payload any) (*domain.Event, error) {
	evt, err := repository.LogEvent(eventType, conv.ID, actorID, conv.LastEventSeq+1, at, payload)
	if err != nil {
		return nil, err
	}
	conv.LastEventSeq++
	db.events[conv.ID] = append(db.events[conv.ID], *evt)
	return evt, nil
}

func copyConversation(c *domain.Conversation) *domain.Conversation {
	out := *c
	return &out
}

func copyMessage(m *domain.Message) *domain.Message {
	out := *m
	if m.MediaRefs != nil {
		out.MediaRefs = append([]string(nil), m.MediaRefs...)
	}
	return &out
}
