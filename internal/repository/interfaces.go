package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
)

var (
	// ErrConflict reports a unique constraint violation.
	ErrConflict = errors.New("repository: conflict")
	// ErrCapacity reports a conditional update rejected by a member limit.
	ErrCapacity = errors.New("repository: capacity reached")
	// ErrNotFound reports that a conditional mutation matched no row.
	ErrNotFound = errors.New("repository: not found")
)

// PageQuery selects a window of a conversation's message log by sequence.
// Before pages backwards (newest first), After pages forwards (oldest first).
// With neither set the newest messages are returned.
type PageQuery struct {
	Before *int64
	After  *int64
	Limit  int
}

func (q PageQuery) Forward() bool { return q.After != nil }

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type ConversationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	GetByDirectKey(ctx context.Context, key string) (*domain.Conversation, error)
	// CreateDirect returns ErrConflict when the pair already has a conversation.
	CreateDirect(ctx context.Context, conv *domain.Conversation, members []domain.Member) error
	CreateGroup(ctx context.Context, conv *domain.Conversation, owner *domain.Member) error
	// UpdateGroup returns ErrCapacity when max members drops below the member count.
	UpdateGroup(ctx context.Context, conv *domain.Conversation, actorID uuid.UUID) (*domain.Event, error)
	// AddMember returns ErrCapacity when the group is full and ErrConflict when
	// the user is already a member.
	AddMember(ctx context.Context, member *domain.Member, actorID uuid.UUID) (*domain.Event, error)
	// RemoveMember returns ErrNotFound when the user is not a member. When the
	// last admin leaves, the earliest remaining member is promoted.
	RemoveMember(ctx context.Context, conversationID, userID, actorID uuid.UUID) (*domain.Event, error)
	GetMember(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Member, error)
	ListMembers(ctx context.Context, conversationID uuid.UUID) ([]domain.Member, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.ConversationSummary, error)
	ListEvents(ctx context.Context, conversationID uuid.UUID, after int64, limit int) ([]domain.Event, error)
}

type MessageRepository interface {
	// Append assigns the next sequence to msg and records message.new.
	// Returns ErrConflict when the sender already used msg.ClientMsgID.
	Append(ctx context.Context, msg *domain.Message) (*domain.Event, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	GetByClientID(ctx context.Context, conversationID, senderID uuid.UUID, clientMsgID string) (*domain.Message, error)
	List(ctx context.Context, conversationID uuid.UUID, q PageQuery) ([]domain.Message, error)
	// Edit and SoftDelete return ErrNotFound when the message is missing or deleted.
	Edit(ctx context.Context, id, actorID uuid.UUID, content string, at time.Time) (*domain.Message, *domain.Event, error)
	SoftDelete(ctx context.Context, id, actorID uuid.UUID, at time.Time) (*domain.Message, *domain.Event, error)
}

type ReactionRepository interface {
	// Add and Remove return a nil event when nothing changed.
	Add(ctx context.Context, conversationID uuid.UUID, reaction *domain.Reaction) (*domain.Event, error)
	Remove(ctx context.Context, conversationID uuid.UUID, reaction *domain.Reaction) (*domain.Event, error)
	ListByMessage(ctx context.Context, messageID uuid.UUID) ([]domain.Reaction, error)
}

type ReceiptRepository interface {
	// MarkRead advances the read cursor to upTo.Seq and records receipts for
	// every message in the advanced range not sent by the user. Returns a nil
	// event when the cursor did not move.
	MarkRead(ctx context.Context, userID uuid.UUID, upTo *domain.Message, at time.Time) (*domain.Event, error)
	GetCursor(ctx context.Context, conversationID, userID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, conversationID, userID uuid.UUID) (int64, error)
	ListByMessage(ctx context.Context, messageID uuid.UUID) ([]domain.ReadReceipt, error)
}

// PresenceStore keeps lossy, TTL-bound online state.
type PresenceStore interface {
	// Connect counts a new connection and reports whether the user came online.
	Connect(ctx context.Context, userID uuid.UUID, ttl time.Duration) (bool, error)
	// Disconnect drops one connection and reports whether the user went offline.
	Disconnect(ctx context.Context, userID uuid.UUID, at time.Time) (bool, error)
	// Refresh extends the online TTL. It reports whether the user was online.
	Refresh(ctx context.Context, userID uuid.UUID, ttl time.Duration) (bool, error)
	SetOffline(ctx context.Context, userID uuid.UUID, at time.Time) (bool, error)
	Get(ctx context.Context, userID uuid.UUID) (*domain.Presence, error)
}

// TypingStore keeps indicators that expire on their own.
type TypingStore interface {
	Set(ctx context.Context, indicator *domain.TypingIndicator) error
	Remove(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	ListActive(ctx context.Context, conversationID uuid.UUID, now time.Time) ([]domain.TypingIndicator, error)
}
