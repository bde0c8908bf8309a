package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Durable event types. They carry a per-conversation sequence.
const (
	EventMessageNew          = "message.new"
	EventMessageEdited       = "message.edited"
	EventMessageDeleted      = "message.deleted"
	EventReactionAdded       = "reaction.added"
	EventReactionRemoved     = "reaction.removed"
	EventReceiptRead         = "receipt.read"
	EventMemberJoined        = "member.joined"
	EventMemberLeft          = "member.left"
	EventConversationUpdated = "conversation.updated"
)

// Ephemeral event types. Sequence is always zero.
const (
	EventTypingStarted   = "typing.started"
	EventTypingStopped   = "typing.stopped"
	EventPresenceChanged = "presence.changed"
	EventUnreadUpdated   = "unread.updated"
)

// Event is both a log record and the push envelope.
type Event struct {
	ID             uuid.UUID       `json:"event_id"`
	Type           string          `json:"type"`
	ConversationID uuid.UUID       `json:"conversation_id,omitzero"`
	Sequence       int64           `json:"sequence,omitempty"`
	ActorID        uuid.UUID       `json:"actor_id,omitzero"`
	TargetUserID   uuid.UUID       `json:"target_user_id,omitzero"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"ts"`
}

// IsDurable reports whether the event is part of a conversation's log.
func (e *Event) IsDurable() bool {
	return e.Sequence > 0
}

// NewEvent builds an event with a fresh id and JSON payload.
func NewEvent(eventType string, conversationID, actorID uuid.UUID, payload any) (*Event, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return &Event{
		ID:             uuid.New(),
		Type:           eventType,
		ConversationID: conversationID,
		ActorID:        actorID,
		Payload:        data,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

type MessageDeletedPayload struct {
	ID        uuid.UUID `json:"id"`
	Seq       int64     `json:"seq"`
	DeletedBy uuid.UUID `json:"deleted_by"`
}

type ReactionPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
}

type ReceiptPayload struct {
	UserID      uuid.UUID `json:"user_id"`
	UpToID      uuid.UUID `json:"up_to_message_id"`
	LastReadSeq int64     `json:"last_read_seq"`
}

type MemberPayload struct {
	UserID   uuid.UUID  `json:"user_id"`
	Role     string     `json:"role,omitempty"`
	ActorID  uuid.UUID  `json:"actor_id"`
	Promoted *uuid.UUID `json:"promoted_user_id,omitempty"`
}

type TypingPayload struct {
	UserID    uuid.UUID  `json:"user_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type UnreadPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UnreadCount    int64     `json:"unread_count"`
	LastMessageSeq int64     `json:"last_message_seq"`
}
