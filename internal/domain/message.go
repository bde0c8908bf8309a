package domain

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	Seq            int64      `json:"seq"`
	SenderID       uuid.UUID  `json:"sender_id"`
	ClientMsgID    *string    `json:"client_msg_id,omitempty"`
	Content        *string    `json:"content,omitempty"`
	MediaRefs      []string   `json:"media_refs,omitempty"`
	ReplyToID      *uuid.UUID `json:"reply_to_id,omitempty"`
	Edited         bool       `json:"edited"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	Deleted        bool       `json:"deleted"`
	DeletedBy      *uuid.UUID `json:"deleted_by,omitempty"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Tombstone clears everything a soft-deleted message must not expose.
func (m *Message) Tombstone(by uuid.UUID, at time.Time) {
	m.Content = nil
	m.MediaRefs = nil
	m.Deleted = true
	m.DeletedBy = &by
	m.DeletedAt = &at
}

// MessagePage is one page of a conversation's log.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor *int64    `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}
