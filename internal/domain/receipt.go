package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReadReceipt struct {
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

// ReadCursor is the highest sequence a user has read in a conversation.
type ReadCursor struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	LastReadSeq    int64     `json:"last_read_seq"`
	UpdatedAt      time.Time `json:"updated_at"`
}
