package domain

import (
	"time"

	"github.com/google/uuid"
)

type Reaction struct {
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// ReactionGroup aggregates the reactions of one emoji on a message.
type ReactionGroup struct {
	Emoji       string      `json:"emoji"`
	Count       int         `json:"count"`
	ReactedByMe bool        `json:"reacted_by_me"`
	Users       []uuid.UUID `json:"users"`
}
