package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
)

// LogEvent builds the log record for a mutation committed at sequence seq.
func LogEvent(eventType string, conversationID, actorID uuid.UUID, seq int64, at time.Time, payload any) (*domain.Event, error) {
	evt, err := domain.NewEvent(eventType, conversationID, actorID, payload)
	if err != nil {
		return nil, err
	}
	evt.Sequence = seq
	evt.CreatedAt = at.UTC()
	return evt, nil
}

// ClampLimit bounds a page size to [1, max], falling back to def.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
