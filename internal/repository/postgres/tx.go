package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// nextEventSeq locks the conversation row and allocates its next event sequence.
func nextEventSeq(ctx context.Context, tx pgx.Tx, conversationID uuid.UUID, at time.Time) (int64, error) {
	var seq int64
	err := tx.QueryRow(ctx, `
		UPDATE conversations
		SET last_event_seq = last_event_seq + 1, updated_at = $2
		WHERE id = $1
		RETURNING last_event_seq`, conversationID, at,
	).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, repository.ErrNotFound
	}
	return seq, err
}

// appendEvent records a log event at seq in the same transaction as its mutation.
func appendEvent(ctx context.Context, tx pgx.Tx, eventType string, conversationID, actorID uuid.UUID, seq int64, at time.Time, payload any) (*domain.Event, error) {
	evt, err := repository.LogEvent(eventType, conversationID, actorID, seq, at, payload)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO conversation_events (id, conversation_id, seq, type, actor_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		evt.ID, evt.ConversationID, evt.Sequence, evt.Type, nullUUID(evt.ActorID), []byte(evt.Payload), evt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return evt, nil
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
