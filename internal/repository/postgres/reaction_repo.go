package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/relay/internal/domain"
)

type ReactionRepo struct {
	pool *pgxpool.Pool
}

func NewReactionRepo(pool *pgxpool.Pool) *ReactionRepo {
	return &ReactionRepo{pool: pool}
}

func (r *ReactionRepo) Add(ctx context.Context, conversationID uuid.UUID, reaction *domain.Reaction) (*domain.Event, error) {
	var evt *domain.Event
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO reactions (message_id, user_id, emoji, created_at)
			SELECT $1, $2, $3, $4
			WHERE EXISTS (SELECT 1 FROM messages WHERE id = $1 AND NOT deleted)
			ON CONFLICT (message_id, user_id, emoji) DO NOTHING`,
			reaction.MessageID, reaction.UserID, reaction.Emoji, reaction.CreatedAt,
		)
		if err != nil || tag.RowsAffected() == 0 {
			return err
		}

		seq, err := nextEventSeq(ctx, tx, conversationID, reaction.CreatedAt)
		if err != nil {
			return err
		}
		evt, err = appendEvent(ctx, tx, domain.EventReactionAdded, conversationID, reaction.UserID, seq, reaction.CreatedAt, domain.ReactionPayload{
			MessageID: reaction.MessageID,
			UserID:    reaction.UserID,
			Emoji:     reaction.Emoji,
		})
		return err
	})
	return evt, err
}

func (r *ReactionRepo) Remove(ctx context.Context, conversationID uuid.UUID, reaction *domain.Reaction) (*domain.Event, error) {
	var evt *domain.Event
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			DELETE FROM reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
			reaction.MessageID, reaction.UserID, reaction.Emoji,
		)
		if err != nil || tag.RowsAffected() == 0 {
			return err
		}

		now := time.Now().UTC()
		seq, err := nextEventSeq(ctx, tx, conversationID, now)
		if err != nil {
			return err
		}
		evt, err = appendEvent(ctx, tx, domain.EventReactionRemoved, conversationID, reaction.UserID, seq, now, domain.ReactionPayload{
			MessageID: reaction.MessageID,
			UserID:    reaction.UserID,
			Emoji:     reaction.Emoji,
		})
		return err
	})
	return evt, err
}

func (r *ReactionRepo) ListByMessage(ctx context.Context, messageID uuid.UUID) ([]domain.Reaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT message_id, user_id, emoji, created_at
		FROM reactions
		WHERE message_id = $1
		ORDER BY created_at, user_id`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reactions := []domain.Reaction{}
	for rows.Next() {
		var rc domain.Reaction
		if err := rows.Scan(&rc.MessageID, &rc.UserID, &rc.Emoji, &rc.CreatedAt); err != nil {
			return nil, err
		}
		reactions = append(reactions, rc)
	}
	return reactions, rows.Err()
}
