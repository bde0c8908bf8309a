package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/relay/internal/domain"
)

type ReceiptRepo struct {
	pool *pgxpool.Pool
}

func NewReceiptRepo(pool *pgxpool.Pool) *ReceiptRepo {
	return &ReceiptRepo{pool: pool}
}

func (r *ReceiptRepo) MarkRead(ctx context.Context, userID uuid.UUID, upTo *domain.Message, at time.Time) (*domain.Event, error) {
	var evt *domain.Event
	readAt := at.UTC()
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO conversation_reads (conversation_id, user_id, last_read_seq, updated_at)
			VALUES ($1, $2, 0, $3)
			ON CONFLICT (conversation_id, user_id) DO NOTHING`,
			upTo.ConversationID, userID, readAt,
		); err != nil {
			return err
		}

		var old int64
		if err := tx.QueryRow(ctx, `
			SELECT last_read_seq FROM conversation_reads
			WHERE conversation_id = $1 AND user_id = $2
			FOR UPDATE`, upTo.ConversationID, userID,
		).Scan(&old); err != nil {
			return err
		}
		if upTo.Seq <= old {
			return nil
		}

		if _, err := tx.Exec(ctx, `
			UPDATE conversation_reads SET last_read_seq = $3, updated_at = $4
			WHERE conversation_id = $1 AND user_id = $2`,
			upTo.ConversationID, userID, upTo.Seq, readAt,
		); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO read_receipts (message_id, user_id, read_at)
			SELECT id, $2, $5 FROM messages
			WHERE conversation_id = $1 AND seq > $3 AND seq <= $4 AND sender_id <> $2
			ON CONFLICT (message_id, user_id) DO NOTHING`,
			upTo.ConversationID, userID, old, upTo.Seq, readAt,
		); err != nil {
			return err
		}

		seq, err := nextEventSeq(ctx, tx, upTo.ConversationID, readAt)
		if err != nil {
			return err
		}
		evt, err = appendEvent(ctx, tx, domain.EventReceiptRead, upTo.ConversationID, userID, seq, readAt, domain.ReceiptPayload{
			UserID:      userID,
			UpToID:      upTo.ID,
			LastReadSeq: upTo.Seq,
		})
		return err
	})
	return evt, err
}

func (r *ReceiptRepo) GetCursor(ctx context.Context, conversationID, userID uuid.UUID) (int64, error) {
	var seq int64
	err := r.pool.QueryRow(ctx, `
		SELECT last_read_seq FROM conversation_reads
		WHERE conversation_id = $1 AND user_id = $2`, conversationID, userID,
	).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

func (r *ReceiptRepo) CountUnread(ctx context.Context, conversationID, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM messages m
		WHERE m.conversation_id = $1
			AND m.sender_id <> $2
			AND m.seq > COALESCE((
				SELECT last_read_seq FROM conversation_reads
				WHERE conversation_id = $1 AND user_id = $2), 0)`,
		conversationID, userID,
	).Scan(&n)
	return n, err
}

func (r *ReceiptRepo) ListByMessage(ctx context.Context, messageID uuid.UUID) ([]domain.ReadReceipt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT message_id, user_id, read_at
		FROM read_receipts
		WHERE message_id = $1
		ORDER BY read_at, user_id`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipts := []domain.ReadReceipt{}
	for rows.Next() {
		var rr domain.ReadReceipt
		if err := rows.Scan(&rr.MessageID, &rr.UserID, &rr.ReadAt); err != nil {
			return nil, err
		}
		receipts = append(receipts, rr)
	}
	return receipts, rows.Err()
}
