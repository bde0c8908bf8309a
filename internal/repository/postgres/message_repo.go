package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
)

const messageColumns = `
	id, conversation_id, seq, sender_id, client_msg_id, content, media_refs, reply_to_id,
	edited, edited_at, deleted, deleted_by, deleted_at, created_at`

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.Seq, &m.SenderID, &m.ClientMsgID, &m.Content, &m.MediaRefs, &m.ReplyToID,
		&m.Edited, &m.EditedAt, &m.Deleted, &m.DeletedBy, &m.DeletedAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(m.MediaRefs) == 0 {
		m.MediaRefs = nil
	}
	return &m, nil
}

func (r *MessageRepo) Append(ctx context.Context, msg *domain.Message) (*domain.Event, error) {
	var evt *domain.Event
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		// Row lock on the conversation serializes senders; sequences stay gapless.
		var msgSeq, evtSeq int64
		err := tx.QueryRow(ctx, `
			UPDATE conversations
			SET last_message_seq = last_message_seq + 1,
				last_event_seq = last_event_seq + 1,
				last_message_at = $2,
				updated_at = $2
			WHERE id = $1
			RETURNING last_message_seq, last_event_seq`, msg.ConversationID, msg.CreatedAt,
		).Scan(&msgSeq, &evtSeq)
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		if err != nil {
			return err
		}

		mediaRefs := msg.MediaRefs
		if mediaRefs == nil {
			mediaRefs = []string{}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, seq, sender_id, client_msg_id, content, media_refs, reply_to_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			msg.ID, msg.ConversationID, msgSeq, msg.SenderID, msg.ClientMsgID, msg.Content, mediaRefs, msg.ReplyToID, msg.CreatedAt,
		)
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		if err != nil {
			return err
		}

		msg.Seq = msgSeq
		evt, err = appendEvent(ctx, tx, domain.EventMessageNew, msg.ConversationID, msg.SenderID, evtSeq, msg.CreatedAt, msg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return evt, nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	msg, err := scanMessage(r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return msg, err
}

func (r *MessageRepo) GetByClientID(ctx context.Context, conversationID, senderID uuid.UUID, clientMsgID string) (*domain.Message, error) {
	msg, err := scanMessage(r.pool.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1 AND sender_id = $2 AND client_msg_id = $3`,
		conversationID, senderID, clientMsgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return msg, err
}

func (r *MessageRepo) List(ctx context.Context, conversationID uuid.UUID, q repository.PageQuery) ([]domain.Message, error) {
	var rows pgx.Rows
	var err error

	switch {
	case q.After != nil:
		rows, err = r.pool.Query(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = $1 AND seq > $2
			ORDER BY seq ASC
			LIMIT $3`, conversationID, *q.After, q.Limit)
	case q.Before != nil:
		rows, err = r.pool.Query(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = $1 AND seq < $2
			ORDER BY seq DESC
			LIMIT $3`, conversationID, *q.Before, q.Limit)
	default:
		rows, err = r.pool.Query(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = $1
			ORDER BY seq DESC
			LIMIT $2`, conversationID, q.Limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

func (r *MessageRepo) Edit(ctx context.Context, id, actorID uuid.UUID, content string, at time.Time) (*domain.Message, *domain.Event, error) {
	var (
		msg *domain.Message
		evt *domain.Event
	)
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		msg, err = scanMessage(tx.QueryRow(ctx, `
			UPDATE messages SET content = $2, edited = TRUE, edited_at = $3
			WHERE id = $1 AND NOT deleted
			RETURNING `+messageColumns, id, content, at.UTC()))
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		if err != nil {
			return err
		}

		seq, err := nextEventSeq(ctx, tx, msg.ConversationID, at.UTC())
		if err != nil {
			return err
		}
		evt, err = appendEvent(ctx, tx, domain.EventMessageEdited, msg.ConversationID, actorID, seq, at, msg)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return msg, evt, nil
}

func (r *MessageRepo) SoftDelete(ctx context.Context, id, actorID uuid.UUID, at time.Time) (*domain.Message, *domain.Event, error) {
	var (
		msg *domain.Message
		evt *domain.Event
	)
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		msg, err = scanMessage(tx.QueryRow(ctx, `
			UPDATE messages
			SET content = NULL, media_refs = '{}', deleted = TRUE, deleted_by = $2, deleted_at = $3
			WHERE id = $1 AND NOT deleted
			RETURNING `+messageColumns, id, actorID, at.UTC()))
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		if err != nil {
			return err
		}

		seq, err := nextEventSeq(ctx, tx, msg.ConversationID, at.UTC())
		if err != nil {
			return err
		}
		evt, err = appendEvent(ctx, tx, domain.EventMessageDeleted, msg.ConversationID, actorID, seq, at, domain.MessageDeletedPayload{
			ID:        msg.ID,
			Seq:       msg.Seq,
			DeletedBy: actorID,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return msg, evt, nil
}
