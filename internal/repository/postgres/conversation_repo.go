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

const conversationColumns = `
	c.id, c.kind, c.direct_key, c.name, c.description, c.owner_id, c.icon_ref,
	c.is_public, c.max_members, c.member_count, c.last_message_seq, c.last_event_seq,
	c.last_message_at, c.created_at, c.updated_at`

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

func scanConversation(row pgx.Row, extra ...any) (*domain.Conversation, error) {
	var c domain.Conversation
	dest := []any{
		&c.ID, &c.Kind, &c.DirectKey, &c.Name, &c.Description, &c.OwnerID, &c.IconRef,
		&c.IsPublic, &c.MaxMembers, &c.MemberCount, &c.LastMessageSeq, &c.LastEventSeq,
		&c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	conv, err := scanConversation(r.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations c WHERE c.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return conv, err
}

func (r *ConversationRepo) GetByDirectKey(ctx context.Context, key string) (*domain.Conversation, error) {
	conv, err := scanConversation(r.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations c WHERE c.direct_key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return conv, err
}

func (r *ConversationRepo) CreateDirect(ctx context.Context, conv *domain.Conversation, members []domain.Member) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO conversations (id, kind, direct_key, is_public, max_members, member_count, created_at, updated_at)
			VALUES ($1, 'direct', $2, FALSE, $3, $4, $5, $5)
			ON CONFLICT (direct_key) DO NOTHING`,
			conv.ID, conv.DirectKey, conv.MaxMembers, len(members), conv.CreatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrConflict
		}
		if err := insertMembers(ctx, tx, members); err != nil {
			return err
		}
		conv.MemberCount = len(members)
		return nil
	})
}

func (r *ConversationRepo) CreateGroup(ctx context.Context, conv *domain.Conversation, owner *domain.Member) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO conversations (id, kind, name, description, owner_id, icon_ref, is_public, max_members, member_count, created_at, updated_at)
			VALUES ($1, 'group', $2, $3, $4, $5, $6, $7, 1, $8, $8)`,
			conv.ID, conv.Name, conv.Description, conv.OwnerID, conv.IconRef, conv.IsPublic, conv.MaxMembers, conv.CreatedAt,
		)
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		if err != nil {
			return err
		}
		if err := insertMembers(ctx, tx, []domain.Member{*owner}); err != nil {
			return err
		}
		conv.MemberCount = 1
		return nil
	})
}

func insertMembers(ctx context.Context, tx pgx.Tx, members []domain.Member) error {
	batch := &pgx.Batch{}
	for _, m := range members {
		batch.Queue(`
			INSERT INTO conversation_members (conversation_id, user_id, role, joined_at)
			VALUES ($1, $2, $3, $4)`, m.ConversationID, m.UserID, m.Role, m.JoinedAt)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (r *ConversationRepo) UpdateGroup(ctx context.Context, conv *domain.Conversation, actorID uuid.UUID) (*domain.Event, error) {
	var evt *domain.Event
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		updated, err := scanConversation(tx.QueryRow(ctx, `
			UPDATE conversations c
			SET name = $2, description = $3, icon_ref = $4, is_public = $5, max_members = $6,
				last_event_seq = last_event_seq + 1, updated_at = $7
			WHERE c.id = $1 AND c.member_count <= $6
			RETURNING `+conversationColumns,
			conv.ID, conv.Name, conv.Description, conv.IconRef, conv.IsPublic, conv.MaxMembers, time.Now().UTC(),
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missingOr(ctx, tx, conv.ID, repository.ErrCapacity)
		}
		if err != nil {
			return err
		}
		*conv = *updated

		evt, err = appendEvent(ctx, tx, domain.EventConversationUpdated, conv.ID, actorID, conv.LastEventSeq, conv.UpdatedAt, conv)
		return err
	})
	return evt, err
}

// missingOr returns ErrNotFound when the conversation does not exist, else err.
func (r *ConversationRepo) missingOr(ctx context.Context, tx pgx.Tx, id uuid.UUID, err error) error {
	var exists bool
	if qerr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`, id).Scan(&exists); qerr != nil {
		return qerr
	}
	if !exists {
		return repository.ErrNotFound
	}
	return err
}

func (r *ConversationRepo) AddMember(ctx context.Context, member *domain.Member, actorID uuid.UUID) (*domain.Event, error) {
	var evt *domain.Event
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		// Membership is checked first so a re-add to a full group reports the
		// conflict rather than capacity.
		var exists bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM conversation_members WHERE conversation_id = $1 AND user_id = $2)`,
			member.ConversationID, member.UserID,
		).Scan(&exists)
		if err != nil {
			return err
		}
		if exists {
			return repository.ErrConflict
		}

		// The guarded increment takes the row lock, so capacity holds under
		// concurrent joins.
		var seq int64
		err = tx.QueryRow(ctx, `
			UPDATE conversations
			SET member_count = member_count + 1, last_event_seq = last_event_seq + 1, updated_at = $2
			WHERE id = $1 AND member_count < max_members
			RETURNING last_event_seq`, member.ConversationID, member.JoinedAt,
		).Scan(&seq)
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missingOr(ctx, tx, member.ConversationID, repository.ErrCapacity)
		}
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO conversation_members (conversation_id, user_id, role, joined_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (conversation_id, user_id) DO NOTHING`,
			member.ConversationID, member.UserID, member.Role, member.JoinedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrConflict
		}

		evt, err = appendEvent(ctx, tx, domain.EventMemberJoined, member.ConversationID, actorID, seq, member.JoinedAt, domain.MemberPayload{
			UserID:  member.UserID,
			Role:    member.Role,
			ActorID: actorID,
		})
		return err
	})
	return evt, err
}

func (r *ConversationRepo) RemoveMember(ctx context.Context, conversationID, userID, actorID uuid.UUID) (*domain.Event, error) {
	var evt *domain.Event
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		var seq int64
		err := tx.QueryRow(ctx, `
			UPDATE conversations
			SET member_count = member_count - 1, last_event_seq = last_event_seq + 1, updated_at = $2
			WHERE id = $1
			RETURNING last_event_seq`, conversationID, now,
		).Scan(&seq)
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		if err != nil {
			return err
		}

		var role string
		err = tx.QueryRow(ctx, `
			DELETE FROM conversation_members
			WHERE conversation_id = $1 AND user_id = $2
			RETURNING role`, conversationID, userID,
		).Scan(&role)
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		if err != nil {
			return err
		}

		payload := domain.MemberPayload{UserID: userID, ActorID: actorID}
		if role == domain.RoleAdmin {
			var promoted uuid.UUID
			err := tx.QueryRow(ctx, `
				UPDATE conversation_members SET role = 'admin'
				WHERE conversation_id = $1
					AND NOT EXISTS (SELECT 1 FROM conversation_members WHERE conversation_id = $1 AND role = 'admin')
					AND user_id = (
						SELECT user_id FROM conversation_members
						WHERE conversation_id = $1
						ORDER BY joined_at, user_id
						LIMIT 1)
				RETURNING user_id`, conversationID,
			).Scan(&promoted)
			switch {
			case err == nil:
				payload.Promoted = &promoted
			case !errors.Is(err, pgx.ErrNoRows):
				return err
			}
		}

		evt, err = appendEvent(ctx, tx, domain.EventMemberLeft, conversationID, actorID, seq, now, payload)
		return err
	})
	return evt, err
}

func (r *ConversationRepo) GetMember(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Member, error) {
	var m domain.Member
	err := r.pool.QueryRow(ctx, `
		SELECT conversation_id, user_id, role, joined_at
		FROM conversation_members
		WHERE conversation_id = $1 AND user_id = $2`, conversationID, userID,
	).Scan(&m.ConversationID, &m.UserID, &m.Role, &m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &m, err
}

func (r *ConversationRepo) ListMembers(ctx context.Context, conversationID uuid.UUID) ([]domain.Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT conversation_id, user_id, role, joined_at
		FROM conversation_members
		WHERE conversation_id = $1
		ORDER BY joined_at, user_id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []domain.Member{}
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ConversationID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.ConversationSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+conversationColumns+`,
			COALESCE(rd.last_read_seq, 0),
			(SELECT count(*) FROM messages m
				WHERE m.conversation_id = c.id
					AND m.seq > COALESCE(rd.last_read_seq, 0)
					AND m.sender_id <> $1),
			(SELECT peer.user_id FROM conversation_members peer
				WHERE c.kind = 'direct' AND peer.conversation_id = c.id AND peer.user_id <> $1
				LIMIT 1)
		FROM conversation_members cm
		JOIN conversations c ON c.id = cm.conversation_id
		LEFT JOIN conversation_reads rd ON rd.conversation_id = c.id AND rd.user_id = $1
		WHERE cm.user_id = $1
		ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []domain.ConversationSummary{}
	for rows.Next() {
		var s domain.ConversationSummary
		conv, err := scanConversation(rows, &s.LastReadSeq, &s.UnreadCount, &s.PeerID)
		if err != nil {
			return nil, err
		}
		s.Conversation = *conv
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (r *ConversationRepo) ListEvents(ctx context.Context, conversationID uuid.UUID, after int64, limit int) ([]domain.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, type, conversation_id, seq, actor_id, payload, created_at
		FROM conversation_events
		WHERE conversation_id = $1 AND seq > $2
		ORDER BY seq
		LIMIT $3`, conversationID, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var (
			e       domain.Event
			actor   *uuid.UUID
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.ConversationID, &e.Sequence, &actor, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actor != nil {
			e.ActorID = *actor
		}
		e.Payload = payload
		events = append(events, e)
	}
	return events, rows.Err()
}
