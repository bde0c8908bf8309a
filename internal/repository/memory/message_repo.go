package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
)

type MessageRepo struct {
	db *DB
}

func NewMessageRepo(db *DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) Append(_ context.Context, msg *domain.Message) (*domain.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	conv, ok := r.db.convs[msg.ConversationID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	var key clientKey
	if msg.ClientMsgID != nil {
		key = clientKey{msg.ConversationID, msg.SenderID, *msg.ClientMsgID}
		if _, dup := r.db.clientIDs[key]; dup {
			return nil, repository.ErrConflict
		}
	}

	msg.Seq = conv.LastMessageSeq + 1
	evt, err := r.db.appendEvent(conv, domain.EventMessageNew, msg.SenderID, msg.CreatedAt, msg)
	if err != nil {
		return nil, err
	}

	conv.LastMessageSeq = msg.Seq
	at := msg.CreatedAt
	conv.LastMessageAt = &at
	r.db.messages[msg.ID] = copyMessage(msg)
	r.db.logs[msg.ConversationID] = append(r.db.logs[msg.ConversationID], msg.ID)
	if msg.ClientMsgID != nil {
		r.db.clientIDs[key] = msg.ID
	}
	return evt, nil
}

func (r *MessageRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	m, ok := r.db.messages[id]
	if !ok {
		return nil, nil
	}
	return copyMessage(m), nil
}

func (r *MessageRepo) GetByClientID(_ context.Context, conversationID, senderID uuid.UUID, clientMsgID string) (*domain.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	id, ok := r.db.clientIDs[clientKey{conversationID, senderID, clientMsgID}]
	if !ok {
		return nil, nil
	}
	return copyMessage(r.db.messages[id]), nil
}

func (r *MessageRepo) List(_ context.Context, conversationID uuid.UUID, q repository.PageQuery) ([]domain.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	log := r.db.logs[conversationID]
	messages := []domain.Message{}

	if q.Forward() {
		for i := *q.After; i < int64(len(log)) && len(messages) < q.Limit; i++ {
			if i < 0 {
				continue
			}
			messages = append(messages, *copyMessage(r.db.messages[log[i]]))
		}
		return messages, nil
	}

	start := int64(len(log))
	if q.Before != nil && *q.Before-1 < start {
		start = *q.Before - 1
	}
	for i := start - 1; i >= 0 && len(messages) < q.Limit; i-- {
		messages = append(messages, *copyMessage(r.db.messages[log[i]]))
	}
	return messages, nil
}

func (r *MessageRepo) Edit(_ context.Context, id, actorID uuid.UUID, content string, at time.Time) (*domain.Message, *domain.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	m, ok := r.db.messages[id]
	if !ok || m.Deleted {
		return nil, nil, repository.ErrNotFound
	}

	m.Content = &content
	m.Edited = true
	editedAt := at.UTC()
	m.EditedAt = &editedAt

	evt, err := r.db.appendEvent(r.db.convs[m.ConversationID], domain.EventMessageEdited, actorID, editedAt, m)
	if err != nil {
		return nil, nil, err
	}
	return copyMessage(m), evt, nil
}

func (r *MessageRepo) SoftDelete(_ context.Context, id, actorID uuid.UUID, at time.Time) (*domain.Message, *domain.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	m, ok := r.db.messages[id]
	if !ok || m.Deleted {
		return nil, nil, repository.ErrNotFound
	}

	m.Tombstone(actorID, at.UTC())

	evt, err := r.db.appendEvent(r.db.convs[m.ConversationID], domain.EventMessageDeleted, actorID, at, domain.MessageDeletedPayload{
		ID:        m.ID,
		Seq:       m.Seq,
		DeletedBy: actorID,
	})
	if err != nil {
		return nil, nil, err
	}
	return copyMessage(m), evt, nil
}
