package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
)

type ReactionRepo struct {
	db *DB
}

func NewReactionRepo(db *DB) *ReactionRepo {
	return &ReactionRepo{db: db}
}

func (r *ReactionRepo) Add(_ context.Context, conversationID uuid.UUID, reaction *domain.Reaction) (*domain.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	m, ok := r.db.messages[reaction.MessageID]
	if !ok || m.Deleted {
		return nil, repository.ErrNotFound
	}

	key := reactionKey{reaction.MessageID, reaction.UserID, reaction.Emoji}
	if _, exists := r.db.reactionIndex[key]; exists {
		return nil, nil
	}
	r.db.reactionIndex[key] = struct{}{}
	r.db.reactions[reaction.MessageID] = append(r.db.reactions[reaction.MessageID], *reaction)

	return r.db.appendEvent(r.db.convs[conversationID], domain.EventReactionAdded, reaction.UserID, reaction.CreatedAt, domain.ReactionPayload{
		MessageID: reaction.MessageID,
		UserID:    reaction.UserID,
		Emoji:     reaction.Emoji,
	})
}

func (r *ReactionRepo) Remove(_ context.Context, conversationID uuid.UUID, reaction *domain.Reaction) (*domain.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := reactionKey{reaction.MessageID, reaction.UserID, reaction.Emoji}
	if _, exists := r.db.reactionIndex[key]; !exists {
		return nil, nil
	}
	delete(r.db.reactionIndex, key)

	list := r.db.reactions[reaction.MessageID]
	for i := range list {
		if list[i].UserID == reaction.UserID && list[i].Emoji == reaction.Emoji {
			r.db.reactions[reaction.MessageID] = append(list[:i:i], list[i+1:]...)
			break
		}
	}

	return r.db.appendEvent(r.db.convs[conversationID], domain.EventReactionRemoved, reaction.UserID, r.db.now().UTC(), domain.ReactionPayload{
		MessageID: reaction.MessageID,
		UserID:    reaction.UserID,
		Emoji:     reaction.Emoji,
	})
}

func (r *ReactionRepo) ListByMessage(_ context.Context, messageID uuid.UUID) ([]domain.Reaction, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]domain.Reaction, len(r.db.reactions[messageID]))
	copy(out, r.db.reactions[messageID])
	return out, nil
}
