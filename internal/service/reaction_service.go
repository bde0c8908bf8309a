package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/apperr"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
	"github.com/vedran77/relay/pkg/validator"
)

type ReactionService struct {
	events
	access       membership
	reactionRepo repository.ReactionRepository
	messageRepo  repository.MessageRepository
	now          func() time.Time
}

func NewReactionService(
	reactionRepo repository.ReactionRepository,
	messageRepo repository.MessageRepository,
	convRepo repository.ConversationRepository,
) *ReactionService {
	return &ReactionService{
		events:       events{logger: slog.Default().With("component", "reactions")},
		access:       membership{convRepo: convRepo},
		reactionRepo: reactionRepo,
		messageRepo:  messageRepo,
		now:          time.Now,
	}
}

// Add is idempotent. It reports whether the reaction was newly recorded.
func (s *ReactionService) Add(ctx context.Context, userID, messageID uuid.UUID, emoji string) (bool, error) {
	msg, err := s.prepare(ctx, userID, messageID, emoji)
	if err != nil {
		return false, err
	}

	evt, err := s.reactionRepo.Add(ctx, msg.ConversationID, &domain.Reaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("adding reaction: %w", err)
	}

	s.publish(ctx, evt)
	return evt != nil, nil
}

// Remove is idempotent. It reports whether a reaction was removed.
func (s *ReactionService) Remove(ctx context.Context, userID, messageID uuid.UUID, emoji string) (bool, error) {
	msg, err := s.prepare(ctx, userID, messageID, emoji)
	if err != nil {
		return false, err
	}

	evt, err := s.reactionRepo.Remove(ctx, msg.ConversationID, &domain.Reaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
	})
	if err != nil {
		return false, fmt.Errorf("removing reaction: %w", err)
	}

	s.publish(ctx, evt)
	return evt != nil, nil
}

func (s *ReactionService) prepare(ctx context.Context, userID, messageID uuid.UUID, emoji string) (*domain.Message, error) {
	if errs := validator.ValidateReaction(emoji); errs.HasErrors() {
		return nil, apperr.Validation(errs)
	}

	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("getting message: %w", err)
	}
	if msg == nil || msg.Deleted {
		return nil, ErrMessageNotFound
	}
	if _, _, err := s.access.require(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	return msg, nil
}

// List groups a message's reactions by emoji, most used first.
func (s *ReactionService) List(ctx context.Context, userID, messageID uuid.UUID) ([]domain.ReactionGroup, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("getting message: %w", err)
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	if _, _, err := s.access.require(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}

	reactions, err := s.reactionRepo.ListByMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("listing reactions: %w", err)
	}
	return groupReactions(reactions, userID), nil
}

func groupReactions(reactions []domain.Reaction, viewerID uuid.UUID) []domain.ReactionGroup {
	index := make(map[string]int)
	groups := []domain.ReactionGroup{}

	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(groups)
			index[r.Emoji] = i
			groups = append(groups, domain.ReactionGroup{Emoji: r.Emoji, Users: []uuid.UUID{}})
		}
		g := &groups[i]
		g.Count++
		g.Users = append(g.Users, r.UserID)
		if r.UserID == viewerID {
			g.ReactedByMe = true
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Emoji < groups[j].Emoji
	})
	return groups
}
