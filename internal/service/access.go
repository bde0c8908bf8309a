package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
)

// membership resolves a conversation and the caller's place in it.
type membership struct {
	convRepo repository.ConversationRepository
}

func (m membership) require(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, *domain.Member, error) {
	conv, err := m.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("getting conversation: %w", err)
	}
	if conv == nil {
		return nil, nil, ErrConversationNotFound
	}

	member, err := m.convRepo.GetMember(ctx, conversationID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("getting member: %w", err)
	}
	if member == nil {
		return nil, nil, ErrNotMember
	}
	return conv, member, nil
}

func (m membership) requireGroup(ctx context.Context, groupID uuid.UUID) (*domain.Conversation, error) {
	conv, err := m.convRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("getting group: %w", err)
	}
	if conv == nil || conv.IsDirect() {
		return nil, ErrGroupNotFound
	}
	return conv, nil
}
