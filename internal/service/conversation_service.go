package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/apperr"
	"github.com/vedran77/relay/internal/config"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
	"github.com/vedran77/relay/pkg/validator"
)

const (
	defaultReplayLimit = 200
	maxReplayLimit     = 1000
)

type ConversationService struct {
	events
	access   membership
	convRepo repository.ConversationRepository
	userRepo repository.UserRepository
	limits   config.LimitsConfig
	now      func() time.Time
}

func NewConversationService(
	convRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	limits config.LimitsConfig,
) *ConversationService {
	return &ConversationService{
		events:   events{logger: slog.Default().With("component", "conversations")},
		access:   membership{convRepo: convRepo},
		convRepo: convRepo,
		userRepo: userRepo,
		limits:   limits,
		now:      time.Now,
	}
}

type CreateGroupInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	IconRef     *string `json:"icon_ref,omitempty"`
	IsPublic    *bool   `json:"is_public,omitempty"`
	MaxMembers  *int    `json:"max_members,omitempty"`
}

type UpdateGroupInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IconRef     *string `json:"icon_ref,omitempty"`
	IsPublic    *bool   `json:"is_public,omitempty"`
	MaxMembers  *int    `json:"max_members,omitempty"`
}

// GetOrCreateDirect returns the direct conversation between userID and
// peerID, creating it on first use. The bool reports whether it was created.
func (s *ConversationService) GetOrCreateDirect(ctx context.Context, userID, peerID uuid.UUID) (*domain.Conversation, bool, error) {
	if userID == peerID {
		return nil, false, ErrSelfConversation
	}

	peer, err := s.userRepo.GetByID(ctx, peerID)
	if err != nil {
		return nil, false, fmt.Errorf("getting user: %w", err)
	}
	if peer == nil {
		return nil, false, ErrUserNotFound
	}

	key := domain.DirectKey(userID, peerID)
	existing, err := s.convRepo.GetByDirectKey(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("getting direct conversation: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	now := s.now().UTC()
	conv := &domain.Conversation{
		ID:         uuid.New(),
		Kind:       domain.KindDirect,
		DirectKey:  &key,
		MaxMembers: 2,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	members := []domain.Member{
		{ConversationID: conv.ID, UserID: userID, Role: domain.RoleMember, JoinedAt: now},
		{ConversationID: conv.ID, UserID: peerID, Role: domain.RoleMember, JoinedAt: now},
	}

	err = s.convRepo.CreateDirect(ctx, conv, members)
	if errors.Is(err, repository.ErrConflict) {
		// The peer created it concurrently; read the winner.
		existing, err = s.convRepo.GetByDirectKey(ctx, key)
		if err != nil {
			return nil, false, fmt.Errorf("getting direct conversation: %w", err)
		}
		if existing == nil {
			return nil, false, apperr.New(apperr.KindConflict, "direct conversation is being created, retry")
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("creating direct conversation: %w", err)
	}

	s.log().Info("Direct conversation created", "conversation_id", conv.ID)
	return conv, true, nil
}

func (s *ConversationService) CreateGroup(ctx context.Context, ownerID uuid.UUID, input CreateGroupInput) (*domain.Conversation, error) {
	maxMembers := s.limits.DefaultGroupSize
	if input.MaxMembers != nil {
		maxMembers = *input.MaxMembers
	}

	if errs := validator.ValidateGroup(validator.GroupInput{
		Name:        input.Name,
		Description: input.Description,
		MaxMembers:  maxMembers,
	}); errs.HasErrors() {
		return nil, apperr.Validation(errs)
	}

	isPublic := true
	if input.IsPublic != nil {
		isPublic = *input.IsPublic
	}

	name := strings.TrimSpace(input.Name)
	now := s.now().UTC()
	conv := &domain.Conversation{
		ID:          uuid.New(),
		Kind:        domain.KindGroup,
		Name:        &name,
		Description: input.Description,
		OwnerID:     &ownerID,
		IconRef:     input.IconRef,
		IsPublic:    isPublic,
		MaxMembers:  maxMembers,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	owner := &domain.Member{
		ConversationID: conv.ID,
		UserID:         ownerID,
		Role:           domain.RoleAdmin,
		JoinedAt:       now,
	}

	if err := s.convRepo.CreateGroup(ctx, conv, owner); err != nil {
		return nil, fmt.Errorf("creating group: %w", err)
	}

	s.log().Info("Group created", "conversation_id", conv.ID, "owner_id", ownerID, "max_members", maxMembers)
	return conv, nil
}

// JoinGroup adds userID to a public group.
func (s *ConversationService) JoinGroup(ctx context.Context, userID, groupID uuid.UUID) (*domain.Member, error) {
	group, err := s.access.requireGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	existing, err := s.convRepo.GetMember(ctx, groupID, userID)
	if err != nil {
		return nil, fmt.Errorf("getting member: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyMember
	}
	if !group.IsPublic {
		return nil, ErrPrivateGroup
	}

	return s.addMember(ctx, groupID, userID, userID)
}

// AddMember lets a group admin add userID, including to private groups.
func (s *ConversationService) AddMember(ctx context.Context, actorID, groupID, userID uuid.UUID) (*domain.Member, error) {
	if _, err := s.access.requireGroup(ctx, groupID); err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	return s.addMember(ctx, groupID, userID, actorID)
}

func (s *ConversationService) addMember(ctx context.Context, groupID, userID, actorID uuid.UUID) (*domain.Member, error) {
	member := &domain.Member{
		ConversationID: groupID,
		UserID:         userID,
		Role:           domain.RoleMember,
		JoinedAt:       s.now().UTC(),
	}

	evt, err := s.convRepo.AddMember(ctx, member, actorID)
	switch {
	case errors.Is(err, repository.ErrCapacity):
		return nil, ErrGroupFull
	case errors.Is(err, repository.ErrConflict):
		return nil, ErrAlreadyMember
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrGroupNotFound
	case err != nil:
		return nil, fmt.Errorf("adding member: %w", err)
	}

	s.publish(ctx, evt)
	return member, nil
}

func (s *ConversationService) LeaveGroup(ctx context.Context, userID, groupID uuid.UUID) error {
	if _, err := s.access.requireGroup(ctx, groupID); err != nil {
		return err
	}
	return s.removeMember(ctx, groupID, userID, userID)
}

// RemoveMember removes targetID from a group. Only admins may remove others.
func (s *ConversationService) RemoveMember(ctx context.Context, actorID, groupID, targetID uuid.UUID) error {
	if actorID == targetID {
		return s.LeaveGroup(ctx, actorID, groupID)
	}
	if _, err := s.access.requireGroup(ctx, groupID); err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return err
	}
	return s.removeMember(ctx, groupID, targetID, actorID)
}

func (s *ConversationService) removeMember(ctx context.Context, groupID, userID, actorID uuid.UUID) error {
	evt, err := s.convRepo.RemoveMember(ctx, groupID, userID, actorID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrMemberNotFound
	}
	if err != nil {
		return fmt.Errorf("removing member: %w", err)
	}

	s.publish(ctx, evt)
	return nil
}

func (s *ConversationService) UpdateGroup(ctx context.Context, actorID, groupID uuid.UUID, input UpdateGroupInput) (*domain.Conversation, error) {
	group, err := s.access.requireGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return nil, err
	}

	if errs := validator.ValidateGroupUpdate(input.Name, input.Description, input.MaxMembers, group.MemberCount); errs.HasErrors() {
		return nil, apperr.Validation(errs)
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		group.Name = &name
	}
	if input.Description != nil {
		group.Description = input.Description
	}
	if input.IconRef != nil {
		group.IconRef = input.IconRef
	}
	if input.IsPublic != nil {
		group.IsPublic = *input.IsPublic
	}
	if input.MaxMembers != nil {
		group.MaxMembers = *input.MaxMembers
	}

	evt, err := s.convRepo.UpdateGroup(ctx, group, actorID)
	if errors.Is(err, repository.ErrCapacity) {
		// Members joined between the read and the update.
		return nil, apperr.Validation(map[string]string{"max_members": "Max members cannot be below the current member count"})
	}
	if err != nil {
		return nil, fmt.Errorf("updating group: %w", err)
	}

	s.publish(ctx, evt)
	return group, nil
}

func (s *ConversationService) requireAdmin(ctx context.Context, groupID, userID uuid.UUID) error {
	member, err := s.convRepo.GetMember(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("getting member: %w", err)
	}
	if member == nil {
		return ErrNotMember
	}
	if !member.IsAdmin() {
		return ErrNotAdmin
	}
	return nil
}

// List returns the caller's conversations, most recently active first.
func (s *ConversationService) List(ctx context.Context, userID uuid.UUID, limit int) ([]domain.ConversationSummary, error) {
	limit = repository.ClampLimit(limit, s.limits.DefaultPageSize, s.limits.MaxPageSize)

	convs, err := s.convRepo.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	if convs == nil {
		convs = []domain.ConversationSummary{}
	}
	return convs, nil
}

func (s *ConversationService) Get(ctx context.Context, userID, conversationID uuid.UUID) (*domain.Conversation, error) {
	conv, _, err := s.access.require(ctx, conversationID, userID)
	return conv, err
}

func (s *ConversationService) ListMembers(ctx context.Context, userID, conversationID uuid.UUID) ([]domain.Member, error) {
	if _, _, err := s.access.require(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	members, err := s.convRepo.ListMembers(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	return members, nil
}

// ReplayEvents returns durable events with sequence > after, ascending.
func (s *ConversationService) ReplayEvents(ctx context.Context, userID, conversationID uuid.UUID, after int64, limit int) ([]domain.Event, error) {
	if after < 0 {
		return nil, apperr.Validation(map[string]string{"after": "Cursor must not be negative"})
	}
	if _, _, err := s.access.require(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	limit = repository.ClampLimit(limit, defaultReplayLimit, maxReplayLimit)
	evts, err := s.convRepo.ListEvents(ctx, conversationID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	if evts == nil {
		evts = []domain.Event{}
	}
	return evts, nil
}

// HeadSequence returns the last committed event sequence of a conversation.
func (s *ConversationService) HeadSequence(ctx context.Context, userID, conversationID uuid.UUID) (int64, error) {
	conv, _, err := s.access.require(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}
	return conv.LastEventSeq, nil
}
