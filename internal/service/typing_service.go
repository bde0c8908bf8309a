package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/ratelimit"
	"github.com/vedran77/relay/internal/repository"
)

type TypingService struct {
	events
	access   membership
	store    repository.TypingStore
	ttl      time.Duration
	throttle *ratelimit.Pool
	now      func() time.Time
}

// NewTypingService keeps indicators alive for ttl after each call and
// broadcasts typing.started at most once per throttle per user and conversation.
func NewTypingService(store repository.TypingStore, convRepo repository.ConversationRepository, ttl, throttle time.Duration) *TypingService {
	return &TypingService{
		events:   events{logger: slog.Default().With("component", "typing")},
		access:   membership{convRepo: convRepo},
		store:    store,
		ttl:      ttl,
		throttle: ratelimit.Every(throttle),
		now:      time.Now,
	}
}

func (s *TypingService) Close() {
	s.throttle.Close()
}

func throttleKey(conversationID, userID uuid.UUID) string {
	return conversationID.String() + ":" + userID.String()
}

func (s *TypingService) SetTyping(ctx context.Context, userID, conversationID uuid.UUID) (*domain.TypingIndicator, error) {
	if _, _, err := s.access.require(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	ind := &domain.TypingIndicator{
		ConversationID: conversationID,
		UserID:         userID,
		ExpiresAt:      s.now().Add(s.ttl).UTC(),
	}
	if err := s.store.Set(ctx, ind); err != nil {
		return nil, fmt.Errorf("setting typing indicator: %w", err)
	}

	if s.throttle.Allow(throttleKey(conversationID, userID)) {
		s.broadcast(ctx, domain.EventTypingStarted, conversationID, userID, &ind.ExpiresAt)
	}
	return ind, nil
}

func (s *TypingService) StopTyping(ctx context.Context, userID, conversationID uuid.UUID) error {
	if _, _, err := s.access.require(ctx, conversationID, userID); err != nil {
		return err
	}

	removed, err := s.store.Remove(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("removing typing indicator: %w", err)
	}
	s.throttle.Reset(throttleKey(conversationID, userID))

	if removed {
		s.broadcast(ctx, domain.EventTypingStopped, conversationID, userID, nil)
	}
	return nil
}

// ListActive returns unexpired indicators. Expired ones are evicted on read.
func (s *TypingService) ListActive(ctx context.Context, userID, conversationID uuid.UUID) ([]domain.TypingIndicator, error) {
	if _, _, err := s.access.require(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	active, err := s.store.ListActive(ctx, conversationID, s.now())
	if err != nil {
		return nil, fmt.Errorf("listing typing indicators: %w", err)
	}
	if active == nil {
		active = []domain.TypingIndicator{}
	}
	return active, nil
}

func (s *TypingService) broadcast(ctx context.Context, eventType string, conversationID, userID uuid.UUID, expiresAt *time.Time) {
	evt, err := domain.NewEvent(eventType, conversationID, userID, domain.TypingPayload{
		UserID:    userID,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return
	}
	s.publish(ctx, evt)
}
