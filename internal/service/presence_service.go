package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
)

// PresenceService tracks online state. WebSocket connections drive it; the
// HTTP endpoint lets clients set it explicitly.
type PresenceService struct {
	events
	store repository.PresenceStore
	ttl   time.Duration
	now   func() time.Time
}

func NewPresenceService(store repository.PresenceStore, ttl time.Duration) *PresenceService {
	return &PresenceService{
		events: events{logger: slog.Default().With("component", "presence")},
		store:  store,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *PresenceService) TTL() time.Duration {
	return s.ttl
}

// Connected records a new connection; the first one brings the user online.
func (s *PresenceService) Connected(ctx context.Context, userID uuid.UUID) error {
	cameOnline, err := s.store.Connect(ctx, userID, s.ttl)
	if err != nil {
		return fmt.Errorf("recording connection: %w", err)
	}
	if cameOnline {
		s.broadcast(ctx, &domain.Presence{UserID: userID, Online: true})
	}
	return nil
}

// Disconnected drops a connection; the last one takes the user offline.
func (s *PresenceService) Disconnected(ctx context.Context, userID uuid.UUID) error {
	at := s.now().UTC()
	wentOffline, err := s.store.Disconnect(ctx, userID, at)
	if err != nil {
		return fmt.Errorf("recording disconnect: %w", err)
	}
	if wentOffline {
		s.broadcast(ctx, &domain.Presence{UserID: userID, Online: false, LastSeenAt: &at})
	}
	return nil
}

// Heartbeat extends the online TTL. A user whose flag had already decayed is
// announced online again.
func (s *PresenceService) Heartbeat(ctx context.Context, userID uuid.UUID) error {
	wasOnline, err := s.store.Refresh(ctx, userID, s.ttl)
	if err != nil {
		return fmt.Errorf("refreshing presence: %w", err)
	}
	if !wasOnline {
		s.broadcast(ctx, &domain.Presence{UserID: userID, Online: true})
	}
	return nil
}

func (s *PresenceService) SetPresence(ctx context.Context, userID uuid.UUID, online bool) (*domain.Presence, error) {
	if online {
		if err := s.Heartbeat(ctx, userID); err != nil {
			return nil, err
		}
		return s.Get(ctx, userID)
	}

	at := s.now().UTC()
	wasOnline, err := s.store.SetOffline(ctx, userID, at)
	if err != nil {
		return nil, fmt.Errorf("setting offline: %w", err)
	}
	p := &domain.Presence{UserID: userID, Online: false, LastSeenAt: &at}
	if wasOnline {
		s.broadcast(ctx, p)
	}
	return p, nil
}

// Get returns presence; unknown users are offline with no last-seen time.
func (s *PresenceService) Get(ctx context.Context, userID uuid.UUID) (*domain.Presence, error) {
	p, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting presence: %w", err)
	}
	return p, nil
}

func (s *PresenceService) broadcast(ctx context.Context, p *domain.Presence) {
	evt, err := domain.NewEvent(domain.EventPresenceChanged, uuid.Nil, p.UserID, p)
	if err != nil {
		return
	}
	s.publish(ctx, evt)
}
