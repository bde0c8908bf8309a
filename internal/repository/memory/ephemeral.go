package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
)

type presenceEntry struct {
	conns     int
	expiresAt time.Time
	lastSeen  *time.Time
}

// PresenceStore keeps presence for a single node.
type PresenceStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*presenceEntry
	now     func() time.Time
}

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{entries: make(map[uuid.UUID]*presenceEntry), now: time.Now}
}

func (s *PresenceStore) entry(userID uuid.UUID) *presenceEntry {
	e, ok := s.entries[userID]
	if !ok {
		e = &presenceEntry{}
		s.entries[userID] = e
	}
	// An expired flag means the owning node stopped refreshing.
	if e.conns > 0 && !s.now().Before(e.expiresAt) {
		e.conns = 0
		last := e.expiresAt
		e.lastSeen = &last
	}
	return e
}

func (s *PresenceStore) Connect(_ context.Context, userID uuid.UUID, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(userID)
	e.conns++
	e.expiresAt = s.now().Add(ttl)
	return e.conns == 1, nil
}

func (s *PresenceStore) Disconnect(_ context.Context, userID uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(userID)
	if e.conns == 0 {
		return false, nil
	}
	e.conns--
	if e.conns > 0 {
		return false, nil
	}
	seen := at.UTC()
	e.lastSeen = &seen
	return true, nil
}

func (s *PresenceStore) Refresh(_ context.Context, userID uuid.UUID, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(userID)
	if e.conns == 0 {
		e.conns = 1
		e.expiresAt = s.now().Add(ttl)
		return false, nil
	}
	e.expiresAt = s.now().Add(ttl)
	return true, nil
}

func (s *PresenceStore) SetOffline(_ context.Context, userID uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(userID)
	wasOnline := e.conns > 0
	e.conns = 0
	seen := at.UTC()
	e.lastSeen = &seen
	return wasOnline, nil
}

func (s *PresenceStore) Get(_ context.Context, userID uuid.UUID) (*domain.Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &domain.Presence{UserID: userID}
	e, ok := s.entries[userID]
	if !ok {
		return p, nil
	}
	e = s.entry(userID)
	p.Online = e.conns > 0
	p.LastSeenAt = e.lastSeen
	return p, nil
}

// TypingStore keeps typing indicators for a single node.
type TypingStore struct {
	mu   sync.Mutex
	byID map[uuid.UUID]map[uuid.UUID]time.Time
}

func NewTypingStore() *TypingStore {
	return &TypingStore{byID: make(map[uuid.UUID]map[uuid.UUID]time.Time)}
}

func (s *TypingStore) Set(_ context.Context, ind *domain.TypingIndicator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[ind.ConversationID]
	if !ok {
		conv = make(map[uuid.UUID]time.Time)
		s.byID[ind.ConversationID] = conv
	}
	conv[ind.UserID] = ind.ExpiresAt
	return nil
}

func (s *TypingStore) Remove(_ context.Context, conversationID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.byID[conversationID]
	if _, ok := conv[userID]; !ok {
		return false, nil
	}
	delete(conv, userID)
	return true, nil
}

func (s *TypingStore) ListActive(_ context.Context, conversationID uuid.UUID, now time.Time) ([]domain.TypingIndicator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.TypingIndicator{}
	conv := s.byID[conversationID]
	for userID, exp := range conv {
		if !now.Before(exp) {
			delete(conv, userID)
			continue
		}
		out = append(out, domain.TypingIndicator{ConversationID: conversationID, UserID: userID, ExpiresAt: exp})
	}
	if len(conv) == 0 {
		delete(s.byID, conversationID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}
