package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
)

type ConversationRepo struct {
	db *DB
}

func NewConversationRepo(db *DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c, ok := r.db.convs[id]
	if !ok {
		return nil, nil
	}
	return copyConversation(c), nil
}

func (r *ConversationRepo) GetByDirectKey(_ context.Context, key string) (*domain.Conversation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	id, ok := r.db.directKeys[key]
	if !ok {
		return nil, nil
	}
	return copyConversation(r.db.convs[id]), nil
}

func (r *ConversationRepo) CreateDirect(_ context.Context, conv *domain.Conversation, members []domain.Member) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if conv.DirectKey == nil {
		return repository.ErrNotFound
	}
	if _, exists := r.db.directKeys[*conv.DirectKey]; exists {
		return repository.ErrConflict
	}

	stored := copyConversation(conv)
	stored.MemberCount = len(members)
	r.db.convs[conv.ID] = stored
	r.db.directKeys[*conv.DirectKey] = conv.ID
	r.db.members[conv.ID] = make(map[uuid.UUID]*domain.Member, len(members))
	for i := range members {
		m := members[i]
		r.db.members[conv.ID][m.UserID] = &m
	}
	conv.MemberCount = stored.MemberCount
	return nil
}

func (r *ConversationRepo) CreateGroup(_ context.Context, conv *domain.Conversation, owner *domain.Member) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, exists := r.db.convs[conv.ID]; exists {
		return repository.ErrConflict
	}

	stored := copyConversation(conv)
	stored.MemberCount = 1
	r.db.convs[conv.ID] = stored
	m := *owner
	r.db.members[conv.ID] = map[uuid.UUID]*domain.Member{m.UserID: &m}
	conv.MemberCount = 1
	return nil
}

func (r *ConversationRepo) UpdateGroup(_ context.Context, conv *domain.Conversation, actorID uuid.UUID) (*domain.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	stored, ok := r.db.convs[conv.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if conv.MaxMembers < stored.MemberCount {
		return nil, repository.ErrCapacity
	}

	stored.Name = conv.Name
	stored.Description = conv.Description
	stored.IconRef = conv.IconRef
	stored.IsPublic = conv.IsPublic
	stored.MaxMembers = conv.MaxMembers
	stored.UpdatedAt = r.db.now().UTC()

	evt, err := r.db.appendEvent(stored, domain.EventConversationUpdated, actorID, stored.UpdatedAt, stored)
	if err != nil {
		return nil, err
	}
	*conv = *copyConversation(stored)
	return evt, nil
}

func (r *ConversationRepo) AddMember(_ context.Context, member *domain.Member, actorID uuid.UUID) (*domain.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	conv, ok := r.db.convs[member.ConversationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if _, exists := r.db.members[conv.ID][member.UserID]; exists {
		return nil, repository.ErrConflict
	}
	if conv.MemberCount >= conv.MaxMembers {
		return nil, repository.ErrCapacity
	}

	m := *member
	r.db.members[conv.ID][m.UserID] = &m
	conv.MemberCount++

	return r.db.appendEvent(conv, domain.EventMemberJoined, actorID, m.JoinedAt, domain.MemberPayload{
		UserID:  m.UserID,
		Role:    m.Role,
		ActorID: actorID,
	})
}

func (r *ConversationRepo) RemoveMember(_ context.Context, conversationID, userID, actorID uuid.UUID) (*domain.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	conv, ok := r.db.convs[conversationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	members := r.db.members[conversationID]
	if _, exists := members[userID]; !exists {
		return nil, repository.ErrNotFound
	}

	delete(members, userID)
	conv.MemberCount--

	payload := domain.MemberPayload{UserID: userID, ActorID: actorID}
	if promoted := promoteIfNoAdmin(members); promoted != nil {
		payload.Promoted = &promoted.UserID
	}

	return r.db.appendEvent(conv, domain.EventMemberLeft, actorID, r.db.now().UTC(), payload)
}

// promoteIfNoAdmin makes the earliest-joined member an admin when none remain.
func promoteIfNoAdmin(members map[uuid.UUID]*domain.Member) *domain.Member {
	var earliest *domain.Member
	for _, m := range members {
		if m.Role == domain.RoleAdmin {
			return nil
		}
		if earliest == nil || m.JoinedAt.Before(earliest.JoinedAt) ||
			(m.JoinedAt.Equal(earliest.JoinedAt) && m.UserID.String() < earliest.UserID.String()) {
			earliest = m
		}
	}
	if earliest != nil {
		earliest.Role = domain.RoleAdmin
	}
	return earliest
}

func (r *ConversationRepo) GetMember(_ context.Context, conversationID, userID uuid.UUID) (*domain.Member, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	m, ok := r.db.members[conversationID][userID]
	if !ok {
		return nil, nil
	}
	out := *m
	return &out, nil
}

func (r *ConversationRepo) ListMembers(_ context.Context, conversationID uuid.UUID) ([]domain.Member, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	members := make([]domain.Member, 0, len(r.db.members[conversationID]))
	for _, m := range r.db.members[conversationID] {
		members = append(members, *m)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].UserID.String() < members[j].UserID.String()
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members, nil
}

func (r *ConversationRepo) ListForUser(_ context.Context, userID uuid.UUID, limit int) ([]domain.ConversationSummary, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []domain.ConversationSummary
	for convID, members := range r.db.members {
		if _, ok := members[userID]; !ok {
			continue
		}
		conv := r.db.convs[convID]
		cursor := r.db.cursors[pairKey{convID, userID}]
		summary := domain.ConversationSummary{
			Conversation: *copyConversation(conv),
			LastReadSeq:  cursor,
			UnreadCount:  r.db.countUnreadLocked(convID, userID, cursor),
		}
		if conv.IsDirect() {
			for peer := range members {
				if peer != userID {
					p := peer
					summary.PeerID = &p
				}
			}
		}
		out = append(out, summary)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastMessageAt, out[j].LastMessageAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ConversationRepo) ListEvents(_ context.Context, conversationID uuid.UUID, after int64, limit int) ([]domain.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	log := r.db.events[conversationID]
	if after < 0 {
		after = 0
	}
	if after >= int64(len(log)) {
		return []domain.Event{}, nil
	}
	// Event sequences are dense from 1, so the slice index is seq-1.
	end := int64(len(log))
	if limit > 0 && after+int64(limit) < end {
		end = after + int64(limit)
	}
	out := make([]domain.Event, end-after)
	copy(out, log[after:end])
	return out, nil
}
