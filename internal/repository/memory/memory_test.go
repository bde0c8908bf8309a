package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
)

func newGroup(t *testing.T, repo *ConversationRepo, owner uuid.UUID, max int) *domain.Conversation {
	t.Helper()
	name := "study group"
	now := time.Now()
	conv := &domain.Conversation{
		ID:         uuid.New(),
		Kind:       domain.KindGroup,
		Name:       &name,
		OwnerID:    &owner,
		MaxMembers: max,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, repo.CreateGroup(context.Background(), conv, &domain.Member{
		ConversationID: conv.ID,
		UserID:         owner,
		Role:           domain.RoleAdmin,
		JoinedAt:       now,
	}))
	return conv
}

func TestCreateDirect_RejectsDuplicatePair(t *testing.T) {
	repo := NewConversationRepo(NewDB())
	a, b := uuid.New(), uuid.New()
	key := domain.DirectKey(a, b)

	first := &domain.Conversation{ID: uuid.New(), Kind: domain.KindDirect, DirectKey: &key, MaxMembers: 2}
	second := &domain.Conversation{ID: uuid.New(), Kind: domain.KindDirect, DirectKey: &key, MaxMembers: 2}

	require.NoError(t, repo.CreateDirect(context.Background(), first, nil))
	assert.ErrorIs(t, repo.CreateDirect(context.Background(), second, nil), repository.ErrConflict)

	got, err := repo.GetByDirectKey(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestAddMember_EnforcesCapacityUnderConcurrency(t *testing.T) {
	repo := NewConversationRepo(NewDB())
	conv := newGroup(t, repo, uuid.New(), 5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var joined, full int
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.AddMember(context.Background(), &domain.Member{
				ConversationID: conv.ID,
				UserID:         uuid.New(),
				Role:           domain.RoleMember,
				JoinedAt:       time.Now(),
			}, uuid.Nil)
			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				joined++
			case repository.ErrCapacity:
				full++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, joined)
	assert.Equal(t, 16, full)

	got, err := repo.GetByID(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.MemberCount)
}

func TestRemoveMember_PromotesEarliestWhenLastAdminLeaves(t *testing.T) {
	repo := NewConversationRepo(NewDB())
	owner := uuid.New()
	conv := newGroup(t, repo, owner, 10)

	early, late := uuid.New(), uuid.New()
	base := time.Now().Add(time.Minute)
	_, err := repo.AddMember(context.Background(), &domain.Member{ConversationID: conv.ID, UserID: late, Role: domain.RoleMember, JoinedAt: base.Add(time.Second)}, late)
	require.NoError(t, err)
	_, err = repo.AddMember(context.Background(), &domain.Member{ConversationID: conv.ID, UserID: early, Role: domain.RoleMember, JoinedAt: base}, early)
	require.NoError(t, err)

	evt, err := repo.RemoveMember(context.Background(), conv.ID, owner, owner)
	require.NoError(t, err)
	assert.Equal(t, domain.EventMemberLeft, evt.Type)

	m, err := repo.GetMember(context.Background(), conv.ID, early)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, m.Role)

	_, err = repo.RemoveMember(context.Background(), conv.ID, owner, owner)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMessageLog_SequencesAreDenseAndEventsFollow(t *testing.T) {
	db := NewDB()
	convs := NewConversationRepo(db)
	msgs := NewMessageRepo(db)
	owner := uuid.New()
	conv := newGroup(t, convs, owner, 10)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			content := "hi"
			_, err := msgs.Append(context.Background(), &domain.Message{
				ID:             uuid.New(),
				ConversationID: conv.ID,
				SenderID:       owner,
				Content:        &content,
				CreatedAt:      time.Now(),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	after := int64(0)
	page, err := msgs.List(context.Background(), conv.ID, repository.PageQuery{After: &after, Limit: 100})
	require.NoError(t, err)
	require.Len(t, page, 50)
	for i, m := range page {
		assert.Equal(t, int64(i+1), m.Seq)
	}

	events, err := convs.ListEvents(context.Background(), conv.ID, 0, 100)
	require.NoError(t, err)
	require.Len(t, events, 50)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Sequence)
	}
}

func TestAppend_RejectsReusedClientID(t *testing.T) {
	db := NewDB()
	conv := newGroup(t, NewConversationRepo(db), uuid.New(), 3)
	msgs := NewMessageRepo(db)
	sender := uuid.New()
	clientID := "c-1"

	msg := &domain.Message{ID: uuid.New(), ConversationID: conv.ID, SenderID: sender, ClientMsgID: &clientID, CreatedAt: time.Now()}
	_, err := msgs.Append(context.Background(), msg)
	require.NoError(t, err)

	dup := &domain.Message{ID: uuid.New(), ConversationID: conv.ID, SenderID: sender, ClientMsgID: &clientID, CreatedAt: time.Now()}
	_, err = msgs.Append(context.Background(), dup)
	assert.ErrorIs(t, err, repository.ErrConflict)

	got, err := msgs.GetByClientID(context.Background(), conv.ID, sender, clientID)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, got.ID)
}

func TestPresenceStore_CountsConnections(t *testing.T) {
	s := NewPresenceStore()
	ctx := context.Background()
	user := uuid.New()

	p, err := s.Get(ctx, user)
	require.NoError(t, err)
	assert.False(t, p.Online)
	assert.Nil(t, p.LastSeenAt)

	online, _ := s.Connect(ctx, user, time.Minute)
	assert.True(t, online)
	online, _ = s.Connect(ctx, user, time.Minute)
	assert.False(t, online)

	offline, _ := s.Disconnect(ctx, user, time.Now())
	assert.False(t, offline)
	offline, _ = s.Disconnect(ctx, user, time.Now())
	assert.True(t, offline)

	p, err = s.Get(ctx, user)
	require.NoError(t, err)
	assert.False(t, p.Online)
	assert.NotNil(t, p.LastSeenAt)
}

func TestPresenceStore_ExpiresWithoutRefresh(t *testing.T) {
	s := NewPresenceStore()
	now := time.Now()
	s.now = func() time.Time { return now }
	user := uuid.New()

	_, err := s.Connect(context.Background(), user, time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	p, err := s.Get(context.Background(), user)
	require.NoError(t, err)
	assert.False(t, p.Online)
	assert.NotNil(t, p.LastSeenAt)
}

func TestPresenceStore_LastSeenOnlyWhenGoingOffline(t *testing.T) {
	s := NewPresenceStore()
	ctx := context.Background()
	user := uuid.New()

	_, err := s.Connect(ctx, user, time.Minute)
	require.NoError(t, err)
	_, err = s.Refresh(ctx, user, time.Minute)
	require.NoError(t, err)

	p, err := s.Get(ctx, user)
	require.NoError(t, err)
	assert.True(t, p.Online)
	assert.Nil(t, p.LastSeenAt)

	left := time.Now().Add(-time.Hour).UTC()
	_, err = s.Disconnect(ctx, user, left)
	require.NoError(t, err)
	_, err = s.Connect(ctx, user, time.Minute)
	require.NoError(t, err)

	p, err = s.Get(ctx, user)
	require.NoError(t, err)
	assert.True(t, p.Online)
	require.NotNil(t, p.LastSeenAt)
	assert.True(t, left.Equal(*p.LastSeenAt))
}

func TestTypingStore_EvictsExpired(t *testing.T) {
	s := NewTypingStore()
	ctx := context.Background()
	conv := uuid.New()
	now := time.Now()

	require.NoError(t, s.Set(ctx, &domain.TypingIndicator{ConversationID: conv, UserID: uuid.New(), ExpiresAt: now.Add(time.Second)}))
	require.NoError(t, s.Set(ctx, &domain.TypingIndicator{ConversationID: conv, UserID: uuid.New(), ExpiresAt: now.Add(-time.Second)}))

	active, err := s.ListActive(ctx, conv, now)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
