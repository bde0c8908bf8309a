package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/relay/internal/apperr"
	"github.com/vedran77/relay/internal/domain"
)

func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }

func TestGetOrCreateDirect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	first, created, err := env.convs.GetOrCreateDirect(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.KindDirect, first.Kind)

	second, created, err := env.convs.GetOrCreateDirect(ctx, bob, alice)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	_, _, err = env.convs.GetOrCreateDirect(ctx, alice, alice)
	assert.ErrorIs(t, err, ErrSelfConversation)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, _, err = env.convs.GetOrCreateDirect(ctx, alice, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGetOrCreateDirect_ConcurrentCallsConverge(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	const callers = 20
	ids := make([]uuid.UUID, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := alice, bob
			if i%2 == 1 {
				a, b = bob, alice
			}
			conv, _, err := env.convs.GetOrCreateDirect(context.Background(), a, b)
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestCreateGroup_Validation(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "owner")

	tests := []struct {
		name  string
		input CreateGroupInput
		field string
	}{
		{"empty name", CreateGroupInput{Name: "  "}, "name"},
		{"zero capacity", CreateGroupInput{Name: "g", MaxMembers: intPtr(0)}, "max_members"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.convs.CreateGroup(context.Background(), owner, tt.input)
			appErr, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.KindValidation, appErr.Kind)
			assert.Contains(t, appErr.Fields, tt.field)
		})
	}
}

func TestCreateGroup_OwnerIsAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")

	group, err := env.convs.CreateGroup(ctx, owner, CreateGroupInput{Name: " Study Group "})
	require.NoError(t, err)
	assert.Equal(t, "Study Group", *group.Name)
	assert.Equal(t, testLimits.DefaultGroupSize, group.MaxMembers)
	assert.True(t, group.IsPublic)

	members, err := env.convs.ListMembers(ctx, owner, group.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, domain.RoleAdmin, members[0].Role)
}

func TestJoinGroup_CapacityAndDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")

	group, err := env.convs.CreateGroup(ctx, owner, CreateGroupInput{Name: "small", MaxMembers: intPtr(3)})
	require.NoError(t, err)

	u1, u2, u3 := env.user(t, "u1"), env.user(t, "u2"), env.user(t, "u3")

	_, err = env.convs.JoinGroup(ctx, u1, group.ID)
	require.NoError(t, err)
	_, err = env.convs.JoinGroup(ctx, u2, group.ID)
	require.NoError(t, err)

	_, err = env.convs.JoinGroup(ctx, u3, group.ID)
	assert.ErrorIs(t, err, ErrGroupFull)
	assert.True(t, apperr.IsKind(err, apperr.KindCapacity))

	_, err = env.convs.JoinGroup(ctx, u1, group.ID)
	assert.ErrorIs(t, err, ErrAlreadyMember)

	assert.Len(t, env.notifier.ofType(domain.EventMemberJoined), 2)
}

func TestJoinGroup_PrivateAndDirect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner, outsider := env.user(t, "owner"), env.user(t, "outsider")

	private, err := env.convs.CreateGroup(ctx, owner, CreateGroupInput{Name: "private", IsPublic: boolPtr(false)})
	require.NoError(t, err)

	_, err = env.convs.JoinGroup(ctx, outsider, private.ID)
	assert.ErrorIs(t, err, ErrPrivateGroup)

	_, err = env.convs.AddMember(ctx, owner, private.ID, outsider)
	require.NoError(t, err)

	peer := env.user(t, "peer")
	direct := env.direct(t, owner, peer)
	_, err = env.convs.JoinGroup(ctx, outsider, direct.ID)
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestAddMember_RequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner, member, other := env.user(t, "owner"), env.user(t, "member"), env.user(t, "other")

	group, err := env.convs.CreateGroup(ctx, owner, CreateGroupInput{Name: "g"})
	require.NoError(t, err)
	_, err = env.convs.JoinGroup(ctx, member, group.ID)
	require.NoError(t, err)

	_, err = env.convs.AddMember(ctx, member, group.ID, other)
	assert.ErrorIs(t, err, ErrNotAdmin)

	_, err = env.convs.AddMember(ctx, owner, group.ID, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLeaveGroup_PromotesEarliestMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner, first, second := env.user(t, "owner"), env.user(t, "first"), env.user(t, "second")

	group, err := env.convs.CreateGroup(ctx, owner, CreateGroupInput{Name: "g"})
	require.NoError(t, err)
	_, err = env.convs.JoinGroup(ctx, first, group.ID)
	require.NoError(t, err)
	_, err = env.convs.JoinGroup(ctx, second, group.ID)
	require.NoError(t, err)

	require.NoError(t, env.convs.LeaveGroup(ctx, owner, group.ID))

	members, err := env.convs.ListMembers(ctx, first, group.ID)
	require.NoError(t, err)
	roles := map[uuid.UUID]string{}
	for _, m := range members {
		roles[m.UserID] = m.Role
	}
	assert.Equal(t, domain.RoleAdmin, roles[first])
	assert.Equal(t, domain.RoleMember, roles[second])

	err = env.convs.LeaveGroup(ctx, owner, group.ID)
	assert.ErrorIs(t, err, ErrMemberNotFound)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestRemoveMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner, a, b := env.user(t, "owner"), env.user(t, "a"), env.user(t, "b")

	group, err := env.convs.CreateGroup(ctx, owner, CreateGroupInput{Name: "g"})
	require.NoError(t, err)
	for _, u := range []uuid.UUID{a, b} {
		_, err = env.convs.JoinGroup(ctx, u, group.ID)
		require.NoError(t, err)
	}

	err = env.convs.RemoveMember(ctx, a, group.ID, b)
	assert.ErrorIs(t, err, ErrNotAdmin)
	assert.True(t, apperr.IsKind(err, apperr.KindPermission))

	require.NoError(t, env.convs.RemoveMember(ctx, owner, group.ID, b))
	require.NoError(t, env.convs.RemoveMember(ctx, a, group.ID, a))

	left := env.notifier.ofType(domain.EventMemberLeft)
	assert.Len(t, left, 2)
}

func TestUpdateGroup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner, member := env.user(t, "owner"), env.user(t, "member")

	group, err := env.convs.CreateGroup(ctx, owner, CreateGroupInput{Name: "g"})
	require.NoError(t, err)
	_, err = env.convs.JoinGroup(ctx, member, group.ID)
	require.NoError(t, err)

	_, err = env.convs.UpdateGroup(ctx, member, group.ID, UpdateGroupInput{Name: strPtr("x")})
	assert.ErrorIs(t, err, ErrNotAdmin)

	_, err = env.convs.UpdateGroup(ctx, owner, group.ID, UpdateGroupInput{MaxMembers: intPtr(1)})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = env.convs.UpdateGroup(ctx, owner, group.ID, UpdateGroupInput{Name: strPtr("")})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	updated, err := env.convs.UpdateGroup(ctx, owner, group.ID, UpdateGroupInput{
		Name:       strPtr("renamed"),
		MaxMembers: intPtr(2),
		IsPublic:   boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", *updated.Name)
	assert.Equal(t, 2, updated.MaxMembers)
	assert.False(t, updated.IsPublic)
	assert.Len(t, env.notifier.ofType(domain.EventConversationUpdated), 1)
}

func TestReplayEvents_ReturnsLogAfterCursor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, eve := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "eve")
	conv := env.direct(t, alice, bob)

	for i := 0; i < 5; i++ {
		env.send(t, alice, conv.ID, "hello")
	}

	head, err := env.convs.HeadSequence(ctx, bob, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), head)

	evts, err := env.convs.ReplayEvents(ctx, bob, conv.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, evts, 3)
	for i, e := range evts {
		assert.Equal(t, int64(3+i), e.Sequence)
		assert.Equal(t, domain.EventMessageNew, e.Type)
	}

	_, err = env.convs.ReplayEvents(ctx, eve, conv.ID, 0, 0)
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestList_OrdersByActivityWithUnread(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, carol := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "carol")

	withBob := env.direct(t, alice, bob)
	withCarol := env.direct(t, alice, carol)

	env.send(t, bob, withBob.ID, "one")
	env.send(t, carol, withCarol.ID, "two")
	env.send(t, carol, withCarol.ID, "three")

	list, err := env.convs.List(ctx, alice, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, withCarol.ID, list[0].ID)
	assert.Equal(t, int64(2), list[0].UnreadCount)
	assert.Equal(t, withBob.ID, list[1].ID)
	assert.Equal(t, int64(1), list[1].UnreadCount)
	require.NotNil(t, list[0].PeerID)
	assert.Equal(t, carol, *list[0].PeerID)
}
