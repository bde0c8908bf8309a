package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/relay/internal/apperr"
	"github.com/vedran77/relay/internal/domain"
)

func int64Ptr(v int64) *int64 { return &v }

func TestSend_Validation(t *testing.T) {
	env := newTestEnv(t)
	alice, bob, eve := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "eve")
	conv := env.direct(t, alice, bob)

	tests := []struct {
		name   string
		sender uuid.UUID
		input  SendMessageInput
		kind   apperr.Kind
	}{
		{"empty", alice, SendMessageInput{}, apperr.KindValidation},
		{"too long", alice, SendMessageInput{Content: strings.Repeat("a", 4001)}, apperr.KindValidation},
		{"too many media", alice, SendMessageInput{MediaRefs: make([]string, 11)}, apperr.KindValidation},
		{"not a member", eve, SendMessageInput{Content: "hi"}, apperr.KindPermission},
		{"unknown reply", alice, SendMessageInput{Content: "hi", ReplyToID: func() *uuid.UUID { id := uuid.New(); return &id }()}, apperr.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.messages.Send(context.Background(), tt.sender, conv.ID, tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	_, err := env.messages.Send(context.Background(), alice, uuid.New(), SendMessageInput{Content: "hi"})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestSend_MediaOnlyAndReply(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	conv := env.direct(t, alice, bob)

	media, err := env.messages.Send(ctx, alice, conv.ID, SendMessageInput{MediaRefs: []string{"uploads/cat.png"}})
	require.NoError(t, err)
	assert.Nil(t, media.Content)

	reply, err := env.messages.Send(ctx, bob, conv.ID, SendMessageInput{Content: "cute", ReplyToID: &media.ID})
	require.NoError(t, err)
	assert.Equal(t, media.ID, *reply.ReplyToID)

	other := env.direct(t, alice, env.user(t, "carol"))
	_, err = env.messages.Send(ctx, alice, other.ID, SendMessageInput{Content: "x", ReplyToID: &media.ID})
	assert.ErrorIs(t, err, ErrReplyNotFound)
}

func TestSend_ClientMsgIDIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	conv := env.direct(t, alice, bob)

	clientID := "c-1"
	first, err := env.messages.Send(ctx, alice, conv.ID, SendMessageInput{Content: "hi", ClientMsgID: &clientID})
	require.NoError(t, err)
	again, err := env.messages.Send(ctx, alice, conv.ID, SendMessageInput{Content: "hi", ClientMsgID: &clientID})
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, env.notifier.ofType(domain.EventMessageNew), 1)
}

func TestSend_ConcurrentSendersGetDenseSequences(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "owner")
	group, err := env.convs.CreateGroup(ctx, owner, CreateGroupInput{Name: "busy"})
	require.NoError(t, err)

	senders := []uuid.UUID{owner}
	for i := 0; i < 4; i++ {
		u := env.user(t, "member")
		_, err := env.convs.JoinGroup(ctx, u, group.ID)
		require.NoError(t, err)
		senders = append(senders, u)
	}

	const perSender = 25
	var wg sync.WaitGroup
	for _, s := range senders {
		wg.Add(1)
		go func(sender uuid.UUID) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := env.messages.Send(ctx, sender, group.ID, SendMessageInput{Content: "msg"})
				assert.NoError(t, err)
			}
		}(s)
	}
	wg.Wait()

	total := len(senders) * perSender
	var seqs []int64
	var after int64
	for {
		page, err := env.messages.List(ctx, owner, group.ID, ListMessagesQuery{After: &after, Limit: 30})
		require.NoError(t, err)
		for _, m := range page.Messages {
			seqs = append(seqs, m.Seq)
		}
		if !page.HasMore {
			break
		}
		after = *page.NextCursor
	}

	require.Len(t, seqs, total)
	for i, seq := range seqs {
		assert.Equal(t, int64(i+1), seq)
	}
}

func TestList_BackScrollIsDenseAndDescending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	conv := env.direct(t, alice, bob)

	for i := 0; i < 7; i++ {
		env.send(t, alice, conv.ID, "m")
	}

	first, err := env.messages.List(ctx, bob, conv.ID, ListMessagesQuery{Limit: 3})
	require.NoError(t, err)
	assert.True(t, first.HasMore)
	assert.Equal(t, []int64{7, 6, 5}, seqsOf(first.Messages))

	second, err := env.messages.List(ctx, bob, conv.ID, ListMessagesQuery{Before: first.NextCursor, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 3, 2}, seqsOf(second.Messages))

	last, err := env.messages.List(ctx, bob, conv.ID, ListMessagesQuery{Before: second.NextCursor, Limit: 3})
	require.NoError(t, err)
	assert.False(t, last.HasMore)
	assert.Nil(t, last.NextCursor)
	assert.Equal(t, []int64{1}, seqsOf(last.Messages))

	_, err = env.messages.List(ctx, bob, conv.ID, ListMessagesQuery{Before: int64Ptr(3), After: int64Ptr(1)})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func seqsOf(msgs []domain.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.Seq
	}
	return out
}

func TestEditThenList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	conv := env.direct(t, alice, bob)
	msg := env.send(t, alice, conv.ID, "helo")

	_, err := env.messages.Edit(ctx, bob, msg.ID, EditMessageInput{Content: "hijack"})
	assert.ErrorIs(t, err, ErrNotMessageOwner)

	edited, err := env.messages.Edit(ctx, alice, msg.ID, EditMessageInput{Content: "hello"})
	require.NoError(t, err)
	assert.True(t, edited.Edited)
	assert.NotNil(t, edited.EditedAt)

	page, err := env.messages.List(ctx, bob, conv.ID, ListMessagesQuery{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "hello", *page.Messages[0].Content)
	assert.True(t, page.Messages[0].Edited)
	assert.Len(t, env.notifier.ofType(domain.EventMessageEdited), 1)
}

func TestDeleteThenList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	conv := env.direct(t, alice, bob)
	msg, err := env.messages.Send(ctx, alice, conv.ID, SendMessageInput{Content: "oops", MediaRefs: []string{"m/1"}})
	require.NoError(t, err)

	_, err = env.messages.Delete(ctx, bob, msg.ID)
	assert.ErrorIs(t, err, ErrNotMessageOwner)

	_, err = env.messages.Delete(ctx, alice, msg.ID)
	require.NoError(t, err)

	page, err := env.messages.List(ctx, bob, conv.ID, ListMessagesQuery{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	tomb := page.Messages[0]
	assert.True(t, tomb.Deleted)
	assert.Nil(t, tomb.Content)
	assert.Empty(t, tomb.MediaRefs)
	assert.Equal(t, msg.ID, tomb.ID)
	assert.Equal(t, msg.Seq, tomb.Seq)
	assert.Equal(t, alice, *tomb.DeletedBy)

	_, err = env.messages.Delete(ctx, alice, msg.ID)
	assert.ErrorIs(t, err, ErrMessageNotFound)
	_, err = env.messages.Edit(ctx, alice, msg.ID, EditMessageInput{Content: "again"})
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestDelete_GroupAdminMayDeleteOthers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner, member := env.user(t, "owner"), env.user(t, "member")
	group, err := env.convs.CreateGroup(ctx, owner, CreateGroupInput{Name: "g"})
	require.NoError(t, err)
	_, err = env.convs.JoinGroup(ctx, member, group.ID)
	require.NoError(t, err)

	msg := env.send(t, member, group.ID, "spam")
	deleted, err := env.messages.Delete(ctx, owner, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, owner, *deleted.DeletedBy)
}
