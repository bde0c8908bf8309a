package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
	"github.com/vedran77/relay/internal/workerpool"
)

// UnreadDispatcher pushes server-computed unread counts to members after the
// conversation log changes. Counts come from committed state only.
type UnreadDispatcher struct {
	events
	convRepo    repository.ConversationRepository
	receiptRepo repository.ReceiptRepository
	pool        *workerpool.Pool
}

// NewUnreadDispatcher runs dispatch on pool. A nil pool dispatches inline.
func NewUnreadDispatcher(convRepo repository.ConversationRepository, receiptRepo repository.ReceiptRepository, pool *workerpool.Pool) *UnreadDispatcher {
	return &UnreadDispatcher{
		events:      events{logger: slog.Default().With("component", "unread")},
		convRepo:    convRepo,
		receiptRepo: receiptRepo,
		pool:        pool,
	}
}

// MessageAppended notifies every member except the sender.
func (d *UnreadDispatcher) MessageAppended(ctx context.Context, msg *domain.Message) {
	if d == nil {
		return
	}
	convID, senderID, seq := msg.ConversationID, msg.SenderID, msg.Seq
	d.submit(ctx, func(ctx context.Context) {
		members, err := d.convRepo.ListMembers(ctx, convID)
		if err != nil {
			d.log().Error("Failed to list members for unread counts", "conversation_id", convID, "error", err)
			return
		}
		for _, m := range members {
			if m.UserID == senderID {
				continue
			}
			d.notify(ctx, convID, m.UserID, seq)
		}
	})
}

// CursorMoved notifies the reader's other connections of their new count.
func (d *UnreadDispatcher) CursorMoved(ctx context.Context, conversationID, userID uuid.UUID) {
	if d == nil {
		return
	}
	d.submit(ctx, func(ctx context.Context) {
		conv, err := d.convRepo.GetByID(ctx, conversationID)
		if err != nil || conv == nil {
			return
		}
		d.notify(ctx, conversationID, userID, conv.LastMessageSeq)
	})
}

func (d *UnreadDispatcher) submit(ctx context.Context, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	if d.pool == nil {
		fn(ctx)
		return
	}
	if !d.pool.TrySubmit(func() { fn(ctx) }) {
		d.metrics.EventDropped("unread_queue_full")
		d.log().Warn("Unread queue full, dropping badge update")
	}
}

func (d *UnreadDispatcher) notify(ctx context.Context, conversationID, userID uuid.UUID, lastSeq int64) {
	count, err := d.receiptRepo.CountUnread(ctx, conversationID, userID)
	if err != nil {
		d.log().Error("Failed to count unread", "conversation_id", conversationID, "user_id", userID, "error", err)
		return
	}

	evt, err := domain.NewEvent(domain.EventUnreadUpdated, conversationID, uuid.Nil, domain.UnreadPayload{
		ConversationID: conversationID,
		UnreadCount:    count,
		LastMessageSeq: lastSeq,
	})
	if err != nil {
		return
	}
	evt.TargetUserID = userID
	d.publish(ctx, evt)
}
