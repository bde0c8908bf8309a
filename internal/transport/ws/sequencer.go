package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/apperr"
	"github.com/vedran77/relay/internal/domain"
)

// maxPending bounds the out-of-order buffer of one subscription. Frames past
// it are dropped and recovered by backfill.
const maxPending = 1024

// frame is an encoded log event.
type frame struct {
	seq       int64
	eventType string
	data      []byte
	// departed is the user a member.left event removes.
	departed uuid.UUID
}

func newFrame(evt *domain.Event, data []byte) *frame {
	f := &frame{seq: evt.Sequence, eventType: evt.Type, data: data}
	if evt.Type == domain.EventMemberLeft {
		var p domain.MemberPayload
		if err := json.Unmarshal(evt.Payload, &p); err == nil {
			f.departed = p.UserID
		}
	}
	return f
}

// subscription delivers one conversation's log to one client in sequence
// order, exactly once per sequence.
type subscription struct {
	client         *Client
	conversationID uuid.UUID

	last        int64
	target      int64
	pending     map[int64]*frame
	gapSince    time.Time
	backfilling bool
	// checkedAt is when the log was last read for this subscription.
	checkedAt time.Time
}

func (h *Hub) addSubscription(req *subscribeReq) {
	c := req.client
	if _, ok := h.clients[c]; !ok {
		return
	}
	if old, ok := c.subs[req.conversationID]; ok {
		h.dropSubscription(old)
	}

	sub := &subscription{
		client:         c,
		conversationID: req.conversationID,
		last:           req.last,
		target:         req.head,
		pending:        make(map[int64]*frame),
	}
	subs, ok := h.subs[req.conversationID]
	if !ok {
		subs = make(map[*Client]*subscription)
		h.subs[req.conversationID] = subs
	}
	subs[c] = sub
	c.subs[req.conversationID] = sub
	h.metrics.SubscriptionsChanged(1)

	if !h.send(c, controlFrame(TypeSubscribed, req.conversationID, SubscribedPayload{
		ConversationID: req.conversationID,
		Sequence:       req.last,
		Head:           req.head,
	})) {
		return
	}

	// The head was read before the subscription existed; anything committed
	// in between was fanned out to nobody and is only in the log.
	if sub.last < sub.target {
		sub.gapSince = h.now()
	}
	h.startBackfill(sub)
}

func (h *Hub) dropSubscription(sub *subscription) {
	c := sub.client
	if current, ok := c.subs[sub.conversationID]; !ok || current != sub {
		return
	}
	delete(c.subs, sub.conversationID)
	if subs := h.subs[sub.conversationID]; subs != nil {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.subs, sub.conversationID)
		}
	}
	h.metrics.SubscriptionsChanged(-1)
}

func (h *Hub) active(sub *subscription) bool {
	current, ok := sub.client.subs[sub.conversationID]
	return ok && current == sub
}

// offer delivers f if it is next in sequence, buffers it if it is ahead and
// drops it if it was already delivered.
func (h *Hub) offer(sub *subscription, f *frame) {
	if f.seq <= sub.last {
		h.metrics.EventDropped("duplicate")
		return
	}
	if f.seq > sub.target {
		sub.target = f.seq
	}

	if f.seq != sub.last+1 {
		if _, ok := sub.pending[f.seq]; !ok && len(sub.pending) < maxPending {
			sub.pending[f.seq] = f
		}
		if sub.gapSince.IsZero() {
			sub.gapSince = h.now()
		}
		return
	}

	for f != nil {
		if !h.send(sub.client, f.data) {
			return
		}
		h.metrics.EventDelivered(f.eventType)
		sub.last = f.seq

		if f.departed == sub.client.userID {
			h.dropSubscription(sub)
			return
		}

		next, ok := sub.pending[sub.last+1]
		if ok {
			delete(sub.pending, sub.last+1)
		}
		f = next
	}

	if sub.last >= sub.target {
		sub.gapSince = time.Time{}
	} else {
		sub.gapSince = h.now()
	}
}

func (h *Hub) checkGaps() {
	now := h.now()
	for _, subs := range h.subs {
		for _, sub := range subs {
			if sub.backfilling {
				continue
			}
			if sub.last < sub.target {
				if now.Sub(sub.gapSince) >= h.cfg.GapTimeout {
					h.startBackfill(sub)
				}
				continue
			}
			// A lost newest event leaves no gap behind it.
			if now.Sub(sub.checkedAt) >= h.cfg.TailInterval {
				h.startBackfill(sub)
			}
		}
	}
}

// startBackfill reads the missing range from the log off the hub goroutine.
func (h *Hub) startBackfill(sub *subscription) {
	sub.backfilling = true
	sub.checkedAt = h.now()

	userID, conversationID, after := sub.client.userID, sub.conversationID, sub.last
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backfillTimeout)
		defer cancel()

		evts, err := h.replayer.ReplayEvents(ctx, userID, conversationID, after, h.cfg.ReplayBatch)
		select {
		case h.backfilled <- &backfillResult{sub: sub, events: evts, err: err}:
		case <-h.done:
		}
	}()
}

func (h *Hub) applyBackfill(res *backfillResult) {
	sub := res.sub
	sub.backfilling = false
	if !h.active(sub) {
		return
	}

	if res.err != nil {
		kind := apperr.KindOf(res.err)
		if kind == apperr.KindPermission || kind == apperr.KindNotFound {
			h.dropSubscription(sub)
			h.send(sub.client, errorFrame(res.err))
			return
		}
		h.logger.Warn("Backfill failed", "conversation_id", sub.conversationID, "user_id", sub.client.userID, "error", res.err)
		sub.gapSince = h.now()
		return
	}

	if len(res.events) > 0 {
		h.metrics.Backfilled()
	}
	for i := range res.events {
		evt := &res.events[i]
		data, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		h.offer(sub, newFrame(evt, data))
		if !h.active(sub) {
			return
		}
	}

	switch {
	case sub.last >= sub.target:
	case len(res.events) >= h.cfg.ReplayBatch:
		h.startBackfill(sub)
	default:
		sub.gapSince = h.now()
	}
}

func errorFrame(err error) []byte {
	payload := ErrorPayload{Code: string(apperr.KindInternal), Message: apperr.ErrInternal.Message}
	if appErr, ok := apperr.As(err); ok {
		payload = ErrorPayload{Code: appErr.Code, Message: appErr.Message}
	}
	return controlFrame(TypeError, uuid.Nil, payload)
}
