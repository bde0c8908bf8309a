package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/apperr"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/metrics"
)

var errHubClosed = errors.New("ws hub: closed")

const backfillTimeout = 10 * time.Second

// EventReplayer reads a conversation's durable log on behalf of a member.
type EventReplayer interface {
	ReplayEvents(ctx context.Context, userID, conversationID uuid.UUID, after int64, limit int) ([]domain.Event, error)
	HeadSequence(ctx context.Context, userID, conversationID uuid.UUID) (int64, error)
}

type TypingHandler interface {
	SetTyping(ctx context.Context, userID, conversationID uuid.UUID) (*domain.TypingIndicator, error)
	StopTyping(ctx context.Context, userID, conversationID uuid.UUID) error
}

type PresenceTracker interface {
	Connected(ctx context.Context, userID uuid.UUID) error
	Disconnected(ctx context.Context, userID uuid.UUID) error
	Heartbeat(ctx context.Context, userID uuid.UUID) error
}

type Config struct {
	SendBuffer  int
	GapTimeout  time.Duration
	ReplayBatch int
	// TailInterval is how often an up-to-date subscription re-reads the log
	// past its last sequence.
	TailInterval time.Duration
}

// Hub owns every connection and subscription on this node. All state is
// touched only by the Run goroutine.
type Hub struct {
	cfg      Config
	replayer EventReplayer
	typing   TypingHandler
	presence PresenceTracker
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	clients map[*Client]struct{}
	byUser  map[uuid.UUID]map[*Client]struct{}
	subs    map[uuid.UUID]map[*Client]*subscription

	register    chan *Client
	unregister  chan *Client
	subscribe   chan *subscribeReq
	unsubscribe chan *unsubscribeReq
	inbound     chan *domain.Event
	backfilled  chan *backfillResult
	done        chan struct{}
}

type subscribeReq struct {
	client         *Client
	conversationID uuid.UUID
	last           int64
	head           int64
}

type unsubscribeReq struct {
	client         *Client
	conversationID uuid.UUID
}

type backfillResult struct {
	sub    *subscription
	events []domain.Event
	err    error
}

// NewHub builds a hub. typing and presence may be nil.
func NewHub(replayer EventReplayer, typing TypingHandler, presence PresenceTracker, cfg Config) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = sendBufSize
	}
	if cfg.GapTimeout <= 0 {
		cfg.GapTimeout = 2 * time.Second
	}
	if cfg.ReplayBatch <= 0 {
		cfg.ReplayBatch = 200
	}
	if cfg.TailInterval <= 0 {
		cfg.TailInterval = 30 * time.Second
	}
	return &Hub{
		cfg:         cfg,
		replayer:    replayer,
		typing:      typing,
		presence:    presence,
		logger:      slog.Default().With("component", "ws_hub"),
		now:         time.Now,
		clients:     make(map[*Client]struct{}),
		byUser:      make(map[uuid.UUID]map[*Client]struct{}),
		subs:        make(map[uuid.UUID]map[*Client]*subscription),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan *subscribeReq),
		unsubscribe: make(chan *unsubscribeReq),
		inbound:     make(chan *domain.Event, 1024),
		backfilled:  make(chan *backfillResult),
		done:        make(chan struct{}),
	}
}

func (h *Hub) SetMetrics(m *metrics.Metrics) {
	h.metrics = m
}

// Run is the hub's event loop. It returns when ctx is cancelled, closing
// every connection.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.GapTimeout / 2)
	defer func() {
		ticker.Stop()
		h.shutdown()
	}()

	h.logger.Info("Hub started", "gap_timeout", h.cfg.GapTimeout, "send_buffer", h.cfg.SendBuffer)

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client, false)

		case req := <-h.subscribe:
			h.addSubscription(req)

		case req := <-h.unsubscribe:
			if sub, ok := req.client.subs[req.conversationID]; ok {
				h.dropSubscription(sub)
				h.send(req.client, controlFrame(TypeUnsubscribed, req.conversationID, ConversationPayload{ConversationID: req.conversationID}))
			}

		case evt := <-h.inbound:
			h.route(evt)

		case res := <-h.backfilled:
			h.applyBackfill(res)

		case <-ticker.C:
			h.checkGaps()
		}
	}
}

// Register adds a connection. It reports false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Subscribe checks membership, then starts delivery of conversationID to c.
// Without since, delivery starts after the current head of the log.
func (h *Hub) Subscribe(ctx context.Context, c *Client, conversationID uuid.UUID, since *int64) error {
	head, err := h.replayer.HeadSequence(ctx, c.userID, conversationID)
	if err != nil {
		return err
	}

	last := head
	if since != nil && *since < head {
		last = max(*since, 0)
	}

	req := &subscribeReq{client: c, conversationID: conversationID, last: last, head: head}
	select {
	case h.subscribe <- req:
		return nil
	case <-h.done:
		return apperr.ErrTransport.Wrap(errHubClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Unsubscribe(c *Client, conversationID uuid.UUID) {
	select {
	case h.unsubscribe <- &unsubscribeReq{client: c, conversationID: conversationID}:
	case <-h.done:
	}
}

// Dispatch hands a committed event to the hub for fan-out.
func (h *Hub) Dispatch(ctx context.Context, evt *domain.Event) error {
	select {
	case <-h.done:
		return apperr.ErrTransport.Wrap(errHubClosed)
	default:
	}
	select {
	case h.inbound <- evt:
		return nil
	case <-h.done:
		return apperr.ErrTransport.Wrap(errHubClosed)
	case <-ctx.Done():
		return apperr.ErrTransport.Wrap(ctx.Err())
	}
}

func (h *Hub) addClient(c *Client) {
	h.clients[c] = struct{}{}
	conns, ok := h.byUser[c.userID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.byUser[c.userID] = conns
	}
	conns[c] = struct{}{}
	h.metrics.ConnectionOpened()
	h.logger.Debug("Client connected", "user_id", c.userID, "connections", len(h.clients))
}

func (h *Hub) removeClient(c *Client, slow bool) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for _, sub := range c.subs {
		h.dropSubscription(sub)
	}
	if conns := h.byUser[c.userID]; conns != nil {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.byUser, c.userID)
		}
	}
	close(c.send)
	close(c.done)
	h.metrics.ConnectionClosed()

	if slow {
		h.metrics.SlowConsumer()
		h.logger.Warn("Disconnecting slow consumer", "user_id", c.userID)
		return
	}
	h.logger.Debug("Client disconnected", "user_id", c.userID, "connections", len(h.clients))
}

func (h *Hub) shutdown() {
	close(h.done)
	for c := range h.clients {
		close(c.send)
		close(c.done)
	}
	h.clients = make(map[*Client]struct{})
	h.logger.Info("Hub stopped")
}

// send queues data without blocking. A full buffer disconnects the client;
// it must resubscribe with since to catch up.
func (h *Hub) send(c *Client, data []byte) bool {
	if data == nil {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		h.removeClient(c, true)
		return false
	}
}

func (h *Hub) route(evt *domain.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("Failed to encode event", "type", evt.Type, "error", err)
		return
	}

	switch {
	case evt.TargetUserID != uuid.Nil:
		// Connections watching the conversation already see its log.
		for c := range h.byUser[evt.TargetUserID] {
			if evt.ConversationID != uuid.Nil {
				if _, watching := c.subs[evt.ConversationID]; watching {
					continue
				}
			}
			if h.send(c, data) {
				h.metrics.EventDelivered(evt.Type)
			}
		}

	case evt.IsDurable():
		f := newFrame(evt, data)
		for _, sub := range h.subs[evt.ConversationID] {
			h.offer(sub, f)
		}

	case evt.ConversationID != uuid.Nil:
		for c := range h.subs[evt.ConversationID] {
			if c.userID == evt.ActorID {
				continue
			}
			if h.send(c, data) {
				h.metrics.EventDelivered(evt.Type)
			}
		}

	default:
		for c := range h.clients {
			if c.userID == evt.ActorID {
				continue
			}
			if h.send(c, data) {
				h.metrics.EventDelivered(evt.Type)
			}
		}
	}
}
