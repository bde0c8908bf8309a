package natsbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/metrics"
)

const dispatchTimeout = 2 * time.Second

// Dispatcher accepts events for local fan-out.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt *domain.Event) error
}

// Subscriber feeds every event on the bus into the local hub. It does not
// use a queue group: each node must see each event.
type Subscriber struct {
	nc           *nats.Conn
	subject      string
	dispatcher   Dispatcher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	subscription *nats.Subscription
}

func NewSubscriber(nc *nats.Conn, subject string, dispatcher Dispatcher, m *metrics.Metrics) *Subscriber {
	return &Subscriber{
		nc:         nc,
		subject:    subject,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     slog.Default().With("component", "nats_subscriber"),
	}
}

func (s *Subscriber) Start() error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		s.handle(msg.Data)
	})
	if err != nil {
		return err
	}

	s.subscription = sub
	s.logger.Info("NATS subscriber started", "subject", s.subject)
	return nil
}

func (s *Subscriber) Stop() {
	if s.subscription == nil {
		return
	}
	if err := s.subscription.Unsubscribe(); err != nil {
		s.logger.Warn("Failed to unsubscribe", "error", err)
	}
}

// handle decodes one event. The hub reads lost durable events back from the
// log on a gap or on its periodic tail check, so failures are only counted.
func (s *Subscriber) handle(data []byte) {
	var evt domain.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		s.metrics.EventDropped("decode")
		s.logger.Error("Failed to unmarshal event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	if err := s.dispatcher.Dispatch(ctx, &evt); err != nil {
		s.metrics.EventDropped("dispatch")
		s.logger.Warn("Failed to dispatch event", "type", evt.Type, "error", err)
	}
}
