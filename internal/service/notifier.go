package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/metrics"
)

// Notifier delivers committed events to subscribers.
type Notifier interface {
	Publish(ctx context.Context, evt *domain.Event) error
}

// events is embedded by every service that emits realtime events. A write is
// committed before its event is published, so publish failures are logged and
// subscribers reconcile through the event log.
type events struct {
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	budget   time.Duration
}

const defaultPublishBudget = 2 * time.Second

// SetNotifier sets the real-time notifier (optional dependency).
func (e *events) SetNotifier(n Notifier) {
	e.notifier = n
}

func (e *events) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// SetPublishBudget bounds how long a publish and its retry may block.
func (e *events) SetPublishBudget(d time.Duration) {
	e.budget = d
}

func (e *events) publish(ctx context.Context, evt *domain.Event) {
	if evt == nil || e.notifier == nil {
		return
	}
	budget := e.budget
	if budget <= 0 {
		budget = defaultPublishBudget
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget)
	defer cancel()

	err := e.notifier.Publish(ctx, evt)
	if err != nil {
		err = e.notifier.Publish(ctx, evt)
	}
	if err != nil {
		e.metrics.PublishFailed()
		e.log().Warn("Event publish failed",
			"type", evt.Type,
			"conversation_id", evt.ConversationID,
			"sequence", evt.Sequence,
			"error", err,
		)
		return
	}
	e.metrics.EventPublished(evt.Type)
}

func (e *events) log() *slog.Logger {
	if e.logger == nil {
		return slog.Default()
	}
	return e.logger
}
