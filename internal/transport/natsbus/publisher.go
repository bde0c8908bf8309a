package natsbus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/vedran77/relay/internal/apperr"
	"github.com/vedran77/relay/internal/domain"
)

// Publisher implements service.Notifier over NATS.
type Publisher struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

func NewPublisher(nc *nats.Conn, subject string) *Publisher {
	return &Publisher{
		nc:      nc,
		subject: subject,
		logger:  slog.Default().With("component", "nats_publisher"),
	}
}

func (p *Publisher) Publish(ctx context.Context, evt *domain.Event) error {
	if err := ctx.Err(); err != nil {
		return apperr.ErrTransport.Wrap(err)
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return apperr.ErrInternal.Wrap(err)
	}

	if err := p.nc.Publish(p.subject, data); err != nil {
		p.logger.Error("Failed to publish event", "type", evt.Type, "subject", p.subject, "error", err)
		return apperr.ErrTransport.Wrap(err)
	}

	p.logger.Debug("Published event", "type", evt.Type, "conversation_id", evt.ConversationID, "sequence", evt.Sequence)
	return nil
}
