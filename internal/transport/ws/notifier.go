package ws

import (
	"context"

	"github.com/vedran77/relay/internal/domain"
)

// HubNotifier implements service.Notifier for a single node.
type HubNotifier struct {
	hub *Hub
}

func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) Publish(ctx context.Context, evt *domain.Event) error {
	return n.hub.Dispatch(ctx, evt)
}
