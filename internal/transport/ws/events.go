package ws

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
)

// Frame types - Client → Server
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeTypingStart = "typing.start"
	TypeTypingStop  = "typing.stop"
	TypePing        = "ping"
)

// Frame types - Server → Client, in addition to every domain event type.
const (
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypePong         = "pong"
	TypeError        = "error"
)

// Inbound is a client → server frame.
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- Client → Server payloads ---

// SubscribePayload starts live delivery for a conversation. With Since set,
// log events after that sequence are replayed first.
type SubscribePayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Since          *int64    `json:"since,omitempty"`
}

type ConversationPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

// --- Server → Client payloads ---

type SubscribedPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Sequence       int64     `json:"sequence"`
	Head           int64     `json:"head"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// controlFrame encodes a server → client frame that is not a domain event.
func controlFrame(frameType string, conversationID uuid.UUID, payload any) []byte {
	evt, err := domain.NewEvent(frameType, conversationID, uuid.Nil, payload)
	if err != nil {
		return nil
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return nil
	}
	return data
}
