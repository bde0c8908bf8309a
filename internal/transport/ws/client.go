package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBufSize    = 256
	controlBufSize = 16
)

// Client represents a single WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uuid.UUID
	logger *slog.Logger

	// subs is owned by the hub goroutine.
	subs map[uuid.UUID]*subscription

	// send carries hub frames and is closed by the hub. control carries
	// replies produced on the read goroutine and is never closed.
	send    chan []byte
	control chan []byte
	done    chan struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		userID:  userID,
		logger:  hub.logger.With("user_id", userID),
		subs:    make(map[uuid.UUID]*subscription),
		send:    make(chan []byte, hub.cfg.SendBuffer),
		control: make(chan []byte, controlBufSize),
		done:    make(chan struct{}),
	}
}

// ReadPump reads frames until the connection fails, then releases every
// subscription of this connection.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		if c.hub.presence != nil {
			if err := c.hub.presence.Disconnected(context.WithoutCancel(ctx), c.userID); err != nil {
				c.logger.Warn("Presence disconnect failed", "error", err)
			}
		}
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		var in Inbound
		err := wsjson.Read(ctx, c.conn, &in)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.logger.Debug("Client closed connection")
			} else {
				c.logger.Debug("Read error", "error", err)
			}
			return
		}

		c.handleFrame(ctx, &in)
	}
}

// WritePump writes queued frames and keeps the connection and presence alive.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.write(message); err != nil {
				c.logger.Debug("Write error", "error", err)
				return
			}

		case message := <-c.control:
			if err := c.write(message); err != nil {
				c.logger.Debug("Write error", "error", err)
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			if err == nil && c.hub.presence != nil {
				if hbErr := c.hub.presence.Heartbeat(ctx, c.userID); hbErr != nil {
					c.logger.Warn("Presence heartbeat failed", "error", hbErr)
				}
			}
			cancel()
			if err != nil {
				c.logger.Debug("Ping error", "error", err)
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *Client) write(message []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, message)
}

// handleFrame routes an incoming client frame.
func (c *Client) handleFrame(ctx context.Context, in *Inbound) {
	switch in.Type {
	case TypeSubscribe:
		var p SubscribePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil || p.ConversationID == uuid.Nil {
			c.sendError("INVALID_PAYLOAD", "invalid subscribe payload")
			return
		}
		if err := c.hub.Subscribe(ctx, c, p.ConversationID, p.Since); err != nil {
			c.reply(errorFrame(err))
		}

	case TypeUnsubscribe:
		var p ConversationPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil || p.ConversationID == uuid.Nil {
			c.sendError("INVALID_PAYLOAD", "invalid unsubscribe payload")
			return
		}
		c.hub.Unsubscribe(c, p.ConversationID)

	case TypeTypingStart, TypeTypingStop:
		var p ConversationPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil || p.ConversationID == uuid.Nil {
			c.sendError("INVALID_PAYLOAD", "conversation_id required for typing events")
			return
		}
		if c.hub.typing == nil {
			return
		}
		var err error
		if in.Type == TypeTypingStart {
			_, err = c.hub.typing.SetTyping(ctx, c.userID, p.ConversationID)
		} else {
			err = c.hub.typing.StopTyping(ctx, c.userID, p.ConversationID)
		}
		if err != nil {
			c.reply(errorFrame(err))
		}

	case TypePing:
		c.reply(controlFrame(TypePong, uuid.Nil, nil))
		if c.hub.presence != nil {
			if err := c.hub.presence.Heartbeat(ctx, c.userID); err != nil {
				c.logger.Warn("Presence heartbeat failed", "error", err)
			}
		}

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+in.Type)
	}
}

func (c *Client) sendError(code, message string) {
	c.reply(controlFrame(TypeError, uuid.Nil, ErrorPayload{Code: code, Message: message}))
}

func (c *Client) reply(data []byte) {
	if data == nil {
		return
	}
	select {
	case c.control <- data:
	default:
	}
}
