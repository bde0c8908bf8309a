package ws

import (
	"net/http"
	"slices"
	"time"

	"github.com/vedran77/relay/internal/auth"
	"nhooyr.io/websocket"
)

// ServeWS returns an HTTP handler that upgrades to WebSocket.
// Auth is done via ?token=xxx query param (WebSocket can't send headers).
func ServeWS(hub *Hub, jwtSecret string, allowedOrigins []string) http.HandlerFunc {
	acceptOpts := &websocket.AcceptOptions{OriginPatterns: allowedOrigins}
	if slices.Contains(allowedOrigins, "*") {
		acceptOpts = &websocket.AcceptOptions{InsecureSkipVerify: true}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		userID, err := auth.ParseToken(tokenStr, jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		// Server timeouts would otherwise cut long-lived connections.
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, acceptOpts)
		if err != nil {
			hub.logger.Warn("WebSocket accept failed", "error", err)
			return
		}

		client := NewClient(hub, conn, userID)
		if !hub.Register(client) {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}

		ctx := r.Context()
		if hub.presence != nil {
			if err := hub.presence.Connected(ctx, userID); err != nil {
				client.logger.Warn("Presence connect failed", "error", err)
			}
		}

		go client.WritePump()
		client.ReadPump(ctx)
	}
}
