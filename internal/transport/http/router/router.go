// Package router assembles relay's HTTP surface.
package router

import (
	"log/slog"
	"net/http"

	"github.com/vedran77/relay/internal/health"
	"github.com/vedran77/relay/internal/metrics"
	"github.com/vedran77/relay/internal/ratelimit"
	"github.com/vedran77/relay/internal/service"
	"github.com/vedran77/relay/internal/transport/http/handlers"
	"github.com/vedran77/relay/internal/transport/http/middleware"
	"github.com/vedran77/relay/internal/transport/ws"
)

type Services struct {
	Conversations *service.ConversationService
	Messages      *service.MessageService
	Reactions     *service.ReactionService
	Receipts      *service.ReceiptService
	Typing        *service.TypingService
	Presence      *service.PresenceService
}

type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	Hub            *ws.Hub
	Health         *health.Checker
	Metrics        *metrics.Metrics
	Limiter        *ratelimit.Pool
	Logger         *slog.Logger
}

func New(svc Services, opts Options) http.Handler {
	conversationHandler := handlers.NewConversationHandler(svc.Conversations)
	groupHandler := handlers.NewGroupHandler(svc.Conversations)
	messageHandler := handlers.NewMessageHandler(svc.Messages)
	reactionHandler := handlers.NewReactionHandler(svc.Reactions)
	receiptHandler := handlers.NewReceiptHandler(svc.Receipts)
	typingHandler := handlers.NewTypingHandler(svc.Typing)
	presenceHandler := handlers.NewPresenceHandler(svc.Presence)

	authenticate := middleware.Auth(opts.JWTSecret)
	protect := func(h http.HandlerFunc) http.Handler {
		if opts.Limiter == nil {
			return authenticate(h)
		}
		return authenticate(middleware.RateLimit(opts.Limiter)(h))
	}

	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	if opts.Health != nil {
		mux.Handle("GET /ready", opts.Health)
	}
	mux.Handle("GET /metrics", opts.Metrics.Handler())
	if opts.Hub != nil {
		mux.Handle("GET /ws", ws.ServeWS(opts.Hub, opts.JWTSecret, opts.AllowedOrigins))
	}

	// Conversations
	mux.Handle("POST /api/v1/conversations/direct", protect(conversationHandler.CreateDirect))
	mux.Handle("GET /api/v1/conversations", protect(conversationHandler.List))
	mux.Handle("GET /api/v1/conversations/{id}", protect(conversationHandler.Get))
	mux.Handle("GET /api/v1/conversations/{id}/members", protect(conversationHandler.ListMembers))
	mux.Handle("GET /api/v1/conversations/{id}/events", protect(conversationHandler.Events))

	// Groups
	mux.Handle("POST /api/v1/groups", protect(groupHandler.Create))
	mux.Handle("PATCH /api/v1/groups/{id}", protect(groupHandler.Update))
	mux.Handle("POST /api/v1/groups/{id}/join", protect(groupHandler.Join))
	mux.Handle("POST /api/v1/groups/{id}/leave", protect(groupHandler.Leave))
	mux.Handle("POST /api/v1/groups/{id}/members", protect(groupHandler.AddMember))
	mux.Handle("DELETE /api/v1/groups/{id}/members/{uid}", protect(groupHandler.RemoveMember))

	// Messages
	mux.Handle("POST /api/v1/conversations/{id}/messages", protect(messageHandler.Send))
	mux.Handle("GET /api/v1/conversations/{id}/messages", protect(messageHandler.List))
	mux.Handle("PATCH /api/v1/messages/{id}", protect(messageHandler.Edit))
	mux.Handle("DELETE /api/v1/messages/{id}", protect(messageHandler.Delete))

	// Reactions
	mux.Handle("POST /api/v1/messages/{id}/reactions", protect(reactionHandler.Add))
	mux.Handle("GET /api/v1/messages/{id}/reactions", protect(reactionHandler.List))
	mux.Handle("DELETE /api/v1/messages/{id}/reactions/{emoji}", protect(reactionHandler.Remove))

	// Receipts
	mux.Handle("POST /api/v1/conversations/{id}/read", protect(receiptHandler.MarkRead))
	mux.Handle("GET /api/v1/conversations/{id}/unread", protect(receiptHandler.Unread))
	mux.Handle("GET /api/v1/messages/{id}/receipts", protect(receiptHandler.Receipts))

	// Typing and presence
	mux.Handle("POST /api/v1/conversations/{id}/typing", protect(typingHandler.Start))
	mux.Handle("DELETE /api/v1/conversations/{id}/typing", protect(typingHandler.Stop))
	mux.Handle("GET /api/v1/conversations/{id}/typing", protect(typingHandler.List))
	mux.Handle("PUT /api/v1/presence", protect(presenceHandler.Set))
	mux.Handle("GET /api/v1/users/{id}/presence", protect(presenceHandler.Get))

	var handler http.Handler = mux
	handler = middleware.CORS(opts.AllowedOrigins)(handler)
	handler = middleware.Observe(opts.Metrics, opts.Logger)(handler)
	return handler
}
