package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/service"
	"github.com/vedran77/relay/internal/transport/http/middleware"
)

type ConversationHandler struct {
	conversationService *service.ConversationService
}

func NewConversationHandler(conversationService *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversationService: conversationService}
}

type directRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

// CreateDirect returns 201 when the conversation was created and 200 when it
// already existed.
func (h *ConversationHandler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req directRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == uuid.Nil {
		writeValidationErrors(w, map[string]string{"user_id": "User ID is required"})
		return
	}

	conv, created, err := h.conversationService.GetOrCreateDirect(r.Context(), userID, req.UserID)
	if err != nil {
		writeServiceError(w, r, "get or create direct", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, conv)
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	convs, err := h.conversationService.List(r.Context(), userID, limit)
	if err != nil {
		writeServiceError(w, r, "list conversations", err)
		return
	}

	writeJSON(w, http.StatusOK, convs)
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}

	conv, err := h.conversationService.Get(r.Context(), userID, conversationID)
	if err != nil {
		writeServiceError(w, r, "get conversation", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}

	members, err := h.conversationService.ListMembers(r.Context(), userID, conversationID)
	if err != nil {
		writeServiceError(w, r, "list members", err)
		return
	}

	writeJSON(w, http.StatusOK, members)
}

// Events replays the durable log after a sequence, for clients catching up
// without a WebSocket.
func (h *ConversationHandler) Events(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}
	after, ok := queryInt64(w, r, "after")
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	var from int64
	if after != nil {
		from = *after
	}

	evts, err := h.conversationService.ReplayEvents(r.Context(), userID, conversationID, from, limit)
	if err != nil {
		writeServiceError(w, r, "replay events", err)
		return
	}

	writeJSON(w, http.StatusOK, evts)
}
