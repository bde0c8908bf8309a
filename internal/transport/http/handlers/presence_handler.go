package handlers

import (
	"net/http"

	"github.com/vedran77/relay/internal/service"
	"github.com/vedran77/relay/internal/transport/http/middleware"
)

type TypingHandler struct {
	typingService *service.TypingService
}

func NewTypingHandler(typingService *service.TypingService) *TypingHandler {
	return &TypingHandler{typingService: typingService}
}

func (h *TypingHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}

	indicator, err := h.typingService.SetTyping(r.Context(), userID, conversationID)
	if err != nil {
		writeServiceError(w, r, "set typing", err)
		return
	}

	writeJSON(w, http.StatusOK, indicator)
}

func (h *TypingHandler) Stop(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}

	if err := h.typingService.StopTyping(r.Context(), userID, conversationID); err != nil {
		writeServiceError(w, r, "stop typing", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TypingHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}

	active, err := h.typingService.ListActive(r.Context(), userID, conversationID)
	if err != nil {
		writeServiceError(w, r, "list typing", err)
		return
	}

	writeJSON(w, http.StatusOK, active)
}

type PresenceHandler struct {
	presenceService *service.PresenceService
}

func NewPresenceHandler(presenceService *service.PresenceService) *PresenceHandler {
	return &PresenceHandler{presenceService: presenceService}
}

type presenceRequest struct {
	Online *bool `json:"online"`
}

func (h *PresenceHandler) Set(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req presenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Online == nil {
		writeValidationErrors(w, map[string]string{"online": "Online flag is required"})
		return
	}

	p, err := h.presenceService.SetPresence(r.Context(), userID, *req.Online)
	if err != nil {
		writeServiceError(w, r, "set presence", err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *PresenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	targetID, ok := pathUUID(w, r, "id", "user")
	if !ok {
		return
	}

	p, err := h.presenceService.Get(r.Context(), targetID)
	if err != nil {
		writeServiceError(w, r, "get presence", err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}
