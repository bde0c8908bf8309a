package handlers

import (
	"net/http"

	"github.com/vedran77/relay/internal/service"
	"github.com/vedran77/relay/internal/transport/http/middleware"
)

type ReactionHandler struct {
	reactionService *service.ReactionService
}

func NewReactionHandler(reactionService *service.ReactionService) *ReactionHandler {
	return &ReactionHandler{reactionService: reactionService}
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

type reactionResult struct {
	Changed bool `json:"changed"`
}

// Add is idempotent: repeating it reports changed=false.
func (h *ReactionHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, ok := pathUUID(w, r, "id", "message")
	if !ok {
		return
	}

	var req reactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	changed, err := h.reactionService.Add(r.Context(), userID, messageID, req.Emoji)
	if err != nil {
		writeServiceError(w, r, "add reaction", err)
		return
	}

	writeJSON(w, http.StatusOK, reactionResult{Changed: changed})
}

func (h *ReactionHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, ok := pathUUID(w, r, "id", "message")
	if !ok {
		return
	}

	changed, err := h.reactionService.Remove(r.Context(), userID, messageID, r.PathValue("emoji"))
	if err != nil {
		writeServiceError(w, r, "remove reaction", err)
		return
	}

	writeJSON(w, http.StatusOK, reactionResult{Changed: changed})
}

func (h *ReactionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, ok := pathUUID(w, r, "id", "message")
	if !ok {
		return
	}

	groups, err := h.reactionService.List(r.Context(), userID, messageID)
	if err != nil {
		writeServiceError(w, r, "list reactions", err)
		return
	}

	writeJSON(w, http.StatusOK, groups)
}
