package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/service"
	"github.com/vedran77/relay/internal/transport/http/middleware"
)

type ReceiptHandler struct {
	receiptService *service.ReceiptService
}

func NewReceiptHandler(receiptService *service.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{receiptService: receiptService}
}

type markReadRequest struct {
	MessageID uuid.UUID `json:"message_id"`
}

func (h *ReceiptHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}

	var req markReadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.MessageID == uuid.Nil {
		writeValidationErrors(w, map[string]string{"message_id": "Message ID is required"})
		return
	}

	state, err := h.receiptService.MarkRead(r.Context(), userID, conversationID, req.MessageID)
	if err != nil {
		writeServiceError(w, r, "mark read", err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (h *ReceiptHandler) Unread(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}

	state, err := h.receiptService.UnreadCount(r.Context(), userID, conversationID)
	if err != nil {
		writeServiceError(w, r, "unread count", err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (h *ReceiptHandler) Receipts(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, ok := pathUUID(w, r, "id", "message")
	if !ok {
		return
	}

	receipts, err := h.receiptService.Receipts(r.Context(), userID, messageID)
	if err != nil {
		writeServiceError(w, r, "read receipts", err)
		return
	}

	writeJSON(w, http.StatusOK, receipts)
}
