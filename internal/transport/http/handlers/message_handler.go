package handlers

import (
	"net/http"

	"github.com/vedran77/relay/internal/service"
	"github.com/vedran77/relay/internal/transport/http/middleware"
)

type MessageHandler struct {
	messageService *service.MessageService
}

func NewMessageHandler(messageService *service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}

	var input service.SendMessageInput
	if !decodeJSON(w, r, &input) {
		return
	}

	msg, err := h.messageService.Send(r.Context(), userID, conversationID, input)
	if err != nil {
		writeServiceError(w, r, "send message", err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, ok := pathUUID(w, r, "id", "conversation")
	if !ok {
		return
	}

	var q service.ListMessagesQuery
	if q.Before, ok = queryInt64(w, r, "before"); !ok {
		return
	}
	if q.After, ok = queryInt64(w, r, "after"); !ok {
		return
	}
	if q.Limit, ok = queryLimit(w, r); !ok {
		return
	}

	page, err := h.messageService.List(r.Context(), userID, conversationID, q)
	if err != nil {
		writeServiceError(w, r, "list messages", err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, ok := pathUUID(w, r, "id", "message")
	if !ok {
		return
	}

	var input service.EditMessageInput
	if !decodeJSON(w, r, &input) {
		return
	}

	msg, err := h.messageService.Edit(r.Context(), userID, messageID, input)
	if err != nil {
		writeServiceError(w, r, "edit message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// Delete responds with the tombstone.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, ok := pathUUID(w, r, "id", "message")
	if !ok {
		return
	}

	msg, err := h.messageService.Delete(r.Context(), userID, messageID)
	if err != nil {
		writeServiceError(w, r, "delete message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}
