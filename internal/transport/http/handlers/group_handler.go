package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/service"
	"github.com/vedran77/relay/internal/transport/http/middleware"
)

type GroupHandler struct {
	conversationService *service.ConversationService
}

func NewGroupHandler(conversationService *service.ConversationService) *GroupHandler {
	return &GroupHandler{conversationService: conversationService}
}

type memberRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.CreateGroupInput
	if !decodeJSON(w, r, &input) {
		return
	}

	group, err := h.conversationService.CreateGroup(r.Context(), userID, input)
	if err != nil {
		writeServiceError(w, r, "create group", err)
		return
	}

	writeJSON(w, http.StatusCreated, group)
}

func (h *GroupHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID, ok := pathUUID(w, r, "id", "group")
	if !ok {
		return
	}

	var input service.UpdateGroupInput
	if !decodeJSON(w, r, &input) {
		return
	}

	group, err := h.conversationService.UpdateGroup(r.Context(), userID, groupID, input)
	if err != nil {
		writeServiceError(w, r, "update group", err)
		return
	}

	writeJSON(w, http.StatusOK, group)
}

func (h *GroupHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID, ok := pathUUID(w, r, "id", "group")
	if !ok {
		return
	}

	member, err := h.conversationService.JoinGroup(r.Context(), userID, groupID)
	if err != nil {
		writeServiceError(w, r, "join group", err)
		return
	}

	writeJSON(w, http.StatusCreated, member)
}

func (h *GroupHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID, ok := pathUUID(w, r, "id", "group")
	if !ok {
		return
	}

	if err := h.conversationService.LeaveGroup(r.Context(), userID, groupID); err != nil {
		writeServiceError(w, r, "leave group", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID, ok := pathUUID(w, r, "id", "group")
	if !ok {
		return
	}

	var req memberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == uuid.Nil {
		writeValidationErrors(w, map[string]string{"user_id": "User ID is required"})
		return
	}

	member, err := h.conversationService.AddMember(r.Context(), userID, groupID, req.UserID)
	if err != nil {
		writeServiceError(w, r, "add member", err)
		return
	}

	writeJSON(w, http.StatusCreated, member)
}

func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID, ok := pathUUID(w, r, "id", "group")
	if !ok {
		return
	}
	targetID, ok := pathUUID(w, r, "uid", "user")
	if !ok {
		return
	}

	if err := h.conversationService.RemoveMember(r.Context(), userID, groupID, targetID); err != nil {
		writeServiceError(w, r, "remove member", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
