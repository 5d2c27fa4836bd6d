package handlers

import (
	"net/http"

	conversationService "imagine-chat/internal/service/conversation"
	"imagine-chat/pkg/validation"
)

type CreateConversationRequest struct {
	Title string `json:"title"`
}

type UpdateConversationRequest struct {
	Action string `json:"action" validate:"required,oneof=rename delete"`
	Title  string `json:"title"`
}

// ListConversationsHandler returns one page of the caller's conversations
func (h *Handlers) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.profileID(w, r)
	if !ok {
		return
	}

	page, err := queryInt(r, "page")
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid page", err)
		return
	}
	pageSize, err := queryInt(r, "page_size")
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid page size", err)
		return
	}

	result, err := h.app.Conversations.List(r.Context(), ownerID, page, pageSize)
	if err != nil {
		h.sendServiceError(w, r, "Error retrieving conversations", err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// CreateConversationHandler starts a new conversation
func (h *Handlers) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.profileID(w, r)
	if !ok {
		return
	}

	var req CreateConversationRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	conv, err := h.app.Conversations.Create(r.Context(), ownerID, req.Title)
	if err != nil {
		h.sendServiceError(w, r, "Error creating conversation", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, conv)
}

// UpdateConversationHandler renames or deletes a conversation
func (h *Handlers) UpdateConversationHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.profileID(w, r)
	if !ok {
		return
	}

	var req UpdateConversationRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validation.Struct(req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	conv, err := h.app.Conversations.Update(r.Context(), ownerID, r.PathValue("id"), req.Action, req.Title)
	if err != nil {
		h.sendServiceError(w, r, "Error updating conversation", err)
		return
	}

	h.writeJSON(w, http.StatusOK, conv)
}

// DeleteConversationHandler soft-deletes a conversation and its messages
func (h *Handlers) DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.profileID(w, r)
	if !ok {
		return
	}

	if _, err := h.app.Conversations.Update(r.Context(), ownerID, r.PathValue("id"), conversationService.ActionDelete, ""); err != nil {
		h.sendServiceError(w, r, "Error deleting conversation", err)
		return
	}

	h.writeJSON(w, http.StatusOK, DeleteResponse{
		Success: true,
		Message: "Conversation deleted successfully",
	})
}
