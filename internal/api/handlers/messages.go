package handlers

import (
	"net/http"

	"imagine-chat/internal/repository/db"
	"imagine-chat/pkg/validation"
)

type SendMessageRequest struct {
	Content string `json:"content" validate:"required"`
	Role    string `json:"role" validate:"omitempty,oneof=user assistant"`
}

type GenerateImageRequest struct {
	Prompt         string `json:"prompt" validate:"required"`
	ConversationID string `json:"conversationId" validate:"required"`
}

// MessagesResponse is one page of history, newest first. NextCursor is the
// opaque value to send back as ?cursor= for older messages.
type MessagesResponse struct {
	Messages   []db.Message `json:"messages"`
	NextCursor *string      `json:"nextCursor"`
	HasMore    bool         `json:"hasMore"`
}

type GalleryResponse struct {
	Images []db.Image `json:"images"`
}

// ListMessagesHandler returns one page of a conversation's messages
func (h *Handlers) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.profileID(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	page, err := h.app.Chat.Messages(r.Context(), ownerID, r.PathValue("id"), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		h.sendServiceError(w, r, "Error retrieving messages", err)
		return
	}

	resp := MessagesResponse{Messages: page.Messages, HasMore: page.HasMore}
	if resp.Messages == nil {
		resp.Messages = []db.Message{}
	}
	if page.NextCursor != nil {
		cursor := page.NextCursor.String()
		resp.NextCursor = &cursor
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// SendMessageHandler stores a message and, for user messages, the assistant reply
func (h *Handlers) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.profileID(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validation.Struct(req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	result, err := h.app.Chat.SendMessage(r.Context(), ownerID, r.PathValue("id"), req.Content, req.Role)
	if err != nil {
		h.sendServiceError(w, r, "Error sending message", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// GenerateImageHandler stores the prompt as a message and generates an image for it
func (h *Handlers) GenerateImageHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.profileID(w, r)
	if !ok {
		return
	}

	var req GenerateImageRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validation.Struct(req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	result, err := h.app.Chat.GenerateImage(r.Context(), ownerID, req.ConversationID, req.Prompt)
	if err != nil {
		h.sendServiceError(w, r, "Error generating image", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// GalleryHandler lists the caller's generated images, newest first
func (h *Handlers) GalleryHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.profileID(w, r)
	if !ok {
		return
	}

	images, err := h.app.Gallery.List(r.Context(), ownerID)
	if err != nil {
		h.sendServiceError(w, r, "Error retrieving gallery", err)
		return
	}
	if images == nil {
		images = []db.Image{}
	}

	h.writeJSON(w, http.StatusOK, GalleryResponse{Images: images})
}
