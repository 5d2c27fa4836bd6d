package handlers

import (
	"encoding/json"
	"net/http"

	"imagine-chat/internal/repository/db"
	"imagine-chat/pkg/validation"
)

type UpdateProfileRequest struct {
	DisplayName *string         `json:"display_name" validate:"omitempty,max=100"`
	AvatarURL   *string         `json:"avatar_url" validate:"omitempty,url"`
	Preferences json.RawMessage `json:"preferences"`
}

// GetProfileHandler returns the caller's profile
func (h *Handlers) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}

	profile, err := h.app.Profiles.Get(r.Context(), profileID)
	if err != nil {
		h.sendServiceError(w, r, "Error retrieving profile", err)
		return
	}

	h.writeJSON(w, http.StatusOK, profile)
}

// UpdateProfileHandler changes the caller's display name, avatar or preferences
func (h *Handlers) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validation.Struct(req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	profile, err := h.app.Profiles.Update(r.Context(), profileID, db.ProfileUpdate{
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		Preferences: req.Preferences,
	})
	if err != nil {
		h.sendServiceError(w, r, "Error updating profile", err)
		return
	}

	h.writeJSON(w, http.StatusOK, profile)
}

// DeleteProfileHandler soft-deletes the caller with everything they own
func (h *Handlers) DeleteProfileHandler(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}

	if err := h.app.Profiles.Delete(r.Context(), profileID); err != nil {
		h.sendServiceError(w, r, "Error deleting profile", err)
		return
	}

	h.writeJSON(w, http.StatusOK, DeleteResponse{
		Success: true,
		Message: "Profile deleted successfully",
	})
}
