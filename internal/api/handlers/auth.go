package handlers

import (
	"net/http"

	"imagine-chat/internal/repository/db"
	"imagine-chat/pkg/validation"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email,max=255"`
	DisplayName string `json:"display_name" validate:"required,max=100"`
	Password    string `json:"password" validate:"required,min=6,max=72"`
}

type AuthResponse struct {
	Token   string      `json:"token"`
	Profile *db.Profile `json:"profile"`
}

// LoginHandler authenticates a profile and returns a JWT
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validation.Struct(req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	profile, token, err := h.app.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.sendServiceError(w, r, "Invalid credentials", err)
		return
	}

	h.writeJSON(w, http.StatusOK, AuthResponse{Token: token, Profile: profile})
}

// RegisterHandler creates a profile and returns a JWT
func (h *Handlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validation.Struct(req); err != nil {
		h.sendError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	profile, token, err := h.app.Auth.Register(r.Context(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		h.sendServiceError(w, r, "Error creating profile", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, AuthResponse{Token: token, Profile: profile})
}
