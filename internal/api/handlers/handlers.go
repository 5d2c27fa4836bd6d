package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"imagine-chat/internal/app"
	"imagine-chat/internal/auth"
	"imagine-chat/internal/logger"
	"imagine-chat/internal/repository/db"
	"imagine-chat/internal/service/mutation"

	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Handlers serves the HTTP API on top of the application services
type Handlers struct {
	app *app.Config
	log *logrus.Entry
}

// NewHandlers creates a new Handlers
func NewHandlers(config *app.Config) *Handlers {
	return &Handlers{
		app: config,
		log: logger.Component("api"),
	}
}

// sendError sends a standardized JSON error response
func (h *Handlers) sendError(w http.ResponseWriter, status int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errResp := ErrorResponse{
		Code:    status,
		Message: message,
	}
	if err != nil {
		errResp.Error = err.Error()
	}
	json.NewEncoder(w).Encode(errResp)
}

// sendServiceError maps a service error onto a status code. Rows the caller
// does not own are reported as missing.
func (h *Handlers) sendServiceError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error(message)
	}
	switch status {
	case http.StatusNotFound:
		h.sendError(w, status, "Not found", nil)
	case http.StatusInternalServerError, http.StatusBadGateway:
		h.sendError(w, status, message, nil)
	default:
		h.sendError(w, status, message, err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidRequest), errors.Is(err, db.ErrInvalidCursor):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, db.ErrConflict):
		return http.StatusConflict
	case mutation.KindOf(err) == mutation.KindValidation:
		return http.StatusBadRequest
	case mutation.KindOf(err) == mutation.KindUnauthorized, errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case mutation.KindOf(err) == mutation.KindRemote:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.WithError(err).Error("Error encoding response")
	}
}

// profileID returns the authenticated profile, writing a 401 when absent
func (h *Handlers) profileID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.ProfileID(r.Context())
	if !ok {
		h.sendError(w, http.StatusUnauthorized, "Unauthorized", nil)
	}
	return id, ok
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// queryInt reads an optional integer query parameter
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
