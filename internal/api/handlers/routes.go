package handlers

import (
	"net/http"
	"strconv"

	"imagine-chat/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// instrument counts requests by mux pattern and status
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	})
}

// Router registers every route on a new ServeMux (Go 1.22+ patterns)
func (h *Handlers) Router() http.Handler {
	mux := http.NewServeMux()
	protected := h.app.Auth.Middleware

	// Public routes
	mux.HandleFunc("POST /api/login", enableCORS(h.LoginHandler))
	mux.HandleFunc("POST /api/register", enableCORS(h.RegisterHandler))
	mux.HandleFunc("GET /api/health", enableCORS(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	mux.Handle("GET /metrics", promhttp.Handler())

	// Protected routes
	mux.HandleFunc("GET /api/profile", enableCORS(protected(h.GetProfileHandler)))
	mux.HandleFunc("PATCH /api/profile", enableCORS(protected(h.UpdateProfileHandler)))
	mux.HandleFunc("DELETE /api/profile", enableCORS(protected(h.DeleteProfileHandler)))

	mux.HandleFunc("GET /api/conversations", enableCORS(protected(h.ListConversationsHandler)))
	mux.HandleFunc("POST /api/conversations", enableCORS(protected(h.CreateConversationHandler)))
	mux.HandleFunc("PATCH /api/conversations/{id}", enableCORS(protected(h.UpdateConversationHandler)))
	mux.HandleFunc("DELETE /api/conversations/{id}", enableCORS(protected(h.DeleteConversationHandler)))
	mux.HandleFunc("GET /api/conversations/{id}/messages", enableCORS(protected(h.ListMessagesHandler)))
	mux.HandleFunc("POST /api/conversations/{id}/messages", enableCORS(protected(h.SendMessageHandler)))

	mux.HandleFunc("POST /api/images/generate", enableCORS(protected(h.GenerateImageHandler)))
	mux.HandleFunc("GET /api/gallery", enableCORS(protected(h.GalleryHandler)))

	// CORS preflight for every API path
	mux.HandleFunc("OPTIONS /api/", enableCORS(func(w http.ResponseWriter, r *http.Request) {}))

	return instrument(mux)
}
