package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/parrotchat/parrot/internal/logger"
	"github.com/parrotchat/parrot/pkg/api/handlers"
)

// NewRouter builds the HTTP mux for the status API.
//
// Routes:
//   - GET /health - liveness probe
//   - GET /health/ready - readiness probe (replica accepting connections)
//   - GET /api/v1/status - full replica status snapshot
func NewRouter(provider handlers.StatusProvider) http.Handler {
	r := chi.NewRouter()

	// RequestID must come before logRequests so the id is in scope for logging.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(provider)
	statusHandler := handlers.NewStatusHandler(provider)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", statusHandler.Snapshot)
	})

	// Hitting the bare root is almost always a human poking around.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// logRequests emits one INFO line per completed request, with the request id
// assigned by the RequestID middleware.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		logger.Info("status api request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
