package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/parrotchat/parrot/internal/logger"
	"github.com/parrotchat/parrot/pkg/api/handlers"
)

// Server serves the HTTP status API of a single replica: liveness and
// readiness probes under /health plus a full status snapshot under
// /api/v1/status. Shutdown is graceful, bounded by a timeout.
type Server struct {
	server       *http.Server
	config       Config
	shutdownOnce sync.Once
}

// NewServer builds the status API server around the given snapshot provider.
// The provider may be nil, which still serves the liveness probe.
//
// Defaults are applied here as well as during config loading, so a Server
// constructed directly in tests behaves like a configured one. The returned
// server does not listen until Start is called.
func NewServer(config Config, provider handlers.StatusProvider) *Server {
	config.applyDefaults()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      NewRouter(provider),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return &Server{
		server: server,
		config: config,
	}
}

// Start serves until ctx is cancelled or the listener fails. Cancellation
// triggers a graceful shutdown and Start returns its outcome; a listener
// failure is returned as-is.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		logger.Info("status API listening", logger.KeyAddr, s.server.Addr)
		logger.Debug("status API endpoints available",
			"health", fmt.Sprintf("http://%s/health", s.server.Addr),
			"ready", fmt.Sprintf("http://%s/health/ready", s.server.Addr),
			"status", fmt.Sprintf("http://%s/api/v1/status", s.server.Addr),
		)

		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			select {
			case errCh <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("status API shutdown signal received")
		// ctx is already cancelled; shutdown needs its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("status API failed: %w", err)
	}
}

// Stop shuts the server down gracefully, waiting for in-flight requests up to
// ctx's deadline. It is safe to call more than once and concurrently with
// Start; only the first call performs the shutdown.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("status API shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("status API shutdown error: %w", err)
			logger.Error("status API shutdown error", logger.KeyError, err)
		} else {
			logger.Info("status API stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is configured to listen on.
func (s *Server) Port() int {
	return s.config.Port
}
