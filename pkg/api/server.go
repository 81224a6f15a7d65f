package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/pgstate/internal/logger"
	"github.com/marmos91/pgstate/pkg/adapter"
	"github.com/marmos91/pgstate/pkg/api/handlers"
)

var _ adapter.Adapter = (*Server)(nil)

// Server provides the operations HTTP server.
//
// Endpoints:
//   - GET /health: Liveness probe
//   - GET /health/ready: Readiness probe
//   - GET /health/store: Database health
//   - GET /metrics: Prometheus metrics
//
// Start blocks until its context is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
type Server struct {
	server *http.Server
	config APIConfig

	mu       sync.Mutex
	listener net.Listener
	stopOnce sync.Once
}

// shutdownTimeout bounds the drain after Start's context is cancelled.
const shutdownTimeout = 5 * time.Second

// NewServer creates a stopped server. Defaults are applied here as well as
// at config load, so servers built directly in tests work too. store may be
// nil, in which case only liveness succeeds.
func NewServer(config APIConfig, store handlers.StateStore) *Server {
	config.ApplyDefaults()

	return &Server{
		config: config,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      NewRouter(store),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
	}
}

// Start listens on the configured port and serves until ctx is cancelled.
// A port that cannot be bound is reported immediately.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("HTTP server failed to listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	logger.Info("HTTP server listening", logger.Addr(lis.Addr().String()))
	logger.Debug("HTTP endpoints available", "paths", "/health, /health/ready, /health/store, /metrics")

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(lis) }()

	select {
	case <-ctx.Done():
		// ctx is already cancelled; the drain needs its own deadline.
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(drainCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server failed: %w", err)
	}
}

// Stop drains in-flight requests until ctx expires. Calls after the first
// are no-ops.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if err = s.server.Shutdown(ctx); err != nil {
			err = fmt.Errorf("HTTP server shutdown error: %w", err)
			logger.Error("HTTP server shutdown error", logger.Err(err))
			return
		}
		logger.Info("HTTP server stopped gracefully")
	})
	return err
}

// Protocol implements adapter.Adapter.
func (s *Server) Protocol() string {
	return "http"
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.config.Port
}

// Addr returns the bound address once serving, or "" before.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
