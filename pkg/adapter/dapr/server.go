// Package dapr exposes the state store as a Dapr pluggable component: a gRPC
// server on a Unix domain socket implementing the StateStore and
// TransactionalStateStore services.
package dapr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sync"

	proto "github.com/dapr/dapr/pkg/proto/components/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/marmos91/pgstate/internal/logger"
	"github.com/marmos91/pgstate/pkg/adapter"
	"github.com/marmos91/pgstate/pkg/metrics"
	"github.com/marmos91/pgstate/pkg/state"
)

var _ adapter.Adapter = (*Server)(nil)

// Fully qualified service names, reported by the health service.
const (
	stateStoreService    = "dapr.proto.components.v1.StateStore"
	transactionalService = "dapr.proto.components.v1.TransactionalStateStore"
)

// Server is the pluggable component gRPC server.
//
// The server is created stopped. Start listens on the component socket and
// blocks until the context is cancelled; Serve accepts an arbitrary listener.
type Server struct {
	config Config
	grpc   *grpc.Server
	health *health.Server

	mu           sync.Mutex
	socketPath   string
	shutdownOnce sync.Once
}

// NewServer creates a component server for svc. m may be nil.
func NewServer(config Config, svc *state.Service, m metrics.RPCMetrics) *Server {
	config.applyDefaults()

	opts := []grpc.ServerOption{
		// Recovery is innermost so the observe interceptor sees the Internal status.
		grpc.ChainUnaryInterceptor(observeInterceptor(m), recoveryInterceptor()),
	}
	if config.MaxRecvMsgSize > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(config.MaxRecvMsgSize.Int()))
	}

	srv := grpc.NewServer(opts...)

	store := NewStateStore(svc)
	proto.RegisterStateStoreServer(srv, store)
	proto.RegisterTransactionalStateStoreServer(srv, store)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, healthServer)
	for _, name := range []string{"", stateStoreService, transactionalService} {
		healthServer.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_SERVING)
	}

	// The sidecar discovers the implemented services through reflection.
	reflection.Register(srv)

	return &Server{
		config: config,
		grpc:   srv,
		health: healthServer,
	}
}

// Start listens on the component socket and serves until ctx is cancelled,
// then stops gracefully within the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	lis, err := s.listen()
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("component server listening", logger.Socket(s.config.SocketPath()))
		if err := s.Serve(lis); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("component server shutdown signal received")
		// ctx is already cancelled; the shutdown needs its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		s.removeSocket()
		return fmt.Errorf("component server failed: %w", err)
	}
}

// Serve serves on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop drains in-flight calls until ctx expires, then closes them.
// Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.health.Shutdown()

		done := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(done)
		}()

		select {
		case <-done:
			logger.Info("component server stopped gracefully")
		case <-ctx.Done():
			logger.Warn("component server shutdown timeout, forcing stop")
			s.grpc.Stop()
		}

		s.removeSocket()
	})
	return nil
}

// Protocol implements adapter.Adapter.
func (s *Server) Protocol() string {
	return "dapr"
}

// SocketPath returns the Unix socket the server listens on.
func (s *Server) SocketPath() string {
	return s.config.SocketPath()
}

// listen creates the socket folder, removes a stale socket and listens.
func (s *Server) listen() (net.Listener, error) {
	path := s.config.SocketPath()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create socket folder: %w", err)
	}

	if info, err := os.Lstat(path); err == nil {
		if info.Mode()&fs.ModeSocket == 0 {
			return nil, fmt.Errorf("refusing to replace %s: not a socket", path)
		}
		logger.Debug("removing stale component socket", logger.Socket(path))
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}

	lis, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}

	s.mu.Lock()
	s.socketPath = path
	s.mu.Unlock()
	return lis, nil
}

func (s *Server) removeSocket() {
	s.mu.Lock()
	path := s.socketPath
	s.socketPath = ""
	s.mu.Unlock()

	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to remove component socket", logger.Socket(path), logger.Err(err))
	}
}
