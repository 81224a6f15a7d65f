// Package state is the operation coordinator of the PostgreSQL state store.
//
// Service sequences every request under its own connection and, for
// mutating and batched calls, its own transaction. It resolves the effective
// location per item, drives the record store and recovers from missing
// schemas or tables with a bounded create-and-retry loop.
//
// Usage:
//
//	svc := state.NewService(state.WithMetrics(metrics.NewStateMetrics()))
//	if err := svc.Init(ctx, map[string]string{"connectionString": dsn}); err != nil {
//		return err
//	}
//	etag, err := svc.Set(ctx, &state.SetRequest{Key: "k1", Value: []byte("v1")})
package state

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/marmos91/pgstate/internal/logger"
	"github.com/marmos91/pgstate/pkg/metrics"
	staterrors "github.com/marmos91/pgstate/pkg/state/errors"
	"github.com/marmos91/pgstate/pkg/state/metadata"
)

// driverName is the database/sql driver registered by pgx/v5/stdlib.
const driverName = "pgx"

// PoolConfig sizes the database/sql connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Opener opens a database handle for a connection string.
type Opener func(connectionString string) (*sql.DB, error)

// Option configures a Service.
type Option func(*Service)

// WithMetrics sets the metrics sink. A nil sink disables metrics.
func WithMetrics(m metrics.StateMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPool sets the connection pool limits applied to handles opened by Init.
func WithPool(p PoolConfig) Option {
	return func(s *Service) { s.pool = p }
}

// WithRequestTimeout bounds every operation. Zero means no bound beyond the
// caller's context.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Service) { s.requestTimeout = d }
}

// WithOpener replaces the database opener. Used by tests to inject sqlmock.
func WithOpener(o Opener) Option {
	return func(s *Service) { s.open = o }
}

// binding is the result of Init. cfg and db never change; mu is held shared
// by every request using db and exclusively by retire.
type binding struct {
	cfg *metadata.ComponentConfig
	db  *sql.DB

	mu      sync.RWMutex
	retired bool
}

// retire waits for requests still using b, then closes its handle.
func (b *binding) retire() error {
	b.mu.Lock()
	b.retired = true
	b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Service is the state store coordinator. It is safe for concurrent use.
type Service struct {
	bound atomic.Pointer[binding]

	metrics        metrics.StateMetrics
	pool           PoolConfig
	requestTimeout time.Duration
	open           Opener
}

// NewService creates an uninitialized Service. Every data operation fails
// with a not-initialized error until Init succeeds.
func NewService(opts ...Option) *Service {
	s := &Service{}
	s.open = s.openPgx
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) openPgx(connectionString string) (*sql.DB, error) {
	db, err := sql.Open(driverName, connectionString)
	if err != nil {
		return nil, err
	}
	if s.pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(s.pool.MaxOpenConns)
	}
	if s.pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(s.pool.MaxIdleConns)
	}
	if s.pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(s.pool.ConnMaxLifetime)
	}
	if s.pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(s.pool.ConnMaxIdleTime)
	}
	return db, nil
}

// ============================================================================
// Lifecycle
// ============================================================================

// Init parses the component properties and opens the database handle.
// It does not contact the database. Calling Init again replaces the
// configuration; the previous handle is closed once the requests already
// using it have finished, and Init waits for that.
func (s *Service) Init(ctx context.Context, properties map[string]string) error {
	cfg, err := metadata.Parse(properties)
	if err != nil {
		logger.WarnCtx(ctx, "state store init rejected", logger.Err(err))
		return err
	}

	db, err := s.open(cfg.ConnectionString)
	if err != nil {
		return &staterrors.StoreError{
			Code:    staterrors.ErrConfiguration,
			Message: fmt.Sprintf("invalid '%s' property: %v", metadata.PropertyConnectionString, err),
			Err:     err,
		}
	}

	prev := s.bound.Swap(&binding{cfg: cfg, db: db})
	if prev != nil {
		if err := prev.retire(); err != nil {
			logger.WarnCtx(ctx, "failed to close previous database handle", logger.Err(err))
		}
	}

	attrs := []any{logger.Tenancy(cfg.Tenancy.String()), logger.MaxAttempts(cfg.MaxAttempts)}
	attrs = append(attrs, logger.Schema(cfg.Schema), logger.Table(cfg.Table))
	logger.InfoCtx(ctx, "state store initialized", attrs...)
	return nil
}

// Config returns the active configuration, or nil before Init.
func (s *Service) Config() *metadata.ComponentConfig {
	if b := s.bound.Load(); b != nil {
		return b.cfg
	}
	return nil
}

// Features reports the optional capabilities of this store.
func (s *Service) Features() []string {
	return []string{FeatureETag, FeatureTransactional}
}

// Ping is a liveness check. It never touches the database.
func (s *Service) Ping(context.Context) error {
	return nil
}

// Ready reports whether Init has run and the database answers.
func (s *Service) Ready(ctx context.Context) error {
	b, release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	if err := b.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close releases the database handle after in-flight requests finish. The
// Service returns to the not-initialized state.
func (s *Service) Close() error {
	b := s.bound.Swap(nil)
	if b == nil {
		return nil
	}
	return b.retire()
}

// acquire returns the active binding held for one request. The caller must
// call release when the request is done.
func (s *Service) acquire() (b *binding, release func(), err error) {
	for {
		b = s.bound.Load()
		if b == nil {
			return nil, nil, staterrors.NewNotInitializedError()
		}
		b.mu.RLock()
		if !b.retired {
			return b, b.mu.RUnlock, nil
		}
		// Replaced between Load and RLock; pick up the new binding.
		b.mu.RUnlock()
	}
}
