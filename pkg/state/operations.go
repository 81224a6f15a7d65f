package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/marmos91/pgstate/internal/logger"
	"github.com/marmos91/pgstate/internal/telemetry"
	"github.com/marmos91/pgstate/pkg/metrics"
	staterrors "github.com/marmos91/pgstate/pkg/state/errors"
	"github.com/marmos91/pgstate/pkg/state/metadata"
	"github.com/marmos91/pgstate/pkg/state/store/postgres"
)

// ============================================================================
// Single-key operations
// ============================================================================

// Get reads one key. A missing key, schema or table yields (nil, nil).
func (s *Service) Get(ctx context.Context, req *GetRequest) (resp *GetResponse, err error) {
	ctx, done := s.begin(ctx, opGet, telemetry.StateKey(req.Key))
	defer func() { done(&err) }()

	b, release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	err = withConn(ctx, b.db, func(conn *sql.Conn) error {
		tbl, err := s.bind(&ctx, b.cfg, req.Metadata, conn, nil)
		if err != nil {
			return err
		}
		rec, err := tbl.Get(ctx, req.Key)
		if err != nil || rec == nil {
			return err
		}
		resp = &GetResponse{Data: rec.Value, Etag: rec.Etag}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Set writes one key inside its own transaction and returns the new etag.
func (s *Service) Set(ctx context.Context, req *SetRequest) (etag string, err error) {
	ctx, done := s.begin(ctx, opSet, telemetry.StateKey(req.Key), telemetry.Conditional(req.Etag != ""))
	defer func() { done(&err) }()

	b, release, err := s.acquire()
	if err != nil {
		return "", err
	}
	defer release()

	err = withTx(ctx, b.db, func(conn *sql.Conn, tx *sql.Tx) error {
		etag, err = s.set(ctx, b.cfg, conn, tx, req)
		return err
	})
	if err != nil {
		return "", err
	}
	return etag, nil
}

// Delete removes one key inside its own transaction.
func (s *Service) Delete(ctx context.Context, req *DeleteRequest) (err error) {
	ctx, done := s.begin(ctx, opDelete, telemetry.StateKey(req.Key), telemetry.Conditional(req.Etag != ""))
	defer func() { done(&err) }()

	b, release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()

	return withTx(ctx, b.db, func(conn *sql.Conn, tx *sql.Tx) error {
		return s.delete(ctx, b.cfg, conn, tx, req)
	})
}

// ============================================================================
// Batched operations
// ============================================================================

// BulkGet reads every key on one connection without a shared transaction.
// Keys that are not found are omitted from the result. Any other failure
// fails the whole call.
func (s *Service) BulkGet(ctx context.Context, reqs []*GetRequest) (items []BulkGetItem, err error) {
	ctx, done := s.begin(ctx, opBulkGet, telemetry.Items(len(reqs)))
	defer func() { done(&err) }()

	b, release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	metrics.ObserveBatchSize(s.metrics, opBulkGet, len(reqs))
	if len(reqs) == 0 {
		return []BulkGetItem{}, nil
	}

	items = make([]BulkGetItem, 0, len(reqs))
	err = withConn(ctx, b.db, func(conn *sql.Conn) error {
		for i, req := range reqs {
			if req == nil {
				return itemError(i, staterrors.NewInvalidArgumentError("", "request is nil"))
			}
			itemCtx := ctx
			tbl, err := s.bind(&itemCtx, b.cfg, req.Metadata, conn, nil)
			if err != nil {
				return itemError(i, err)
			}
			rec, err := tbl.Get(itemCtx, req.Key)
			if err != nil {
				return itemError(i, err)
			}
			if rec == nil {
				continue
			}
			items = append(items, BulkGetItem{Key: req.Key, Data: rec.Value, Etag: rec.Etag})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// BulkSet writes every item in order inside one transaction. The first
// failure rolls back all of them.
func (s *Service) BulkSet(ctx context.Context, reqs []*SetRequest) (err error) {
	ctx, done := s.begin(ctx, opBulkSet, telemetry.Items(len(reqs)))
	defer func() { done(&err) }()

	b, release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	metrics.ObserveBatchSize(s.metrics, opBulkSet, len(reqs))
	if len(reqs) == 0 {
		return nil
	}

	return withTx(ctx, b.db, func(conn *sql.Conn, tx *sql.Tx) error {
		for i, req := range reqs {
			if req == nil {
				return itemError(i, staterrors.NewInvalidArgumentError("", "request is nil"))
			}
			if _, err := s.set(ctx, b.cfg, conn, tx, req); err != nil {
				return itemError(i, err)
			}
		}
		return nil
	})
}

// BulkDelete removes every item in order inside one transaction. The first
// failure rolls back all of them.
func (s *Service) BulkDelete(ctx context.Context, reqs []*DeleteRequest) (err error) {
	ctx, done := s.begin(ctx, opBulkDelete, telemetry.Items(len(reqs)))
	defer func() { done(&err) }()

	b, release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	metrics.ObserveBatchSize(s.metrics, opBulkDelete, len(reqs))
	if len(reqs) == 0 {
		return nil
	}

	return withTx(ctx, b.db, func(conn *sql.Conn, tx *sql.Tx) error {
		for i, req := range reqs {
			if req == nil {
				return itemError(i, staterrors.NewInvalidArgumentError("", "request is nil"))
			}
			if err := s.delete(ctx, b.cfg, conn, tx, req); err != nil {
				return itemError(i, err)
			}
		}
		return nil
	})
}

// Transact applies ops in order inside one transaction. An empty list
// succeeds without touching the database.
func (s *Service) Transact(ctx context.Context, ops []Operation) (err error) {
	ctx, done := s.begin(ctx, opTransact, telemetry.Items(len(ops)))
	defer func() { done(&err) }()

	b, release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	metrics.ObserveBatchSize(s.metrics, opTransact, len(ops))
	if len(ops) == 0 {
		return nil
	}

	// Reject malformed operations before opening a transaction.
	for i, op := range ops {
		if op.Set == nil && op.Delete == nil {
			return itemError(i, staterrors.NewInvalidArgumentError("", "transact: operation not set"))
		}
		if op.Set != nil && op.Delete != nil {
			return itemError(i, staterrors.NewInvalidArgumentError("", "transact: operation has both set and delete"))
		}
	}

	return withTx(ctx, b.db, func(conn *sql.Conn, tx *sql.Tx) error {
		for i, op := range ops {
			var err error
			if op.Set != nil {
				_, err = s.set(ctx, b.cfg, conn, tx, op.Set)
			} else {
				err = s.delete(ctx, b.cfg, conn, tx, op.Delete)
			}
			if err != nil {
				return itemError(i, err)
			}
		}
		return nil
	})
}

// ============================================================================
// Shared steps
// ============================================================================

// set resolves the location of req and upserts it with missing-object recovery.
func (s *Service) set(ctx context.Context, cfg *metadata.ComponentConfig, conn *sql.Conn, tx *sql.Tx, req *SetRequest) (string, error) {
	tbl, err := s.bind(&ctx, cfg, req.Metadata, conn, tx)
	if err != nil {
		return "", err
	}

	var etag string
	err = s.withRecovery(ctx, opSet, cfg.MaxAttempts, tbl, func() error {
		var err error
		etag, err = tbl.Upsert(ctx, req.Key, req.Value, req.Etag)
		return err
	})
	return etag, err
}

// delete resolves the location of req and deletes it with missing-object recovery.
func (s *Service) delete(ctx context.Context, cfg *metadata.ComponentConfig, conn *sql.Conn, tx *sql.Tx, req *DeleteRequest) error {
	tbl, err := s.bind(&ctx, cfg, req.Metadata, conn, tx)
	if err != nil {
		return err
	}

	return s.withRecovery(ctx, opDelete, cfg.MaxAttempts, tbl, func() error {
		return tbl.Delete(ctx, req.Key, req.Etag)
	})
}

// bind resolves the effective location from per-item metadata and binds a
// record store to it. ctx is replaced by one whose log context carries the
// location.
func (s *Service) bind(ctx *context.Context, cfg *metadata.ComponentConfig, meta map[string]string, conn *sql.Conn, tx *sql.Tx) (*postgres.Table, error) {
	loc, err := cfg.Resolve(meta)
	if err != nil {
		return nil, err
	}

	tenantID := ""
	if cfg.Tenancy != metadata.TenancyNone {
		tenantID = meta[metadata.TenantIDKey]
	}
	if lc := logger.FromContext(*ctx); lc != nil {
		*ctx = logger.WithContext(*ctx, lc.WithLocation(tenantID, loc.Schema, loc.Table))
	}
	telemetry.SetAttributes(*ctx, telemetry.TenantID(tenantID), telemetry.DBSchema(loc.Schema), telemetry.DBTable(loc.Table))

	return postgres.NewTable(loc, conn, tx)
}

// itemError attaches the batch index to err, keeping its code.
func itemError(index int, err error) error {
	var se *staterrors.StoreError
	if errors.As(err, &se) {
		clone := *se
		clone.Message = fmt.Sprintf("item %d: %s", index, se.Message)
		return &clone
	}
	return fmt.Errorf("item %d: %w", index, err)
}
