package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/marmos91/pgstate/internal/logger"
	"github.com/marmos91/pgstate/internal/telemetry"
	"github.com/marmos91/pgstate/pkg/metrics"
	staterrors "github.com/marmos91/pgstate/pkg/state/errors"
)

// ============================================================================
// Request scopes
// ============================================================================

// withConn runs fn on one dedicated connection, released on every exit path.
func withConn(ctx context.Context, db *sql.DB, fn func(conn *sql.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return &staterrors.StoreError{
			Code:    staterrors.ErrIOError,
			Message: fmt.Sprintf("acquire connection: %v", err),
			Err:     err,
		}
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, sql.ErrConnDone) {
			logger.DebugCtx(ctx, "failed to release connection", logger.Err(cerr))
		}
	}()

	return fn(conn)
}

// withTx runs fn inside one transaction on one dedicated connection.
//
// If fn returns an error, the transaction is rolled back.
// If fn returns nil, the transaction is committed.
func withTx(ctx context.Context, db *sql.DB, fn func(conn *sql.Conn, tx *sql.Tx) error) error {
	return withConn(ctx, db, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return &staterrors.StoreError{
				Code:    staterrors.ErrIOError,
				Message: fmt.Sprintf("begin transaction: %v", err),
				Err:     err,
			}
		}

		if err := fn(conn, tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.WarnCtx(ctx, "transaction rollback failed", logger.Err(rbErr))
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			return &staterrors.StoreError{
				Code:    staterrors.ErrIOError,
				Message: fmt.Sprintf("commit transaction: %v", err),
				Err:     err,
			}
		}
		return nil
	})
}

// ============================================================================
// Instrumentation
// ============================================================================

// begin opens the span, log context, timeout and metrics for one operation.
// The returned func must be deferred with a pointer to the named error result.
func (s *Service) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := telemetry.StartStateSpan(ctx, op, attrs...)

	lc := logger.NewLogContext(op).WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	ctx = logger.WithContext(ctx, lc)

	cancel := func() {}
	if s.requestTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
	}

	start := time.Now()
	return ctx, func(errp *error) {
		defer span.End()
		defer cancel()

		var err error
		if errp != nil {
			err = *errp
		}
		metrics.ObserveOperation(s.metrics, op, time.Since(start), err)

		if err == nil {
			logger.DebugCtx(ctx, "state operation completed", logger.DurationMs(lc.DurationMs()))
			return
		}

		telemetry.RecordError(ctx, err)
		code := staterrors.CodeOf(err)
		switch code {
		case staterrors.ErrEtagMismatch:
			metrics.RecordEtagMismatch(s.metrics, op)
			logger.InfoCtx(ctx, "state operation rejected: etag mismatch",
				logger.Err(err), logger.DurationMs(lc.DurationMs()))
		case staterrors.ErrConfiguration, staterrors.ErrNotInitialized,
			staterrors.ErrValidation, staterrors.ErrInvalidArgument:
			logger.WarnCtx(ctx, "state operation rejected",
				logger.ErrorCode(code.String()), logger.Err(err))
		default:
			logger.ErrorCtx(ctx, "state operation failed",
				logger.ErrorCode(code.String()), logger.Err(err), logger.DurationMs(lc.DurationMs()))
		}
	}
}
