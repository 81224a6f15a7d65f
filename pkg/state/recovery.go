package state

import (
	"context"

	"github.com/marmos91/pgstate/internal/logger"
	"github.com/marmos91/pgstate/internal/telemetry"
	"github.com/marmos91/pgstate/pkg/metrics"
	staterrors "github.com/marmos91/pgstate/pkg/state/errors"
	"github.com/marmos91/pgstate/pkg/state/store/postgres"
)

// withRecovery runs fn up to maxAttempts times. Only a missing schema or
// table triggers another attempt, after the objects are created. Creation
// errors are logged and never abort the loop. When attempts run out the
// first triggering error is returned.
func (s *Service) withRecovery(ctx context.Context, op string, maxAttempts int, tbl *postgres.Table, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var first error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !staterrors.IsRelationMissingError(err) {
			return err
		}
		if first == nil {
			first = err
		}
		if attempt == maxAttempts {
			break
		}

		s.recover(ctx, op, attempt, tbl)
	}

	logger.WarnCtx(ctx, "missing-object recovery exhausted",
		logger.MaxAttempts(maxAttempts), logger.Err(first))
	return first
}

// recover creates the schema and table of tbl.
func (s *Service) recover(ctx context.Context, op string, attempt int, tbl *postgres.Table) {
	loc := tbl.Location()
	ctx, span := telemetry.StartStoreSpan(ctx, telemetry.SpanStoreRecover,
		telemetry.Attempt(attempt), telemetry.DBSchema(loc.Schema), telemetry.DBTable(loc.Table))
	defer span.End()

	metrics.RecordRecovery(s.metrics, op)
	// Schema and table are already on the request's LogContext.
	logger.InfoCtx(ctx, "creating missing schema and table", logger.Attempt(attempt))

	if err := tbl.EnsureSchema(ctx); err != nil {
		logEnsureFailure(ctx, "schema", attempt, err)
	}
	if err := tbl.EnsureTable(ctx); err != nil {
		logEnsureFailure(ctx, "table", attempt, err)
	}
}

func logEnsureFailure(ctx context.Context, object string, attempt int, err error) {
	telemetry.RecordError(ctx, err)
	if staterrors.IsRelationMissingError(err) {
		logger.DebugCtx(ctx, "ensure "+object+" hit a missing object", logger.Attempt(attempt), logger.Err(err))
		return
	}
	logger.WarnCtx(ctx, "ensure "+object+" failed", logger.Attempt(attempt), logger.Err(err))
}
