// Package postgres implements the record store: schema-qualified CRUD over a
// single state table with etag-based optimistic concurrency and idempotent
// bootstrap of the schema and table.
//
// A Table is bound to one Location and one dedicated connection for the
// lifetime of a request. When it is also bound to a transaction, every
// statement runs under a savepoint so that a failed statement (for example a
// missing relation) can be rolled back without aborting the outer transaction.
package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/marmos91/pgstate/internal/logger"
	staterrors "github.com/marmos91/pgstate/pkg/state/errors"
	"github.com/marmos91/pgstate/pkg/state/metadata"
)

const savepointName = "pgstate_stmt"

// Record is one stored state entry.
type Record struct {
	Key        string
	Value      []byte
	Etag       string
	InsertDate time.Time
	UpdateDate *time.Time
}

// queryer is satisfied by both *sql.Conn and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Table is the record store bound to one location and one connection.
// It holds no state beyond its bindings and must not be shared across requests.
type Table struct {
	loc  metadata.Location
	conn *sql.Conn
	tx   *sql.Tx

	schemaIdent string // quoted schema
	tableIdent  string // quoted schema.table
}

// NewTable binds a record store to loc, conn and, optionally, tx.
// A nil tx means statements run directly on the connection.
func NewTable(loc metadata.Location, conn *sql.Conn, tx *sql.Tx) (*Table, error) {
	if conn == nil {
		return nil, staterrors.NewInternalError("record store requires a connection")
	}
	if loc.Schema == "" || loc.Table == "" {
		return nil, staterrors.NewInternalError(fmt.Sprintf("incomplete location %q", loc.String()))
	}

	return &Table{
		loc:         loc,
		conn:        conn,
		tx:          tx,
		schemaIdent: pgx.Identifier{loc.Schema}.Sanitize(),
		tableIdent:  pgx.Identifier{loc.Schema, loc.Table}.Sanitize(),
	}, nil
}

// Location returns the location this table is bound to.
func (t *Table) Location() metadata.Location {
	return t.loc
}

// ============================================================================
// Bootstrap
// ============================================================================

// EnsureSchema creates the schema if it does not exist.
func (t *Table) EnsureSchema(ctx context.Context) error {
	err := t.guard(ctx, func(q queryer) error {
		_, err := q.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+t.schemaIdent)
		return err
	})
	if err != nil && !isDuplicateObject(err) {
		return mapPgError(err, "ensure schema", "")
	}
	return nil
}

// EnsureTable creates the state table if it does not exist.
func (t *Table) EnsureTable(ctx context.Context) error {
	err := t.guard(ctx, func(q queryer) error {
		_, err := q.ExecContext(ctx, t.createTableSQL())
		return err
	})
	if err != nil && !isDuplicateObject(err) {
		return mapPgError(err, "ensure table", "")
	}
	return nil
}

func (t *Table) createTableSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key text NOT NULL PRIMARY KEY,
	value text NOT NULL,
	etag text NOT NULL,
	insertdate timestamptz NOT NULL DEFAULT NOW(),
	updatedate timestamptz NULL
)`, t.tableIdent)
}

// ============================================================================
// CRUD
// ============================================================================

// Get returns the record stored under key, or nil if the key or the
// relation does not exist.
func (t *Table) Get(ctx context.Context, key string) (*Record, error) {
	var (
		rec     Record
		value   string
		updated sql.NullTime
	)

	query := fmt.Sprintf("SELECT value, etag, insertdate, updatedate FROM %s WHERE key = $1", t.tableIdent)
	err := t.guard(ctx, func(q queryer) error {
		return q.QueryRowContext(ctx, query, key).Scan(&value, &rec.Etag, &rec.InsertDate, &updated)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		mapped := mapPgError(err, "get", key)
		if staterrors.IsRelationMissingError(mapped) {
			return nil, nil
		}
		return nil, mapped
	}

	rec.Key = key
	rec.Value = []byte(value)
	if updated.Valid {
		rec.UpdateDate = &updated.Time
	}
	return &rec, nil
}

// Exists reports whether key is stored. A missing relation means false.
func (t *Table) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool

	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE key = $1)", t.tableIdent)
	err := t.guard(ctx, func(q queryer) error {
		return q.QueryRowContext(ctx, query, key).Scan(&exists)
	})
	if err != nil {
		mapped := mapPgError(err, "exists", key)
		if staterrors.IsRelationMissingError(mapped) {
			return false, nil
		}
		return false, mapped
	}
	return exists, nil
}

// Upsert writes value under key and returns the new etag.
//
// An empty etag is an unconditional insert-or-update; the schema and table
// are ensured first and failures there are only logged. A non-empty etag
// makes the write conditional on the stored etag; zero matched rows yields
// an EtagMismatch error and leaves the stored record untouched.
func (t *Table) Upsert(ctx context.Context, key string, value []byte, etag string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if err := validateValue(key, value); err != nil {
		return "", err
	}

	newEtag := uuid.NewString()

	if etag == "" {
		t.ensureQuietly(ctx)

		query := fmt.Sprintf(`INSERT INTO %s (key, value, etag) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, etag = EXCLUDED.etag, updatedate = NOW()`, t.tableIdent)
		err := t.guard(ctx, func(q queryer) error {
			_, err := q.ExecContext(ctx, query, key, string(value), newEtag)
			return err
		})
		if err != nil {
			return "", mapPgError(err, "upsert", key)
		}
		return newEtag, nil
	}

	query := fmt.Sprintf("UPDATE %s SET value = $1, etag = $2, updatedate = NOW() WHERE key = $3 AND etag = $4", t.tableIdent)
	var affected int64
	err := t.guard(ctx, func(q queryer) error {
		res, err := q.ExecContext(ctx, query, string(value), newEtag, key, etag)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return "", mapPgError(err, "update", key)
	}
	if affected == 0 {
		return "", t.etagMismatch(ctx, key)
	}
	return newEtag, nil
}

// Delete removes key. A non-empty etag makes the delete conditional.
// Unconditionally deleting an absent key, or deleting from a relation that
// does not exist, succeeds.
func (t *Table) Delete(ctx context.Context, key, etag string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	var (
		query string
		args  []any
	)
	if etag == "" {
		query = fmt.Sprintf("DELETE FROM %s WHERE key = $1", t.tableIdent)
		args = []any{key}
	} else {
		query = fmt.Sprintf("DELETE FROM %s WHERE key = $1 AND etag = $2", t.tableIdent)
		args = []any{key, etag}
	}

	var affected int64
	err := t.guard(ctx, func(q queryer) error {
		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		mapped := mapPgError(err, "delete", key)
		if etag == "" && staterrors.IsRelationMissingError(mapped) {
			return nil
		}
		return mapped
	}

	if affected == 0 && etag != "" {
		return t.etagMismatch(ctx, key)
	}
	return nil
}

// etagMismatch builds the mismatch error, telling apart an absent key from
// a stale etag. The error code is the same in both cases.
func (t *Table) etagMismatch(ctx context.Context, key string) error {
	exists, err := t.Exists(ctx, key)
	if err != nil {
		logger.DebugCtx(ctx, "etag mismatch lookup failed", logger.Key(key), logger.Err(err))
		return staterrors.NewEtagMismatchError(key, "no record matched the supplied etag")
	}
	if !exists {
		return staterrors.NewEtagMismatchError(key, "key does not exist")
	}
	return staterrors.NewEtagMismatchError(key, "stored etag differs from the supplied etag")
}

// ensureQuietly creates the schema and table ahead of an unconditional write.
// Failures are logged only; the write itself reports any real problem.
func (t *Table) ensureQuietly(ctx context.Context) {
	if err := t.EnsureSchema(ctx); err != nil {
		logger.WarnCtx(ctx, "failed to ensure schema",
			logger.Schema(t.loc.Schema), logger.Err(err))
	}
	if err := t.EnsureTable(ctx); err != nil {
		logger.WarnCtx(ctx, "failed to ensure table",
			logger.Schema(t.loc.Schema), logger.Table(t.loc.Table), logger.Err(err))
	}
}

// ============================================================================
// Savepoints
// ============================================================================

// guard runs fn on the bound transaction under a savepoint, or directly on
// the connection when no transaction is bound. On failure the savepoint is
// rolled back so the transaction stays usable.
func (t *Table) guard(ctx context.Context, fn func(q queryer) error) error {
	if t.tx == nil {
		return fn(t.conn)
	}

	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+savepointName); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}

	if err := fn(t.tx); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		return err
	}

	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// ============================================================================
// Validation
// ============================================================================

func validateKey(key string) error {
	if key == "" {
		return staterrors.NewInvalidArgumentError(key, "key must not be empty")
	}
	if !utf8.ValidString(key) || strings.ContainsRune(key, 0) {
		return staterrors.NewInvalidArgumentError("", "key is not valid UTF-8 text")
	}
	return nil
}

func validateValue(key string, value []byte) error {
	if !utf8.Valid(value) {
		return staterrors.NewInvalidArgumentError(key, "value is not valid UTF-8 text")
	}
	if bytes.IndexByte(value, 0) >= 0 {
		return staterrors.NewInvalidArgumentError(key, "value contains a NUL byte")
	}
	return nil
}
