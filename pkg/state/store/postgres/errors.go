package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	staterrors "github.com/marmos91/pgstate/pkg/state/errors"
)

// PostgreSQL error codes: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	codeUndefinedTable           = "42P01"
	codeInvalidSchemaName        = "3F000"
	codeDuplicateSchema          = "42P06"
	codeDuplicateTable           = "42P07"
	codeUniqueViolation          = "23505"
	codeSerializationFailure     = "40001"
	codeDeadlockDetected         = "40P01"
	codeCharacterNotInRepertoire = "22021"
	codeUntranslatableCharacter  = "22P05"
	codeInsufficientPrivilege    = "42501"
	codeQueryCanceled            = "57014"
)

// mapPgError maps PostgreSQL errors to state store errors.
// The driver error is always kept as the StoreError cause.
func mapPgError(err error, operation, key string) error {
	if err == nil {
		return nil
	}

	// Already mapped
	var storeErr *staterrors.StoreError
	if errors.As(err, &storeErr) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgErrorCode(pgErr, err, operation, key)
	}

	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return &staterrors.StoreError{
			Code:    staterrors.ErrIOError,
			Message: fmt.Sprintf("%s: connection or transaction already closed", operation),
			Key:     key,
			Err:     err,
		}
	}

	// Unknown error - treat as I/O error
	return &staterrors.StoreError{
		Code:    staterrors.ErrIOError,
		Message: fmt.Sprintf("%s: %v", operation, err),
		Key:     key,
		Err:     err,
	}
}

// mapPgErrorCode maps PostgreSQL error codes to state store errors
func mapPgErrorCode(pgErr *pgconn.PgError, cause error, operation, key string) error {
	newErr := func(code staterrors.ErrorCode, msg string) error {
		return &staterrors.StoreError{
			Code:    code,
			Message: fmt.Sprintf("%s: %s", operation, msg),
			Key:     key,
			Err:     cause,
		}
	}

	switch pgErr.Code {
	// 42P01: undefined_table, 3F000: invalid_schema_name
	case codeUndefinedTable, codeInvalidSchemaName:
		return newErr(staterrors.ErrRelationMissing, pgErr.Message)

	// 40001: serialization_failure (transaction conflict)
	case codeSerializationFailure:
		return newErr(staterrors.ErrIOError, "transaction conflict, retry")

	// 40P01: deadlock_detected
	case codeDeadlockDetected:
		return newErr(staterrors.ErrIOError, "deadlock detected, retry")

	// 22021: character_not_in_repertoire, 22P05: untranslatable_character
	case codeCharacterNotInRepertoire, codeUntranslatableCharacter:
		return newErr(staterrors.ErrInvalidArgument, "value is not valid UTF-8 text")

	// 42501: insufficient_privilege
	case codeInsufficientPrivilege:
		return newErr(staterrors.ErrIOError, "permission denied: "+pgErr.Message)

	// 57014: query_canceled
	case codeQueryCanceled:
		return newErr(staterrors.ErrIOError, "operation canceled")

	// 08000-08006: connection errors
	case "08000", "08003", "08006":
		return newErr(staterrors.ErrIOError, "database connection error")

	default:
		return newErr(staterrors.ErrIOError, fmt.Sprintf("database error [%s] %s", pgErr.Code, pgErr.Message))
	}
}

// isDuplicateObject reports whether err is the loser of a concurrent
// CREATE ... IF NOT EXISTS race. PostgreSQL can raise these even with
// IF NOT EXISTS when two sessions create the same object at once.
func isDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeDuplicateSchema, codeDuplicateTable, codeUniqueViolation:
		return true
	}
	return false
}
