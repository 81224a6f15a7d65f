// Package errors provides error types and error codes for the state store.
// This is a leaf package with no internal dependencies so it can be imported
// by the metadata resolver, the record store and the coordinator without
// causing circular imports.
//
// Import graph: errors <- metadata <- store/postgres <- state <- adapter
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred.
type ErrorCode int

const (
	// ErrConfiguration indicates invalid or missing component configuration.
	ErrConfiguration ErrorCode = iota + 1

	// ErrNotInitialized indicates a data operation was invoked before Init.
	ErrNotInitialized

	// ErrValidation indicates invalid per-request metadata (e.g. missing tenant id).
	ErrValidation

	// ErrEtagMismatch indicates a conditional write or delete matched zero rows.
	// The stored value is guaranteed to be unchanged.
	ErrEtagMismatch

	// ErrRelationMissing indicates the target schema or table does not exist.
	// The coordinator recovers from it by creating the objects and retrying.
	ErrRelationMissing

	// ErrInvalidArgument indicates an invalid key or value was provided.
	ErrInvalidArgument

	// ErrIOError indicates an unexpected database failure.
	ErrIOError

	// ErrInternal indicates a broken invariant inside the component.
	ErrInternal
)

// String returns a human-readable name for the error code.
func (e ErrorCode) String() string {
	switch e {
	case ErrConfiguration:
		return "Configuration"
	case ErrNotInitialized:
		return "NotInitialized"
	case ErrValidation:
		return "Validation"
	case ErrEtagMismatch:
		return "EtagMismatch"
	case ErrRelationMissing:
		return "RelationMissing"
	case ErrInvalidArgument:
		return "InvalidArgument"
	case ErrIOError:
		return "IOError"
	case ErrInternal:
		return "Internal"
	default:
		return fmt.Sprintf("Unknown(%d)", e)
	}
}

// StoreError represents a state store error with an error code.
//
// Err carries the underlying driver error, if any, so callers can still
// inspect it with errors.As (for example to read the PostgreSQL SQLSTATE).
type StoreError struct {
	Code    ErrorCode
	Message string
	Key     string
	Err     error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s (key: %s)", e.Code, e.Message, e.Key)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying driver error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// ============================================================================
// Factory Functions
// ============================================================================

// NewConfigurationError creates a Configuration error.
func NewConfigurationError(format string, args ...any) *StoreError {
	return &StoreError{
		Code:    ErrConfiguration,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewNotInitializedError creates a NotInitialized error.
func NewNotInitializedError() *StoreError {
	return &StoreError{
		Code:    ErrNotInitialized,
		Message: "state store is not initialized, call 'Init' first",
	}
}

// NewValidationError creates a Validation error.
func NewValidationError(message string) *StoreError {
	return &StoreError{
		Code:    ErrValidation,
		Message: message,
	}
}

// NewEtagMismatchError creates an EtagMismatch error for key.
func NewEtagMismatchError(key, reason string) *StoreError {
	return &StoreError{
		Code:    ErrEtagMismatch,
		Message: fmt.Sprintf("etag mismatch: %s", reason),
		Key:     key,
	}
}

// NewInvalidArgumentError creates an InvalidArgument error.
func NewInvalidArgumentError(key, message string) *StoreError {
	return &StoreError{
		Code:    ErrInvalidArgument,
		Message: message,
		Key:     key,
	}
}

// NewInternalError creates an Internal error.
func NewInternalError(message string) *StoreError {
	return &StoreError{
		Code:    ErrInternal,
		Message: message,
	}
}

// ============================================================================
// Error Type Checking Helpers
// ============================================================================

// CodeOf returns the ErrorCode carried by err, or 0 if err is not a StoreError.
func CodeOf(err error) ErrorCode {
	var storeErr *StoreError
	if stderrors.As(err, &storeErr) {
		return storeErr.Code
	}
	return 0
}

// IsConfigurationError returns true for configuration and not-initialized errors.
func IsConfigurationError(err error) bool {
	code := CodeOf(err)
	return code == ErrConfiguration || code == ErrNotInitialized
}

// IsNotInitializedError returns true if the error is a NotInitialized error.
func IsNotInitializedError(err error) bool {
	return CodeOf(err) == ErrNotInitialized
}

// IsValidationError returns true if the error is a Validation error.
func IsValidationError(err error) bool {
	return CodeOf(err) == ErrValidation
}

// IsEtagMismatchError returns true if the error is an EtagMismatch error.
func IsEtagMismatchError(err error) bool {
	return CodeOf(err) == ErrEtagMismatch
}

// IsRelationMissingError returns true if the schema or table does not exist.
func IsRelationMissingError(err error) bool {
	return CodeOf(err) == ErrRelationMissing
}

// IsInvalidArgumentError returns true if the error is an InvalidArgument error.
func IsInvalidArgumentError(err error) bool {
	return CodeOf(err) == ErrInvalidArgument
}
