package state

import (
	"github.com/marmos91/pgstate/pkg/state/errors"
)

// ============================================================================
// Re-exported types from errors package
// ============================================================================

// StoreError is re-exported from the errors package.
type StoreError = errors.StoreError

// ErrorCode is re-exported from the errors package.
type ErrorCode = errors.ErrorCode

// Re-exported error codes.
const (
	ErrConfiguration   = errors.ErrConfiguration
	ErrNotInitialized  = errors.ErrNotInitialized
	ErrValidation      = errors.ErrValidation
	ErrEtagMismatch    = errors.ErrEtagMismatch
	ErrRelationMissing = errors.ErrRelationMissing
	ErrInvalidArgument = errors.ErrInvalidArgument
	ErrIOError         = errors.ErrIOError
	ErrInternal        = errors.ErrInternal
)

// Re-exported error helpers.
var (
	IsConfigurationError   = errors.IsConfigurationError
	IsNotInitializedError  = errors.IsNotInitializedError
	IsValidationError      = errors.IsValidationError
	IsEtagMismatchError    = errors.IsEtagMismatchError
	IsInvalidArgumentError = errors.IsInvalidArgumentError
)
