package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput signals a request rejected before any I/O.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProviderUnavailable signals an embedding provider failure.
	// The ranking path recovers from it with the deterministic fallback.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	// ErrTokenBudgetExceeded signals a spent provider token budget.
	// Like a provider failure, the ranking path answers it with the fallback.
	ErrTokenBudgetExceeded = errors.New("embedding token budget exceeded")
	// ErrStoreUnavailable signals an unreachable candidate store. Retryable.
	ErrStoreUnavailable = errors.New("candidate store unavailable")
	// ErrPersistenceFailure signals a failed strategy write.
	ErrPersistenceFailure = errors.New("strategy persistence failure")
	// ErrOutcomeSourceUnavailable signals that recent outcomes could not be read.
	ErrOutcomeSourceUnavailable = errors.New("outcome source unavailable")
	// ErrAppendNotSupported signals an outcome log that is read-only for this process.
	ErrAppendNotSupported = errors.New("outcome append not supported")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
)

// InvalidInputError carries the offending field for 400 responses.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidInput.Error(), e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// NewInvalidInput creates a field-level validation error.
func NewInvalidInput(field, reason string) error {
	return &InvalidInputError{Field: field, Reason: reason}
}
