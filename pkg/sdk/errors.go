package aim3

import "github.com/kailas-cloud/aim3/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidInput             = domain.ErrInvalidInput
	ErrStoreUnavailable         = domain.ErrStoreUnavailable
	ErrPersistenceFailure       = domain.ErrPersistenceFailure
	ErrOutcomeSourceUnavailable = domain.ErrOutcomeSourceUnavailable
	ErrVectorDimMismatch        = domain.ErrVectorDimMismatch
)
