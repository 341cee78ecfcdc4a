package domain

import "errors"

// Domain errors
var (
	ErrPlayerNotFound   = errors.New("player not found")
	ErrMatchNotFound    = errors.New("match not found")
	ErrMatchStored      = errors.New("match already stored")
	ErrFetchExhausted   = errors.New("fetch attempts exhausted")
	ErrInvalidPayload   = errors.New("invalid match payload")
	ErrRunInProgress    = errors.New("ingestion run already in progress")
	ErrNoRunRecorded    = errors.New("no ingestion run recorded")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInternalError    = errors.New("internal error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) || errors.Is(err, ErrMatchNotFound) || errors.Is(err, ErrNoRunRecorded)
}
