package store

import "errors"

var (
	// ErrNotFound indicates that the requested fragment was not found.
	ErrNotFound = errors.New("fragment not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable indicates the store did not respond within the
	// configured timeout, or the circuit breaker is open. Callers degrade:
	// identity resolution returns no-match, context retrieval returns a
	// minimal summary. Never propagated past the engine's public API.
	ErrStoreUnavailable = errors.New("semantic store unavailable")
)

// DefaultFetchLimit is applied when FetchOptions.Limit is zero or negative.
const DefaultFetchLimit = 200
