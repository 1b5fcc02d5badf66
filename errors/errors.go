package errors

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")
)

// Reasoning loop taxonomy. Only ErrSynthesisFailed (and context cancellation)
// ever escapes a pipeline run; the rest are degraded where they occur and
// surface in logs and cycle records.
var (
	// ErrPortUnavailable marks a retrieval or generation backend that could not be reached.
	ErrPortUnavailable = errors.New("port unavailable")

	// ErrEmptyEvidence marks an exchange that retrieved no chunks in any cycle.
	ErrEmptyEvidence = errors.New("no evidence retrieved")

	// ErrUnparseableOutput marks model output that could not be parsed into the expected structure.
	ErrUnparseableOutput = errors.New("unparseable model output")

	// ErrCitationMismatch marks a generated citation that references no retrieved chunk.
	ErrCitationMismatch = errors.New("citation references unknown evidence")

	// ErrRetryBudgetExhausted is the signal recorded when the controller forces
	// acceptance because the retry cap was reached.
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

	// ErrSynthesisFailed is the exchange-level failure raised when no final answer could be generated.
	ErrSynthesisFailed = errors.New("final answer synthesis failed")

	// ErrIndexCorrupt marks a persisted index or search backend returning inconsistent data.
	ErrIndexCorrupt = errors.New("index corrupt")

	// ErrUntrustedIndex is returned when a persisted index exists but loading
	// untrusted snapshots has not been allowed.
	ErrUntrustedIndex = errors.New("persisted index not trusted")
)
