package book

import (
	"errors"
	"fmt"
)

// Per-source outcomes. These never reach the caller; the orchestrator
// absorbs them and decides how the chain proceeds.
var (
	// ErrNotFound means the source answered but has no data for this book.
	// Terminal for that source on this request, not an error condition.
	ErrNotFound = errors.New("book not found")

	// ErrTransient covers timeouts, 5xx responses and malformed payloads.
	// Eligible for a single same-request retry with backoff.
	ErrTransient = errors.New("transient source error")

	// ErrFatal covers auth failures and malformed requests. Never retried,
	// counts immediately against the source's circuit breaker.
	ErrFatal = errors.New("fatal source error")

	// ErrQuotaExceeded means the quota gate kept deferring the source until
	// the per-request deferral budget ran out.
	ErrQuotaExceeded = errors.New("source quota exceeded")

	// ErrCircuitOpen means the source's circuit breaker is open.
	ErrCircuitOpen = errors.New("source circuit open")
)

// FailureKind classifies terminal enrichment failures. The string values
// double as the machine-readable error codes on the wire.
type FailureKind string

const (
	FailureInvalidIdentifier FailureKind = "invalid_identifier"
	FailureDataQuality       FailureKind = "data_quality"
	FailureExhausted         FailureKind = "all_sources_exhausted"
	FailureTimeout           FailureKind = "timeout"
)

// EnrichmentError is the single typed failure returned to callers. It
// carries enough detail to decide on manual fallback without leaking
// per-source errors.
type EnrichmentError struct {
	Kind    FailureKind
	Message string

	// TiersAttempted is how deep into the fallback chain the request got.
	TiersAttempted int

	// Partial reports whether at least one source produced usable data
	// before the request failed.
	Partial bool
}

func (e *EnrichmentError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Code returns the machine-readable error code.
func (e *EnrichmentError) Code() string {
	return string(e.Kind)
}

// AsEnrichmentError unwraps err into an *EnrichmentError if possible.
func AsEnrichmentError(err error) (*EnrichmentError, bool) {
	var ee *EnrichmentError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
