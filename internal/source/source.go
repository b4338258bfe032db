// Package source contains the clients for the external data sources in
// the fallback chain. Each client performs one lookup against one API or
// scrape target and normalizes the response into the common candidate
// shape, so the merge stage is source-agnostic.
package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"bookdex/internal/book"
)

// Capability describes which lookup styles a client supports.
type Capability uint8

const (
	// ByISBN looks a book up by its normalized ISBN-13.
	ByISBN Capability = 1 << iota
	// ByTitleAuthor looks a book up by a title/author pair.
	ByTitleAuthor
)

// Has reports whether c includes want.
func (c Capability) Has(want Capability) bool {
	return c&want != 0
}

// Client is implemented by each concrete source variant. Lookup returns
// the normalized candidate, or one of the per-source sentinel errors:
// book.ErrNotFound (terminal for this source, not a failure),
// book.ErrTransient (one same-request retry allowed) or book.ErrFatal
// (never retried, trips the circuit breaker).
type Client interface {
	// Name returns the source identifier used for quota state,
	// provenance and logging.
	Name() string

	// Tier returns the source's position in the fallback chain.
	// Lower tiers are consulted first.
	Tier() int

	// Capabilities reports which identifier kinds this source can serve.
	Capabilities() Capability

	// ValidatorFields lists record fields this source authoritatively
	// overrides during merge regardless of tier order. Empty for
	// general-purpose sources.
	ValidatorFields() []string

	// Ping tests the connection to the source.
	Ping(ctx context.Context) error

	// Lookup performs one enrichment lookup.
	Lookup(ctx context.Context, req book.Request) (*book.Candidate, error)
}

// classifyStatus maps an unexpected HTTP status to the error taxonomy:
// 5xx and 429 are transient, auth and client errors are fatal.
func classifyStatus(source string, status int) error {
	switch {
	case status == http.StatusNotFound:
		return book.ErrNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: %s returned status %d", book.ErrTransient, source, status)
	default:
		return fmt.Errorf("%w: %s returned status %d", book.ErrFatal, source, status)
	}
}

// classifyTransport maps a transport-level error: context cancellation
// passes through, everything else (timeouts, refused connections, DNS)
// is transient.
func classifyTransport(source string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || err != nil {
		return fmt.Errorf("%w: %s request failed: %v", book.ErrTransient, source, err)
	}
	return nil
}

// Supports reports whether the client can serve the request's identifier kind.
func Supports(c Client, req book.Request) bool {
	switch req.Identifier.Kind {
	case book.KindISBN10, book.KindISBN13:
		return c.Capabilities().Has(ByISBN)
	case book.KindTitleAuthor:
		return c.Capabilities().Has(ByTitleAuthor)
	}
	return false
}
