package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bookdex/internal/book"
	"bookdex/internal/ratelimit"
	"bookdex/internal/source"
)

// OrchestratorConfig tunes the fallback chain.
type OrchestratorConfig struct {
	// RequiredFields drive the sufficiency predicate. Names match the
	// record JSON keys ("title", "author", "isbn", "publisher", ...).
	RequiredFields []string

	// MaxDeferrals bounds how often a Deferred admission is retried per
	// source per request before the source is skipped.
	MaxDeferrals int

	// TransientBackoff is the wait before the single same-request retry
	// of a transient source failure.
	TransientBackoff time.Duration
}

// DefaultOrchestratorConfig returns the chain settings used when none
// are configured.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		RequiredFields:   []string{"title", "author", "isbn"},
		MaxDeferrals:     2,
		TransientBackoff: 500 * time.Millisecond,
	}
}

// Orchestrator drives the ordered source chain: cache consultation is
// the service's job; the orchestrator owns everything between cache miss
// and merge.
type Orchestrator struct {
	tiers [][]source.Client
	gate  *ratelimit.Gate
	cfg   OrchestratorConfig
	log   *slog.Logger
}

// NewOrchestrator groups the sources into tiers sorted by priority.
func NewOrchestrator(clients []source.Client, gate *ratelimit.Gate, cfg OrchestratorConfig) *Orchestrator {
	if len(cfg.RequiredFields) == 0 {
		cfg.RequiredFields = DefaultOrchestratorConfig().RequiredFields
	}
	if cfg.MaxDeferrals <= 0 {
		cfg.MaxDeferrals = DefaultOrchestratorConfig().MaxDeferrals
	}
	if cfg.TransientBackoff <= 0 {
		cfg.TransientBackoff = DefaultOrchestratorConfig().TransientBackoff
	}

	sorted := make([]source.Client, len(clients))
	copy(sorted, clients)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Tier() < sorted[j].Tier()
	})

	var tiers [][]source.Client
	for _, c := range sorted {
		if n := len(tiers); n > 0 && tiers[n-1][0].Tier() == c.Tier() {
			tiers[n-1] = append(tiers[n-1], c)
			continue
		}
		tiers = append(tiers, []source.Client{c})
	}

	return &Orchestrator{
		tiers: tiers,
		gate:  gate,
		cfg:   cfg,
		log:   slog.Default(),
	}
}

// Run walks the tiers in strict order. Sources inside one tier run in
// parallel and are joined before the sufficiency predicate is evaluated;
// once it holds, lower tiers are never consulted. Per-source failures
// are absorbed: only the terminal outcome surfaces.
func (o *Orchestrator) Run(ctx context.Context, req book.Request) ([]book.CandidateResult, int, error) {
	var (
		mu      sync.Mutex
		results []book.CandidateResult
		skipped []string
	)
	tiersAttempted := 0

	for _, tier := range o.tiers {
		if ctx.Err() != nil {
			break
		}

		eligible := tier[:0:0]
		for _, c := range tier {
			if source.Supports(c, req) {
				eligible = append(eligible, c)
			}
		}
		if len(eligible) == 0 {
			continue
		}
		tiersAttempted++

		g, tierCtx := errgroup.WithContext(ctx)
		for _, c := range eligible {
			c := c
			g.Go(func() error {
				cand, err := o.attempt(tierCtx, c, req)
				mu.Lock()
				if cand != nil {
					results = append(results, book.CandidateResult{
						Candidate:       cand,
						Source:          c.Name(),
						Tier:            c.Tier(),
						ValidatorFields: c.ValidatorFields(),
					})
				} else if err != nil {
					skipped = append(skipped, fmt.Sprintf("%s: %v", c.Name(), err))
				}
				mu.Unlock()
				// Per-source errors never fail the tier.
				return nil
			})
		}
		_ = g.Wait()

		if o.sufficient(results) {
			o.log.Debug("sufficiency reached, short-circuiting chain",
				"request", req.ID, "tier", eligible[0].Tier(), "candidates", len(results))
			return results, tiersAttempted, nil
		}
	}

	if ctx.Err() != nil && !o.sufficient(results) {
		return results, tiersAttempted, &book.EnrichmentError{
			Kind:           book.FailureTimeout,
			Message:        "deadline expired before enough data was gathered",
			TiersAttempted: tiersAttempted,
			Partial:        len(results) > 0,
		}
	}

	if len(results) == 0 {
		msg := "no source produced a candidate"
		if len(skipped) > 0 {
			msg = fmt.Sprintf("%s (%s)", msg, strings.Join(skipped, "; "))
		}
		return nil, tiersAttempted, &book.EnrichmentError{
			Kind:           book.FailureExhausted,
			Message:        msg,
			TiersAttempted: tiersAttempted,
		}
	}

	// Partial data: hand what we have to merge and let validation decide.
	return results, tiersAttempted, nil
}

// attempt runs one source through the quota gate with the deferral and
// retry policy. A nil candidate with a nil error means the source
// answered but has no data; a non-nil error is the skip or failure
// reason.
func (o *Orchestrator) attempt(ctx context.Context, c source.Client, req book.Request) (*book.Candidate, error) {
	name := c.Name()

	for deferral := 0; ; deferral++ {
		decision := o.gate.Admit(name)
		switch decision.Kind {
		case ratelimit.Allowed:
		case ratelimit.CircuitOpen:
			o.log.Debug("source skipped, circuit open", "request", req.ID, "source", name, "until", decision.Until)
			return nil, book.ErrCircuitOpen
		case ratelimit.Deferred:
			if deferral >= o.cfg.MaxDeferrals {
				o.log.Debug("source skipped, quota exhausted", "request", req.ID, "source", name)
				return nil, book.ErrQuotaExceeded
			}
			if !sleepCtx(ctx, decision.RetryAfter) {
				return nil, ctx.Err()
			}
			continue
		}
		break
	}

	cand, err := c.Lookup(ctx, req)
	if errors.Is(err, book.ErrTransient) {
		// One same-request retry with backoff.
		if !sleepCtx(ctx, o.cfg.TransientBackoff) {
			o.gate.RecordFailure(name)
			return nil, err
		}
		cand, err = c.Lookup(ctx, req)
	}

	switch {
	case err == nil:
		o.gate.RecordSuccess(name)
		o.log.Debug("source answered", "request", req.ID, "source", name)
		return cand, nil
	case errors.Is(err, book.ErrNotFound):
		// The call itself worked; a miss is not a source failure.
		o.gate.RecordSuccess(name)
		o.log.Debug("source has no data", "request", req.ID, "source", name)
		return nil, nil
	case ctx.Err() != nil:
		// The request deadline expired or the caller cancelled; the
		// source's breaker is not charged for our own deadline.
		o.log.Debug("source abandoned", "request", req.ID, "source", name, "error", err)
		return nil, err
	default:
		o.gate.RecordFailure(name)
		o.log.Warn("source failed", "request", req.ID, "source", name, "error", err)
		return nil, err
	}
}

// sufficient reports whether the accumulated candidates populate every
// required field.
func (o *Orchestrator) sufficient(results []book.CandidateResult) bool {
	for _, field := range o.cfg.RequiredFields {
		found := false
		for _, res := range results {
			if res.Candidate.Has(field) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return len(results) > 0
}

// sleepCtx waits for d or until ctx is done. Reports whether the full
// wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
