package enrich

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"bookdex/internal/book"
	"bookdex/internal/cache"
	"bookdex/internal/sink"
)

// ServiceConfig tunes the enrichment entry point.
type ServiceConfig struct {
	// Deadline bounds one enrichment run end to end.
	Deadline time.Duration

	// CacheTTL is how long a consolidated record stays servable.
	CacheTTL time.Duration

	// NegativeCache records exhausted lookups so repeat requests for
	// unknown identifiers short-circuit before any source call.
	NegativeCache bool

	// NegativeTTL is how long an exhausted lookup stays recorded.
	NegativeTTL time.Duration
}

// DefaultServiceConfig returns the service settings used when none are
// configured.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Deadline:    10 * time.Second,
		CacheTTL:    cache.DefaultTTL,
		NegativeTTL: cache.DefaultNegativeTTL,
	}
}

// Service is the single public entry point of the pipeline: identifier
// in, consolidated record out.
type Service struct {
	orch   *Orchestrator
	merger Merger
	cache  *cache.Store
	sink   sink.Sink
	cfg    ServiceConfig
	group  singleflight.Group
	log    *slog.Logger
}

// NewService wires the pipeline stages together. The sink may be nil
// when enriched records should not be persisted beyond the cache.
func NewService(orch *Orchestrator, merger Merger, store *cache.Store, s sink.Sink, cfg ServiceConfig) *Service {
	defaults := DefaultServiceConfig()
	if cfg.Deadline <= 0 {
		cfg.Deadline = defaults.Deadline
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = defaults.NegativeTTL
	}
	if merger == nil {
		merger = NewPriorityMerger()
	}
	return &Service{
		orch:   orch,
		merger: merger,
		cache:  store,
		sink:   s,
		cfg:    cfg,
		log:    slog.Default(),
	}
}

// Enrich resolves one identifier to a consolidated record. Concurrent
// calls for the same lookup key share a single upstream run.
func (s *Service) Enrich(ctx context.Context, id book.Identifier, freshness book.Freshness) (*book.Record, error) {
	req, err := book.NewRequest(id, freshness)
	if err != nil {
		return nil, err
	}
	log := s.log.With("request", req.ID, "key", req.LookupKey)

	if freshness == book.AllowCached {
		if rec, ok, err := s.cache.Get(req.LookupKey); err != nil {
			log.Warn("cache read failed, falling through to sources", "error", err)
		} else if ok {
			log.Debug("cache hit")
			return rec, nil
		}
		if s.cfg.NegativeCache {
			if known, err := s.cache.KnownMiss(req.LookupKey); err == nil && known {
				log.Debug("known miss, skipping sources")
				return nil, &book.EnrichmentError{
					Kind:    book.FailureExhausted,
					Message: "identifier previously exhausted all sources",
				}
			}
		}
	}

	v, err, shared := s.group.Do(req.LookupKey, func() (interface{}, error) {
		return s.enrichOnce(ctx, req, log)
	})
	if shared {
		log.Debug("request coalesced with in-flight lookup")
	}
	if err != nil {
		return nil, err
	}
	return v.(*book.Record), nil
}

func (s *Service) enrichOnce(ctx context.Context, req book.Request, log *slog.Logger) (*book.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Deadline)
	defer cancel()

	started := time.Now()
	results, tiers, err := s.orch.Run(ctx, req)
	if err != nil {
		if ee, ok := book.AsEnrichmentError(err); ok && ee.Kind == book.FailureExhausted {
			if s.cfg.NegativeCache {
				if merr := s.cache.PutMiss(req.LookupKey, s.cfg.NegativeTTL); merr != nil {
					log.Warn("recording miss failed", "error", merr)
				}
			}
		}
		log.Info("enrichment failed", "tiers", tiers, "elapsed", time.Since(started), "error", err)
		return nil, err
	}

	rec := s.merger.Merge(results)
	if verr := Validate(rec); verr != nil {
		log.Info("merged record failed validation", "tiers", tiers, "error", verr)
		return nil, verr
	}

	if err := s.cache.Put(req.LookupKey, rec, s.cfg.CacheTTL); err != nil {
		log.Warn("cache write failed", "error", err)
	}
	if s.sink != nil && rec.ISBN13 != "" {
		if err := s.sink.Upsert(ctx, rec); err != nil {
			log.Warn("sink write failed", "error", err)
		}
	}
	log.Info("enrichment complete",
		"tiers", tiers, "sources", len(results), "elapsed", time.Since(started))
	return rec, nil
}

// Lookup returns a persisted record from the sink by ISBN-13.
func (s *Service) Lookup(ctx context.Context, isbn13 string) (*book.Record, bool, error) {
	if s.sink == nil {
		return nil, false, nil
	}
	return s.sink.Get(ctx, isbn13)
}

// InvalidateCache drops one cached entry.
func (s *Service) InvalidateCache(key string) error {
	return s.cache.Invalidate(key)
}
