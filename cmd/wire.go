package cmd

import (
	"fmt"

	"bookdex/internal/cache"
	"bookdex/internal/config"
	"bookdex/internal/enrich"
	"bookdex/internal/ratelimit"
	"bookdex/internal/sink"
	"bookdex/internal/source"
)

// pipeline bundles the wired-up components and their teardown.
type pipeline struct {
	service *enrich.Service
	gate    *ratelimit.Gate
	cache   *cache.Store
	sink    *sink.SQLite
}

func (p *pipeline) Close() {
	if p.sink != nil {
		p.sink.Close()
	}
	if p.cache != nil {
		p.cache.Close()
	}
}

// buildPipeline constructs the full enrichment stack from configuration.
func buildPipeline(cfg *config.Config) (*pipeline, error) {
	if err := requireSources(cfg); err != nil {
		return nil, err
	}

	store, err := cache.Open(cfg.Cache.DBFile)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	books, err := sink.OpenSQLite(cfg.Sink.DBFile)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening book database: %w", err)
	}

	gate := ratelimit.New(ratelimit.Config{
		FailureThreshold: cfg.Breaker.Threshold,
		Cooldown:         cfg.Breaker.Cooldown,
	})

	var clients []source.Client
	for name, src := range cfg.Sources {
		if !src.Enabled {
			continue
		}
		client, err := buildSource(name, src)
		if err != nil {
			books.Close()
			store.Close()
			return nil, err
		}
		clients = append(clients, client)
		gate.Register(client.Name(), ratelimit.SourceLimit{
			Rate:  src.Rate,
			Burst: src.Burst,
		})
	}

	orch := enrich.NewOrchestrator(clients, gate, enrich.OrchestratorConfig{
		RequiredFields: cfg.Enrich.RequiredFields,
		MaxDeferrals:   cfg.Enrich.MaxDeferrals,
	})

	svc := enrich.NewService(orch, enrich.NewPriorityMerger(), store, books, enrich.ServiceConfig{
		Deadline:      cfg.Enrich.Deadline,
		CacheTTL:      cfg.Cache.TTL,
		NegativeCache: cfg.Cache.Negative,
		NegativeTTL:   cfg.Cache.NegativeTTL,
	})

	return &pipeline{service: svc, gate: gate, cache: store, sink: books}, nil
}

func buildSource(name string, src config.Source) (source.Client, error) {
	switch name {
	case "openlibrary":
		return source.NewOpenLibrary(source.OpenLibraryConfig{
			BaseURL: src.BaseURL,
			Timeout: src.Timeout,
		}), nil
	case "googlebooks":
		return source.NewGoogleBooks(source.GoogleBooksConfig{
			BaseURL: src.BaseURL,
			APIKey:  src.APIKey,
			Timeout: src.Timeout,
		}), nil
	case "isbndb":
		return source.NewISBNdb(source.ISBNdbConfig{
			BaseURL: src.BaseURL,
			APIKey:  src.APIKey,
			Timeout: src.Timeout,
		}), nil
	case "scrape":
		return source.NewScraper(source.ScrapeConfig{
			URLTemplate: src.BaseURL,
			Timeout:     src.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown source %q in configuration", name)
	}
}
