package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"bookdex/internal/book"
	"bookdex/internal/config"
)

// EnrichCmd represents the one-shot enrich command
type EnrichCmd struct {
	ISBN    string `short:"i" help:"ISBN-10 or ISBN-13 to enrich"`
	Title   string `help:"Book title, used together with --author when no ISBN is known"`
	Author  string `help:"Author name, used together with --title"`
	Refresh bool   `help:"Bypass the cache and consult the sources again"`
}

func (e *EnrichCmd) Run(cfg *config.Config) error {
	var ident book.Identifier
	switch {
	case e.ISBN != "":
		ident = book.ISBNIdentifier(e.ISBN)
	case e.Title != "" || e.Author != "":
		ident = book.TitleAuthorIdentifier(e.Title, e.Author)
	default:
		return fmt.Errorf("provide --isbn or a --title/--author pair")
	}

	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	freshness := book.AllowCached
	if e.Refresh {
		freshness = book.ForceRefresh
	}

	rec, err := p.service.Enrich(context.Background(), ident, freshness)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
