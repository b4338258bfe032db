package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"bookdex/internal/book"
)

const (
	scrapeName = "scrape"
	scrapeTier = 4
)

// ScrapeConfig configures the scraping fallback.
type ScrapeConfig struct {
	// URLTemplate is the page to scrape, with %s replaced by the ISBN-13.
	URLTemplate string
	Timeout     time.Duration
	UserAgent   string
}

// Scraper is the strict last-resort source. It fetches a book detail
// page and extracts OpenGraph and Highwire (citation_*) meta tags, which
// most publisher and catalog pages carry in static HTML.
type Scraper struct {
	cfg        ScrapeConfig
	httpClient *http.Client
	clientOnce sync.Once
}

var _ Client = (*Scraper)(nil)

// NewScraper creates a scraping fallback client.
func NewScraper(cfg ScrapeConfig) *Scraper {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "bookdex/1.0 (+metadata enrichment)"
	}
	return &Scraper{cfg: cfg}
}

func (s *Scraper) Name() string { return scrapeName }

func (s *Scraper) Tier() int { return scrapeTier }

func (s *Scraper) Capabilities() Capability { return ByISBN }

func (s *Scraper) ValidatorFields() []string { return nil }

// Ping checks that the scrape target answers at all.
func (s *Scraper) Ping(ctx context.Context) error {
	if s.cfg.URLTemplate == "" {
		return fmt.Errorf("scrape URL template not configured")
	}

	u := fmt.Sprintf(s.cfg.URLTemplate, "9780140447934")
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return fmt.Errorf("creating ping request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client().Do(req)
	if err != nil {
		return fmt.Errorf("scrape ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("scrape target returned status %d", resp.StatusCode)
	}
	return nil
}

// Lookup fetches and parses the scrape target page for the ISBN.
func (s *Scraper) Lookup(ctx context.Context, breq book.Request) (*book.Candidate, error) {
	if s.cfg.URLTemplate == "" {
		return nil, book.ErrNotFound
	}

	u := fmt.Sprintf(s.cfg.URLTemplate, breq.Identifier.ISBN)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", book.ErrFatal, err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client().Do(req)
	if err != nil {
		return nil, classifyTransport(scrapeName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(scrapeName, resp.StatusCode)
	}

	meta, err := parseMetaTags(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing scraped page: %v", book.ErrTransient, err)
	}

	cand := &book.Candidate{
		Source:    scrapeName,
		Tier:      scrapeTier,
		FetchedAt: time.Now(),
	}

	if title := meta.first("citation_title", "og:title"); title != "" {
		cand.Title = &title
	}
	if pub := meta.first("citation_publisher", "book:publisher"); pub != "" {
		cand.Publisher = &pub
	}
	if date := meta.first("citation_publication_date", "book:release_date"); date != "" {
		cand.PublishDate = &date
	}
	if cover := meta.first("og:image"); cover != "" {
		cand.CoverURL = &cover
	}
	if desc := meta.first("og:description", "description"); desc != "" {
		cand.Description = &desc
	}
	cand.Authors = append(meta.all("citation_author"), meta.all("book:author")...)

	v := breq.Identifier.ISBN
	cand.ISBN13 = &v

	if cand.Title == nil && len(cand.Authors) == 0 {
		// Page exists but carries no usable bibliographic markup.
		return nil, book.ErrNotFound
	}
	return cand, nil
}

// metaTags holds the name/property → content pairs found in a page head.
type metaTags map[string][]string

func (m metaTags) first(keys ...string) string {
	for _, key := range keys {
		if vals := m[key]; len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

func (m metaTags) all(key string) []string {
	return m[key]
}

// parseMetaTags tokenizes the page and collects meta tag name/property
// and content attributes. Tokenizing instead of building a full tree
// keeps memory flat on arbitrarily large pages.
func parseMetaTags(r io.Reader) (metaTags, error) {
	tags := make(metaTags)
	z := html.NewTokenizer(r)

	for {
		switch z.Next() {
		case html.ErrorToken:
			// EOF or malformed markup mid-body; keep whatever the
			// head yielded either way.
			return tags, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "meta" || !hasAttr {
				continue
			}

			var key, content string
			for {
				attrName, attrVal, more := z.TagAttr()
				switch string(attrName) {
				case "name", "property":
					key = strings.TrimSpace(string(attrVal))
				case "content":
					content = strings.TrimSpace(string(attrVal))
				}
				if !more {
					break
				}
			}
			if key != "" && content != "" {
				tags[key] = append(tags[key], content)
			}
		}
	}
}

func (s *Scraper) client() *http.Client {
	s.clientOnce.Do(func() {
		s.httpClient = &http.Client{Timeout: s.cfg.Timeout}
	})
	return s.httpClient
}
