package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"bookdex/internal/book"
	"bookdex/internal/isbn"
)

const (
	isbndbName = "isbndb"
	isbndbTier = 3
)

// ISBNdbConfig configures the ISBNdb client.
type ISBNdbConfig struct {
	BaseURL string
	// APIKey is required; without it the client reports itself
	// unavailable rather than sending unauthenticated requests.
	APIKey  string
	Timeout time.Duration
}

// ISBNdb is the tier-3 client for the paid ISBNdb API. It acts as the
// designated validator for the isbn field: its identifier data overrides
// earlier tiers during merge.
type ISBNdb struct {
	cfg        ISBNdbConfig
	httpClient *http.Client
	clientOnce sync.Once
}

var _ Client = (*ISBNdb)(nil)

// NewISBNdb creates an ISBNdb client.
func NewISBNdb(cfg ISBNdbConfig) *ISBNdb {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api2.isbndb.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &ISBNdb{cfg: cfg}
}

func (e *ISBNdb) Name() string { return isbndbName }

func (e *ISBNdb) Tier() int { return isbndbTier }

func (e *ISBNdb) Capabilities() Capability { return ByISBN }

// ValidatorFields marks ISBNdb as authoritative for identifiers.
func (e *ISBNdb) ValidatorFields() []string { return []string{"isbn"} }

// Ping tests the connection and API key against a well-known ISBN.
func (e *ISBNdb) Ping(ctx context.Context) error {
	if e.cfg.APIKey == "" {
		return fmt.Errorf("isbndb API key not configured")
	}

	u := fmt.Sprintf("%s/book/9780140447934", e.cfg.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating ping request: %w", err)
	}
	req.Header.Set("Authorization", e.cfg.APIKey)

	resp, err := e.client().Do(req)
	if err != nil {
		return fmt.Errorf("isbndb ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("isbndb API key invalid")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("isbndb returned status %d", resp.StatusCode)
	}
	return nil
}

// isbndbResponse matches the ISBNdb API response structure.
type isbndbResponse struct {
	Book struct {
		Title         string   `json:"title"`
		ISBN          string   `json:"isbn"`
		ISBN13        string   `json:"isbn13"`
		Publisher     string   `json:"publisher"`
		Language      string   `json:"language"`
		DatePublished string   `json:"date_published"`
		Pages         *int     `json:"pages"`
		Overview      string   `json:"overview"`
		Synopsis      string   `json:"synopsis"`
		ImageOriginal string   `json:"image_original"`
		Authors       []string `json:"authors"`
		Subjects      []string `json:"subjects"`
	} `json:"book"`
}

// Lookup fetches book data from ISBNdb by ISBN.
func (e *ISBNdb) Lookup(ctx context.Context, breq book.Request) (*book.Candidate, error) {
	if e.cfg.APIKey == "" {
		// No key configured: behave as a permanent miss so lower
		// tiers still get their chance.
		return nil, book.ErrNotFound
	}

	isbn13 := breq.Identifier.ISBN
	u := fmt.Sprintf("%s/book/%s", e.cfg.BaseURL, url.PathEscape(isbn13))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", book.ErrFatal, err)
	}
	req.Header.Set("Authorization", e.cfg.APIKey)

	resp, err := e.client().Do(req)
	if err != nil {
		return nil, classifyTransport(isbndbName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(isbndbName, resp.StatusCode)
	}

	var result isbndbResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding isbndb response: %v", book.ErrTransient, err)
	}

	b := result.Book
	if b.Title == "" && b.ISBN == "" && b.ISBN13 == "" {
		return nil, book.ErrNotFound
	}

	cand := &book.Candidate{
		Source:    isbndbName,
		Tier:      isbndbTier,
		FetchedAt: time.Now(),
	}

	if b.Title != "" {
		cand.Title = &b.Title
	}
	if b.Publisher != "" {
		cand.Publisher = &b.Publisher
	}
	if b.Language != "" {
		cand.Language = &b.Language
	}
	if b.DatePublished != "" {
		cand.PublishDate = &b.DatePublished
	}
	if b.Pages != nil && *b.Pages > 0 {
		cand.PageCount = b.Pages
	}
	if b.ImageOriginal != "" {
		cand.CoverURL = &b.ImageOriginal
	}

	// Synopsis is richer than overview when both are present.
	if b.Synopsis != "" {
		cand.Description = &b.Synopsis
	} else if b.Overview != "" {
		cand.Description = &b.Overview
	}

	cand.Authors = b.Authors

	// Filter out ISBNdb's generic "Subjects" placeholder entry.
	for _, s := range b.Subjects {
		if strings.EqualFold(s, "subjects") {
			continue
		}
		cand.Subjects = append(cand.Subjects, s)
	}

	if b.ISBN13 != "" && isbn.ValidThirteen(b.ISBN13) {
		v := isbn.Clean(b.ISBN13)
		cand.ISBN13 = &v
	}
	if b.ISBN != "" && isbn.ValidTen(b.ISBN) {
		v := isbn.Clean(b.ISBN)
		cand.ISBN10 = &v
	}

	return cand, nil
}

func (e *ISBNdb) client() *http.Client {
	e.clientOnce.Do(func() {
		e.httpClient = &http.Client{Timeout: e.cfg.Timeout}
	})
	return e.httpClient
}
