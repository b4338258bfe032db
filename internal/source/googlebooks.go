package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"bookdex/internal/book"
	"bookdex/internal/isbn"
)

const (
	googleBooksName = "googlebooks"
	googleBooksTier = 2
)

// GoogleBooksConfig configures the Google Books client.
type GoogleBooksConfig struct {
	BaseURL string
	// APIKey is optional; unauthenticated requests work with a lower quota.
	APIKey  string
	Timeout time.Duration
}

// GoogleBooks is the tier-2 client for the Google Books volumes API.
// It is the only source in the chain that can resolve a title/author
// pair, so requests without an ISBN enter the chain here.
type GoogleBooks struct {
	cfg        GoogleBooksConfig
	httpClient *http.Client
	clientOnce sync.Once
}

var _ Client = (*GoogleBooks)(nil)

// NewGoogleBooks creates a Google Books client.
func NewGoogleBooks(cfg GoogleBooksConfig) *GoogleBooks {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.googleapis.com/books/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &GoogleBooks{cfg: cfg}
}

func (g *GoogleBooks) Name() string { return googleBooksName }

func (g *GoogleBooks) Tier() int { return googleBooksTier }

func (g *GoogleBooks) Capabilities() Capability { return ByISBN | ByTitleAuthor }

func (g *GoogleBooks) ValidatorFields() []string { return nil }

// Ping tests the connection to the Google Books API.
func (g *GoogleBooks) Ping(ctx context.Context) error {
	u := fmt.Sprintf("%s/volumes?q=isbn:0140447938&maxResults=1", g.cfg.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating ping request: %w", err)
	}

	resp, err := g.client().Do(req)
	if err != nil {
		return fmt.Errorf("google books ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("google books returned status %d", resp.StatusCode)
	}
	return nil
}

// googleBooksResponse matches the volumes API response structure.
type googleBooksResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo struct {
			Title               string   `json:"title"`
			Subtitle            string   `json:"subtitle"`
			Authors             []string `json:"authors"`
			Publisher           string   `json:"publisher"`
			PublishedDate       string   `json:"publishedDate"`
			Description         string   `json:"description"`
			PageCount           int      `json:"pageCount"`
			Categories          []string `json:"categories"`
			Language            string   `json:"language"`
			IndustryIdentifiers []struct {
				Type       string `json:"type"`
				Identifier string `json:"identifier"`
			} `json:"industryIdentifiers"`
			ImageLinks struct {
				Thumbnail      string `json:"thumbnail"`
				SmallThumbnail string `json:"smallThumbnail"`
			} `json:"imageLinks"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

// Lookup fetches book data from Google Books by ISBN or title/author.
func (g *GoogleBooks) Lookup(ctx context.Context, breq book.Request) (*book.Candidate, error) {
	var query string
	switch breq.Identifier.Kind {
	case book.KindISBN10, book.KindISBN13:
		query = "isbn:" + breq.Identifier.ISBN
	case book.KindTitleAuthor:
		query = fmt.Sprintf("intitle:%q inauthor:%q", breq.Identifier.Title, breq.Identifier.Author)
	default:
		return nil, book.ErrNotFound
	}

	u := fmt.Sprintf("%s/volumes?q=%s&maxResults=1", g.cfg.BaseURL, url.QueryEscape(query))
	if g.cfg.APIKey != "" {
		u += "&key=" + url.QueryEscape(g.cfg.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", book.ErrFatal, err)
	}

	resp, err := g.client().Do(req)
	if err != nil {
		return nil, classifyTransport(googleBooksName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(googleBooksName, resp.StatusCode)
	}

	var result googleBooksResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding google books response: %v", book.ErrTransient, err)
	}

	if result.TotalItems == 0 || len(result.Items) == 0 {
		return nil, book.ErrNotFound
	}

	info := result.Items[0].VolumeInfo
	cand := &book.Candidate{
		Source:    googleBooksName,
		Tier:      googleBooksTier,
		FetchedAt: time.Now(),
	}

	if info.Title != "" {
		cand.Title = &info.Title
	}
	if info.Subtitle != "" {
		cand.Subtitle = &info.Subtitle
	}
	if info.Description != "" {
		cand.Description = &info.Description
	}
	if info.Publisher != "" {
		cand.Publisher = &info.Publisher
	}
	if info.PublishedDate != "" {
		cand.PublishDate = &info.PublishedDate
	}
	if info.Language != "" {
		cand.Language = &info.Language
	}
	if info.PageCount > 0 {
		pages := info.PageCount
		cand.PageCount = &pages
	}
	if info.ImageLinks.Thumbnail != "" {
		cand.CoverURL = &info.ImageLinks.Thumbnail
	} else if info.ImageLinks.SmallThumbnail != "" {
		cand.CoverURL = &info.ImageLinks.SmallThumbnail
	}
	cand.Authors = info.Authors
	cand.Subjects = info.Categories

	for _, id := range info.IndustryIdentifiers {
		switch id.Type {
		case "ISBN_13":
			if isbn.ValidThirteen(id.Identifier) {
				v := isbn.Clean(id.Identifier)
				cand.ISBN13 = &v
			}
		case "ISBN_10":
			if isbn.ValidTen(id.Identifier) {
				v := isbn.Clean(id.Identifier)
				cand.ISBN10 = &v
			}
		}
	}
	// For ISBN lookups the identifier is authoritative even when the
	// volume omits industry identifiers.
	if cand.ISBN13 == nil && breq.Identifier.ISBN != "" {
		v := breq.Identifier.ISBN
		cand.ISBN13 = &v
	}

	return cand, nil
}

func (g *GoogleBooks) client() *http.Client {
	g.clientOnce.Do(func() {
		g.httpClient = &http.Client{Timeout: g.cfg.Timeout}
	})
	return g.httpClient
}
