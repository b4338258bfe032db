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
)

const (
	openLibraryName = "openlibrary"
	openLibraryTier = 1
)

// OpenLibraryConfig configures the OpenLibrary client.
type OpenLibraryConfig struct {
	// BaseURL overrides the production endpoint. Used by tests.
	BaseURL string
	Timeout time.Duration
}

// OpenLibrary is the tier-1 client for the free OpenLibrary API. It
// queries the books endpoint and backfills page count, publisher and
// language from the edition endpoint.
type OpenLibrary struct {
	cfg        OpenLibraryConfig
	httpClient *http.Client
	clientOnce sync.Once
}

var _ Client = (*OpenLibrary)(nil)

// NewOpenLibrary creates an OpenLibrary client.
func NewOpenLibrary(cfg OpenLibraryConfig) *OpenLibrary {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openlibrary.org"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &OpenLibrary{cfg: cfg}
}

func (o *OpenLibrary) Name() string { return openLibraryName }

func (o *OpenLibrary) Tier() int { return openLibraryTier }

func (o *OpenLibrary) Capabilities() Capability { return ByISBN }

func (o *OpenLibrary) ValidatorFields() []string { return nil }

// Ping tests the connection to OpenLibrary.
func (o *OpenLibrary) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.cfg.BaseURL, nil)
	if err != nil {
		return fmt.Errorf("creating ping request: %w", err)
	}

	resp, err := o.client().Do(req)
	if err != nil {
		return fmt.Errorf("openlibrary ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openlibrary returned status %d", resp.StatusCode)
	}
	return nil
}

// openLibraryBook matches the books API response structure.
type openLibraryBook struct {
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Description any    `json:"description"`
	Publishers  []struct {
		Name string `json:"name"`
	} `json:"publishers"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Cover struct {
		Large string `json:"large"`
	} `json:"cover"`
	Subjects      []any  `json:"subjects"`
	NumberOfPages int    `json:"number_of_pages"`
	PublishDate   string `json:"publish_date"`
}

// openLibraryEdition matches the edition API response.
type openLibraryEdition struct {
	NumberOfPages int      `json:"number_of_pages"`
	Publishers    []string `json:"publishers"`
	Languages     []struct {
		Key string `json:"key"`
	} `json:"languages"`
	Subjects []string `json:"subjects"`
}

// Lookup fetches book data from OpenLibrary by ISBN.
func (o *OpenLibrary) Lookup(ctx context.Context, breq book.Request) (*book.Candidate, error) {
	isbn13 := breq.Identifier.ISBN
	if isbn13 == "" {
		return nil, book.ErrNotFound
	}

	u := fmt.Sprintf("%s/api/books?bibkeys=ISBN:%s&format=json&jscmd=data", o.cfg.BaseURL, url.QueryEscape(isbn13))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", book.ErrFatal, err)
	}

	resp, err := o.client().Do(req)
	if err != nil {
		return nil, classifyTransport(openLibraryName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(openLibraryName, resp.StatusCode)
	}

	var result map[string]openLibraryBook
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding openlibrary response: %v", book.ErrTransient, err)
	}

	olBook, ok := result["ISBN:"+isbn13]
	if !ok || len(result) == 0 {
		return nil, book.ErrNotFound
	}

	cand := &book.Candidate{
		Source:    openLibraryName,
		Tier:      openLibraryTier,
		FetchedAt: time.Now(),
		ISBN13:    &isbn13,
	}

	if olBook.Title != "" {
		cand.Title = &olBook.Title
	}
	if olBook.Subtitle != "" {
		cand.Subtitle = &olBook.Subtitle
	}
	if desc := extractDescription(olBook.Description); desc != "" {
		cand.Description = &desc
	}
	if len(olBook.Publishers) > 0 {
		cand.Publisher = &olBook.Publishers[0].Name
	}
	if olBook.NumberOfPages > 0 {
		pages := olBook.NumberOfPages
		cand.PageCount = &pages
	}
	if olBook.Cover.Large != "" {
		cand.CoverURL = &olBook.Cover.Large
	}
	if olBook.PublishDate != "" {
		cand.PublishDate = &olBook.PublishDate
	}

	for _, author := range olBook.Authors {
		if author.Name != "" {
			cand.Authors = append(cand.Authors, author.Name)
		}
	}
	cand.Subjects = extractStringSlice(olBook.Subjects)

	// Edition data fills gaps; failures here do not fail the lookup.
	if edition, err := o.fetchEdition(ctx, isbn13); err == nil && edition != nil {
		if cand.PageCount == nil && edition.NumberOfPages > 0 {
			pages := edition.NumberOfPages
			cand.PageCount = &pages
		}
		if cand.Publisher == nil && len(edition.Publishers) > 0 {
			cand.Publisher = &edition.Publishers[0]
		}
		if len(edition.Languages) > 0 {
			// Key looks like "/languages/eng".
			parts := strings.Split(edition.Languages[0].Key, "/")
			lang := parts[len(parts)-1]
			if lang != "" {
				cand.Language = &lang
			}
		}
		if len(cand.Subjects) == 0 && len(edition.Subjects) > 0 {
			cand.Subjects = edition.Subjects
		}
	}

	return cand, nil
}

func (o *OpenLibrary) fetchEdition(ctx context.Context, isbn13 string) (*openLibraryEdition, error) {
	u := fmt.Sprintf("%s/isbn/%s.json", o.cfg.BaseURL, url.PathEscape(isbn13))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := o.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("edition request returned status %d", resp.StatusCode)
	}

	var edition openLibraryEdition
	if err := json.NewDecoder(resp.Body).Decode(&edition); err != nil {
		return nil, err
	}
	return &edition, nil
}

func (o *OpenLibrary) client() *http.Client {
	o.clientOnce.Do(func() {
		o.httpClient = &http.Client{Timeout: o.cfg.Timeout}
	})
	return o.httpClient
}

// extractDescription handles the forms an OpenLibrary description can
// take: a plain string or an object with a "value" key.
func extractDescription(desc any) string {
	switch v := desc.(type) {
	case string:
		return v
	case map[string]any:
		if val, ok := v["value"].(string); ok {
			return val
		}
	}
	return ""
}

// extractStringSlice converts []any to []string, handling both plain
// strings and {"name": ...} objects.
func extractStringSlice(items []any) []string {
	if len(items) == 0 {
		return nil
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			result = append(result, v)
		case map[string]any:
			if name, ok := v["name"].(string); ok {
				result = append(result, name)
			}
		}
	}
	return result
}
