package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookdex/internal/book"
)

const scrapedPage = `<!DOCTYPE html>
<html><head>
<meta property="og:title" content="Clean Code">
<meta property="og:image" content="https://shop.example/covers/cc.jpg">
<meta property="og:description" content="A handbook of agile software craftsmanship.">
<meta name="citation_title" content="Clean Code">
<meta name="citation_author" content="Robert C. Martin">
<meta name="citation_author" content="Someone Else">
<meta name="citation_publisher" content="Prentice Hall">
<meta name="citation_publication_date" content="2008">
</head><body><p>storefront noise</p></body></html>`

func TestScraperLookup(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Contains(t, r.Header.Get("User-Agent"), "bookdex")
		_, _ = w.Write([]byte(scrapedPage))
	}))
	defer server.Close()

	s := NewScraper(ScrapeConfig{URLTemplate: server.URL + "/books/%s"})
	cand, err := s.Lookup(context.Background(), isbnRequest(t, "9780132350884"))
	require.NoError(t, err)

	assert.Equal(t, "/books/9780132350884", gotPath)
	assert.Equal(t, "scrape", cand.Source)
	assert.Equal(t, 4, cand.Tier)
	assert.Equal(t, "Clean Code", *cand.Title)
	assert.Equal(t, "Prentice Hall", *cand.Publisher)
	assert.Equal(t, "2008", *cand.PublishDate)
	assert.Equal(t, "https://shop.example/covers/cc.jpg", *cand.CoverURL)
	assert.Equal(t, []string{"Robert C. Martin", "Someone Else"}, cand.Authors)
	assert.Equal(t, "9780132350884", *cand.ISBN13)
}

func TestScraperPageWithoutMarkupIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>404-ish landing page</title></head><body></body></html>`))
	}))
	defer server.Close()

	s := NewScraper(ScrapeConfig{URLTemplate: server.URL + "/books/%s"})
	_, err := s.Lookup(context.Background(), isbnRequest(t, "9780132350884"))
	assert.ErrorIs(t, err, book.ErrNotFound)
}

func TestScraperWithoutTemplateIsNotFound(t *testing.T) {
	s := NewScraper(ScrapeConfig{})
	_, err := s.Lookup(context.Background(), isbnRequest(t, "9780132350884"))
	assert.ErrorIs(t, err, book.ErrNotFound)
}

func TestScraperServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := NewScraper(ScrapeConfig{URLTemplate: server.URL + "/books/%s"})
	_, err := s.Lookup(context.Background(), isbnRequest(t, "9780132350884"))
	assert.ErrorIs(t, err, book.ErrTransient)
}

func TestParseMetaTagsToleratesTruncatedHTML(t *testing.T) {
	tags, err := parseMetaTags(strings.NewReader(`<html><head><meta property="og:title" content="Partial"><div `))
	require.NoError(t, err)
	assert.Equal(t, "Partial", tags.first("og:title"))
}
