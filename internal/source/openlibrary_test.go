package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookdex/internal/book"
)

func isbnRequest(t *testing.T, raw string) book.Request {
	t.Helper()
	req, err := book.NewRequest(book.ISBNIdentifier(raw), book.AllowCached)
	require.NoError(t, err)
	return req
}

func TestOpenLibraryLookup(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/books", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "ISBN%3A9780134685991")
		_, _ = w.Write([]byte(`{"ISBN:9780134685991":{
			"title":"Effective Java",
			"subtitle":"Third Edition",
			"description":{"value":"Best practices."},
			"publishers":[{"name":"Addison-Wesley"}],
			"authors":[{"name":"Joshua Bloch"}],
			"cover":{"large":"https://covers.example/large.jpg"},
			"subjects":["Java (Computer program language)"],
			"number_of_pages":412,
			"publish_date":"2018"}}`))
	})
	mux.HandleFunc("/isbn/9780134685991.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"languages":[{"key":"/languages/eng"}]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ol := NewOpenLibrary(OpenLibraryConfig{BaseURL: server.URL})
	cand, err := ol.Lookup(context.Background(), isbnRequest(t, "978-0-13-468599-1"))
	require.NoError(t, err)

	assert.Equal(t, "openlibrary", cand.Source)
	assert.Equal(t, 1, cand.Tier)
	assert.Equal(t, "Effective Java", *cand.Title)
	assert.Equal(t, "Third Edition", *cand.Subtitle)
	assert.Equal(t, "Best practices.", *cand.Description)
	assert.Equal(t, "Addison-Wesley", *cand.Publisher)
	assert.Equal(t, []string{"Joshua Bloch"}, cand.Authors)
	assert.Equal(t, 412, *cand.PageCount)
	assert.Equal(t, "2018", *cand.PublishDate)
	assert.Equal(t, "eng", *cand.Language)
	assert.Equal(t, "9780134685991", *cand.ISBN13)
}

func TestOpenLibraryEditionFailureDoesNotFailLookup(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/books", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ISBN:9780134685991":{"title":"Effective Java","authors":[{"name":"Joshua Bloch"}]}}`))
	})
	mux.HandleFunc("/isbn/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ol := NewOpenLibrary(OpenLibraryConfig{BaseURL: server.URL})
	cand, err := ol.Lookup(context.Background(), isbnRequest(t, "9780134685991"))
	require.NoError(t, err)
	assert.Equal(t, "Effective Java", *cand.Title)
	assert.Nil(t, cand.Language)
}

func TestOpenLibraryNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/books", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ol := NewOpenLibrary(OpenLibraryConfig{BaseURL: server.URL})
	_, err := ol.Lookup(context.Background(), isbnRequest(t, "9780134685991"))
	assert.ErrorIs(t, err, book.ErrNotFound)
}

func TestOpenLibraryServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	ol := NewOpenLibrary(OpenLibraryConfig{BaseURL: server.URL})
	_, err := ol.Lookup(context.Background(), isbnRequest(t, "9780134685991"))
	assert.ErrorIs(t, err, book.ErrTransient)
}

func TestOpenLibraryMalformedJSONIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ISBN:`))
	}))
	defer server.Close()

	ol := NewOpenLibrary(OpenLibraryConfig{BaseURL: server.URL})
	_, err := ol.Lookup(context.Background(), isbnRequest(t, "9780134685991"))
	assert.ErrorIs(t, err, book.ErrTransient)
}

func TestOpenLibraryPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ol := NewOpenLibrary(OpenLibraryConfig{BaseURL: server.URL})
	assert.NoError(t, ol.Ping(context.Background()))
}
