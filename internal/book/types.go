// Package book defines the shared data model for the enrichment pipeline:
// requests, per-source candidates, merged records and the error taxonomy.
package book

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"bookdex/internal/isbn"
)

// IdentifierKind describes how a book is being looked up.
type IdentifierKind int

const (
	// KindISBN10 is a ten-digit ISBN with mod-11 checksum.
	KindISBN10 IdentifierKind = iota
	// KindISBN13 is a thirteen-digit ISBN with 978/979 prefix.
	KindISBN13
	// KindTitleAuthor is a free-text title plus author pair.
	KindTitleAuthor
)

func (k IdentifierKind) String() string {
	switch k {
	case KindISBN10:
		return "isbn10"
	case KindISBN13:
		return "isbn13"
	case KindTitleAuthor:
		return "title-author"
	default:
		return "unknown"
	}
}

// Identifier is the sparse book identifier supplied by the caller.
type Identifier struct {
	Kind   IdentifierKind
	ISBN   string
	Title  string
	Author string
}

// ISBNIdentifier builds an Identifier from a raw ISBN string.
// The kind is derived from the cleaned length; validation happens in NewRequest.
func ISBNIdentifier(raw string) Identifier {
	kind := KindISBN13
	if len(isbn.Clean(raw)) == 10 {
		kind = KindISBN10
	}
	return Identifier{Kind: kind, ISBN: raw}
}

// TitleAuthorIdentifier builds an Identifier from a title/author pair.
func TitleAuthorIdentifier(title, author string) Identifier {
	return Identifier{Kind: KindTitleAuthor, Title: title, Author: author}
}

// Freshness controls whether a cached record may satisfy a request.
type Freshness int

const (
	// AllowCached serves a cache hit inside its TTL without touching any source.
	AllowCached Freshness = iota
	// ForceRefresh bypasses the cache read but still overwrites it on success.
	ForceRefresh
)

// Request is one enrichment request. Immutable once created.
type Request struct {
	// ID is a correlation identifier carried through logs.
	ID string

	Identifier Identifier

	// LookupKey is the canonical form used for cache keying and
	// in-flight deduplication: the ISBN-13 for ISBN lookups, a
	// normalized "title|author" pair otherwise.
	LookupKey string

	Freshness Freshness
}

// NewRequest validates the identifier and derives the lookup key.
func NewRequest(ident Identifier, freshness Freshness) (Request, error) {
	req := Request{
		ID:         uuid.NewString(),
		Identifier: ident,
		Freshness:  freshness,
	}

	switch ident.Kind {
	case KindISBN10, KindISBN13:
		normalized, err := isbn.Normalize(ident.ISBN)
		if err != nil {
			return Request{}, &EnrichmentError{
				Kind:    FailureInvalidIdentifier,
				Message: fmt.Sprintf("invalid ISBN %q", ident.ISBN),
			}
		}
		req.Identifier.ISBN = normalized
		req.LookupKey = normalized
	case KindTitleAuthor:
		title := normalizeText(ident.Title)
		author := normalizeText(ident.Author)
		if title == "" || author == "" {
			return Request{}, &EnrichmentError{
				Kind:    FailureInvalidIdentifier,
				Message: "title/author lookup requires both a title and an author",
			}
		}
		req.LookupKey = title + "|" + author
	default:
		return Request{}, &EnrichmentError{
			Kind:    FailureInvalidIdentifier,
			Message: fmt.Sprintf("unknown identifier kind %d", ident.Kind),
		}
	}

	return req, nil
}

// normalizeText lowercases and collapses runs of whitespace so that
// equivalent title/author pairs map to the same lookup key.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
