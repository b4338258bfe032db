package book

import "time"

// Record is the merged, conflict-resolved metadata for one book.
// It is the unit written to the cache and the persistence sink.
type Record struct {
	ISBN13 string `json:"isbn13"`
	ISBN10 string `json:"isbn10,omitempty"`

	Title       string `json:"title"`
	Subtitle    string `json:"subtitle,omitempty"`
	Description string `json:"description,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
	PublishDate string `json:"publish_date,omitempty"`
	Language    string `json:"language,omitempty"`
	PageCount   int    `json:"page_count,omitempty"`
	CoverURL    string `json:"cover_url,omitempty"`

	Authors  []string `json:"authors"`
	Subjects []string `json:"subjects,omitempty"`

	// Provenance maps each populated field to the source that won it.
	Provenance map[string]string `json:"provenance"`

	FetchedAt time.Time `json:"fetched_at"`
}
