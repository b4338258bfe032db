package book

import "time"

// Candidate contains book metadata extracted from one external source
// during one enrichment attempt. Pointer fields distinguish "not set"
// from "empty string".
type Candidate struct {
	// Source is the human-readable name of the source that produced this.
	Source string

	// Tier is the source's position in the fallback chain (lower = earlier).
	Tier int

	// FetchedAt is when the source answered.
	FetchedAt time.Time

	Title       *string
	Subtitle    *string
	Description *string
	Publisher   *string
	PublishDate *string
	Language    *string
	PageCount   *int
	CoverURL    *string
	ISBN10      *string
	ISBN13      *string

	Authors  []string
	Subjects []string
}

// CandidateResult pairs a candidate with the merge-relevant attributes of
// the source that produced it.
type CandidateResult struct {
	Candidate *Candidate

	Source string
	Tier   int

	// ValidatorFields lists record fields this source authoritatively
	// overrides regardless of tier order.
	ValidatorFields []string
}

// Has reports whether the candidate populates the named record field.
// Field names match the Record JSON keys.
func (c *Candidate) Has(field string) bool {
	if c == nil {
		return false
	}
	switch field {
	case "title":
		return c.Title != nil && *c.Title != ""
	case "subtitle":
		return c.Subtitle != nil && *c.Subtitle != ""
	case "description":
		return c.Description != nil && *c.Description != ""
	case "publisher":
		return c.Publisher != nil && *c.Publisher != ""
	case "publish_date":
		return c.PublishDate != nil && *c.PublishDate != ""
	case "language":
		return c.Language != nil && *c.Language != ""
	case "page_count":
		return c.PageCount != nil && *c.PageCount > 0
	case "cover_url":
		return c.CoverURL != nil && *c.CoverURL != ""
	case "isbn":
		return c.ISBN13 != nil && *c.ISBN13 != ""
	case "author":
		return len(c.Authors) > 0
	case "subjects":
		return len(c.Subjects) > 0
	}
	return false
}
