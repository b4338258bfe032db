// Package enrich drives the enrichment pipeline: the tiered fallback
// orchestrator, the merge and validation stages, and the public service
// entry point.
package enrich

import (
	"sort"
	"time"

	"bookdex/internal/book"
	"bookdex/internal/isbn"
)

// Merger combines candidates from multiple sources into one record.
type Merger interface {
	Merge(results []book.CandidateResult) *book.Record
}

// PriorityMerger merges by tier order: for each field the candidate from
// the lowest tier that populated it wins, slices are unioned. Sources
// with a validator role override their designated fields regardless of
// tier order.
type PriorityMerger struct{}

// NewPriorityMerger creates a PriorityMerger.
func NewPriorityMerger() *PriorityMerger {
	return &PriorityMerger{}
}

// Merge is deterministic: equal-tier candidates are ordered by source
// name so reruns produce byte-identical records.
func (m *PriorityMerger) Merge(results []book.CandidateResult) *book.Record {
	if len(results) == 0 {
		return nil
	}

	sorted := make([]book.CandidateResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Tier != sorted[j].Tier {
			return sorted[i].Tier < sorted[j].Tier
		}
		return sorted[i].Source < sorted[j].Source
	})

	rec := &book.Record{Provenance: make(map[string]string)}
	var latest time.Time

	for _, res := range sorted {
		c := res.Candidate
		if c == nil {
			continue
		}
		if c.FetchedAt.After(latest) {
			latest = c.FetchedAt
		}

		setString(&rec.Title, "title", c.Title, res.Source, rec.Provenance)
		setString(&rec.Subtitle, "subtitle", c.Subtitle, res.Source, rec.Provenance)
		setString(&rec.Description, "description", c.Description, res.Source, rec.Provenance)
		setString(&rec.Publisher, "publisher", c.Publisher, res.Source, rec.Provenance)
		setString(&rec.PublishDate, "publish_date", c.PublishDate, res.Source, rec.Provenance)
		setString(&rec.Language, "language", c.Language, res.Source, rec.Provenance)
		setString(&rec.CoverURL, "cover_url", c.CoverURL, res.Source, rec.Provenance)

		if rec.PageCount == 0 && c.PageCount != nil && *c.PageCount > 0 {
			rec.PageCount = *c.PageCount
			rec.Provenance["page_count"] = res.Source
		}
		if len(rec.Authors) == 0 && len(c.Authors) > 0 {
			rec.Authors = append([]string(nil), c.Authors...)
			rec.Provenance["author"] = res.Source
		}
		if len(c.Subjects) > 0 {
			rec.Subjects = mergeStringSlices(rec.Subjects, c.Subjects)
			if _, ok := rec.Provenance["subjects"]; !ok {
				rec.Provenance["subjects"] = res.Source
			}
		}
		if rec.ISBN13 == "" && c.ISBN13 != nil && *c.ISBN13 != "" {
			rec.ISBN13 = *c.ISBN13
			rec.Provenance["isbn"] = res.Source
		}
		if rec.ISBN10 == "" && c.ISBN10 != nil && *c.ISBN10 != "" {
			rec.ISBN10 = *c.ISBN10
			rec.Provenance["isbn10"] = res.Source
		}
	}

	// Validator pass: a source designated as validator for a field wins
	// that field even against higher-priority tiers.
	for _, res := range sorted {
		c := res.Candidate
		if c == nil {
			continue
		}
		for _, field := range res.ValidatorFields {
			switch field {
			case "isbn":
				if c.ISBN13 != nil && *c.ISBN13 != "" {
					rec.ISBN13 = *c.ISBN13
					rec.Provenance["isbn"] = res.Source
				}
				if c.ISBN10 != nil && *c.ISBN10 != "" {
					rec.ISBN10 = *c.ISBN10
					rec.Provenance["isbn10"] = res.Source
				}
			case "publisher":
				if c.Publisher != nil && *c.Publisher != "" {
					rec.Publisher = *c.Publisher
					rec.Provenance["publisher"] = res.Source
				}
			}
		}
	}

	// Backfill the ISBN-10 form when only the 13 was supplied. It is
	// derived, so it inherits the isbn field's provenance.
	if rec.ISBN10 == "" && rec.ISBN13 != "" {
		if ten, err := isbn.ToTen(rec.ISBN13); err == nil && ten != "" {
			rec.ISBN10 = ten
			if src, ok := rec.Provenance["isbn"]; ok {
				rec.Provenance["isbn10"] = src
			}
		}
	}

	rec.FetchedAt = latest
	return rec
}

// setString fills dst with the first non-empty value and records which
// source won it.
func setString(dst *string, field string, val *string, source string, prov map[string]string) {
	if *dst == "" && val != nil && *val != "" {
		*dst = *val
		prov[field] = source
	}
}

// mergeStringSlices unions two slices preserving first-seen order.
func mergeStringSlices(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	result := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	return result
}
