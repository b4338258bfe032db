package enrich

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"bookdex/internal/book"
	"bookdex/internal/isbn"
)

// Publication year sanity bounds, matching the floor used for modern
// ISBN-carrying books and allowing announced-but-unreleased titles.
const (
	minPublicationYear  = 1500
	maxFutureYearsAhead = 2
)

var yearPattern = regexp.MustCompile(`\b(\d{4})\b`)

// Validate rejects merged records that fail required-field or sanity
// checks. A rejected record is never emitted, cached or persisted.
func Validate(rec *book.Record) error {
	if rec == nil {
		return &book.EnrichmentError{
			Kind:    book.FailureDataQuality,
			Message: "no record produced",
		}
	}

	if rec.Title == "" {
		return dataQuality("missing title")
	}
	if len(rec.Authors) == 0 {
		return dataQuality("missing authors")
	}
	for _, a := range rec.Authors {
		if a == "" {
			return dataQuality("empty author name")
		}
	}

	if rec.ISBN13 == "" {
		return dataQuality("missing normalized identifier")
	}
	if !isbn.ValidThirteen(rec.ISBN13) {
		return dataQuality(fmt.Sprintf("identifier %q fails checksum", rec.ISBN13))
	}
	if rec.ISBN10 != "" && !isbn.ValidTen(rec.ISBN10) {
		return dataQuality(fmt.Sprintf("identifier %q fails checksum", rec.ISBN10))
	}

	if rec.PublishDate != "" {
		if err := validatePublicationYear(rec.PublishDate); err != nil {
			return err
		}
	}

	return nil
}

// validatePublicationYear extracts a four-digit year from the free-form
// date and checks it against the sanity bounds. Dates with no parseable
// year pass; sources disagree wildly on date formats and a missing year
// is not a data-quality failure.
func validatePublicationYear(date string) error {
	match := yearPattern.FindString(date)
	if match == "" {
		return nil
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return nil
	}

	if year < minPublicationYear {
		return dataQuality(fmt.Sprintf("publication year %d is before %d", year, minPublicationYear))
	}
	if maxYear := time.Now().Year() + maxFutureYearsAhead; year > maxYear {
		return dataQuality(fmt.Sprintf("publication year %d is in the future (maximum %d)", year, maxYear))
	}
	return nil
}

func dataQuality(msg string) error {
	return &book.EnrichmentError{
		Kind:    book.FailureDataQuality,
		Message: msg,
	}
}
