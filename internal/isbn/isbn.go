// Package isbn validates, converts and normalizes ISBN identifiers.
package isbn

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is returned for identifiers that are not valid ISBNs.
var ErrInvalid = errors.New("invalid ISBN")

// Clean strips hyphens and whitespace and uppercases the check character.
func Clean(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToUpper(raw) {
		switch r {
		case '-', ' ', '\t':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidTen reports whether raw is a valid ISBN-10 (mod-11 weighted checksum,
// final character may be X).
func ValidTen(raw string) bool {
	clean := Clean(raw)
	if len(clean) != 10 {
		return false
	}

	sum := 0
	for i := 0; i < 9; i++ {
		c := clean[i]
		if c < '0' || c > '9' {
			return false
		}
		sum += int(c-'0') * (10 - i)
	}

	switch last := clean[9]; {
	case last == 'X':
		sum += 10
	case last >= '0' && last <= '9':
		sum += int(last - '0')
	default:
		return false
	}

	return sum%11 == 0
}

// ValidThirteen reports whether raw is a valid ISBN-13: thirteen digits,
// 978 or 979 prefix, alternating 1/3 weighted checksum.
func ValidThirteen(raw string) bool {
	clean := Clean(raw)
	if len(clean) != 13 {
		return false
	}
	for i := 0; i < 13; i++ {
		if clean[i] < '0' || clean[i] > '9' {
			return false
		}
	}
	if !strings.HasPrefix(clean, "978") && !strings.HasPrefix(clean, "979") {
		return false
	}
	return checkDigit13(clean[:12]) == int(clean[12]-'0')
}

// checkDigit13 computes the ISBN-13 check digit for twelve leading digits.
func checkDigit13(digits string) int {
	sum := 0
	for i := 0; i < 12; i++ {
		weight := 1
		if i%2 == 1 {
			weight = 3
		}
		sum += int(digits[i]-'0') * weight
	}
	return (10 - sum%10) % 10
}

// ToThirteen converts a valid ISBN-10 to its ISBN-13 form (978 prefix).
func ToThirteen(isbn10 string) (string, error) {
	clean := Clean(isbn10)
	if !ValidTen(clean) {
		return "", fmt.Errorf("%w: %q is not an ISBN-10", ErrInvalid, isbn10)
	}
	body := "978" + clean[:9]
	return body + string(rune('0'+checkDigit13(body))), nil
}

// ToTen converts a 978-prefixed ISBN-13 to its ISBN-10 form. Returns an
// empty string with no error for 979 ISBNs, which have no ISBN-10 form.
func ToTen(isbn13 string) (string, error) {
	clean := Clean(isbn13)
	if !ValidThirteen(clean) {
		return "", fmt.Errorf("%w: %q is not an ISBN-13", ErrInvalid, isbn13)
	}
	if !strings.HasPrefix(clean, "978") {
		return "", nil
	}

	body := clean[3:12]
	sum := 0
	for i := 0; i < 9; i++ {
		sum += int(body[i]-'0') * (10 - i)
	}

	var check string
	switch rem := sum % 11; rem {
	case 0:
		check = "0"
	case 1:
		check = "X"
	default:
		check = fmt.Sprintf("%d", 11-rem)
	}

	return body + check, nil
}

// Normalize converts any valid ISBN to its canonical ISBN-13 form.
func Normalize(raw string) (string, error) {
	clean := Clean(raw)
	if clean == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrInvalid)
	}

	switch len(clean) {
	case 10:
		return ToThirteen(clean)
	case 13:
		if !ValidThirteen(clean) {
			return "", fmt.Errorf("%w: %q", ErrInvalid, raw)
		}
		return clean, nil
	default:
		return "", fmt.Errorf("%w: %q has %d characters, want 10 or 13", ErrInvalid, raw, len(clean))
	}
}

// Valid reports whether raw is a valid ISBN in either form.
func Valid(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}

// FormatThirteen hyphenates a clean ISBN-13 for display. Group boundaries
// are approximate; exact registration group splits are not tracked.
func FormatThirteen(isbn13 string) string {
	clean := Clean(isbn13)
	if len(clean) != 13 {
		return clean
	}
	return fmt.Sprintf("%s-%s-%s-%s-%s", clean[:3], clean[3:4], clean[4:7], clean[7:12], clean[12:])
}
