// Package deadline derives statutory filing due dates from message
// content: it extracts an optional accounting period end date from
// free text and applies category-specific filing rules.
package deadline

import (
	"regexp"
	"strings"
	"time"

	"github.com/taskledger/mailscan/internal/classify"
)

// defaultGraceMonths is applied when no period end date is found.
const defaultGraceMonths = 6

const (
	numericDate = `(\d{1,2}[\/\-]\d{1,2}[\/\-]\d{2,4})`
	textualDate = `(\d{1,2}(?:st|nd|rd|th)?\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{4})`
)

// patterns are tried in order; the first one that both matches and
// parses to a valid calendar date wins.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)year\s*end[:\s]+` + numericDate),
	regexp.MustCompile(`(?i)year\s*ending[:\s]+` + numericDate),
	regexp.MustCompile(`(?i)accounting\s*period\s*end[:\s]+` + numericDate),
	regexp.MustCompile(`(?i)financial\s*year\s*end[:\s]+` + numericDate),
	regexp.MustCompile(`(?i)period\s*end[:\s]+` + numericDate),
	regexp.MustCompile(`(?i)y\/e[:\s]+` + numericDate),
	regexp.MustCompile(`(?i)` + numericDate + `\s*year\s*end`),
	regexp.MustCompile(`(?i)year\s*end[:\s]+` + textualDate),
	regexp.MustCompile(`(?i)year\s*ending[:\s]+` + textualDate),
	regexp.MustCompile(`(?i)accounting\s*period\s*end[:\s]+` + textualDate),
}

// numericLayouts parse day-first dates; separators are normalized to
// "/" before parsing.
var numericLayouts = []string{
	"2/1/2006",
	"2/1/06",
}

var textualLayouts = []string{
	"2 January 2006",
	"2 Jan 2006",
}

var ordinalSuffix = regexp.MustCompile(`(\d{1,2})(st|nd|rd|th)`)

// ExtractPeriodEnd scans body text for an accounting period end date
// announced by a trigger phrase ("year end", "y/e", ...). It returns
// false when no pattern yields a valid date.
func ExtractPeriodEnd(body string) (time.Time, bool) {
	for _, pattern := range patterns {
		m := pattern.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		if t, ok := parseDate(m[1]); ok {
			return t, true
		}
		// Matched but unparseable; fall through to the next pattern.
	}
	return time.Time{}, false
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)

	if strings.ContainsAny(s, "/-") {
		// Mixed separators appear in the wild; normalize to one.
		normalized := strings.ReplaceAll(s, "-", "/")
		for _, layout := range numericLayouts {
			if t, err := time.Parse(layout, normalized); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	}

	s = ordinalSuffix.ReplaceAllString(s, "$1")
	for _, layout := range textualLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DueDate computes the filing due date for a classified message.
//
// Without a period end the due date is scanTime plus a six month
// grace period regardless of category. Corporation tax returns are
// due twelve months after the accounting period end. Everything else
// follows the self assessment rule: January 31 after the UK tax year
// (6 April to 5 April) containing the period end. On or before
// 5 April means January 31 of the following year; after 5 April it is
// January 31 of the year after that.
func DueDate(category string, periodEnd *time.Time, scanTime time.Time) time.Time {
	if periodEnd == nil {
		return scanTime.AddDate(0, defaultGraceMonths, 0)
	}

	if category == classify.CorporationTax {
		return periodEnd.AddDate(0, 12, 0)
	}

	boundary := time.Date(periodEnd.Year(), time.April, 6, 0, 0, 0, 0, periodEnd.Location())
	year := periodEnd.Year() + 1
	if !periodEnd.Before(boundary) {
		year = periodEnd.Year() + 2
	}
	return time.Date(year, time.January, 31, 0, 0, 0, 0, periodEnd.Location())
}
