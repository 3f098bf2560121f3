package normalize

import (
	"regexp"
	"strings"
	"time"
)

const isoDate = "2006-01-02"

var (
	dateNoise  = regexp.MustCompile(`[^\p{L}\d/,\s-]+`)
	ordinal    = regexp.MustCompile(`(?i)(\d)(st|nd|rd|th)\b`)
	anyDigit   = regexp.MustCompile(`\d`)
	hasYear    = regexp.MustCompile(`\d{4}|\d{1,2}[/-]\d{1,2}[/-]\d{2}\b`)
	sept       = regexp.MustCompile(`(?i)\bsept\b`)
	monthWords = `\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*`

	// Substring patterns tried when the whole string is not a date.
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}-\d{1,2}-\d{1,2}`),
		regexp.MustCompile(`\d{4}/\d{1,2}/\d{1,2}`),
		regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`),
		regexp.MustCompile(`(?i)` + monthWords + `\s+\d{1,2},?\s+\d{4}`),
		regexp.MustCompile(`(?i)\b\d{1,2}\s+` + monthWords + `,?\s+\d{4}`),
		regexp.MustCompile(`(?i)` + monthWords + `,?\s+\d{4}\b`),
		regexp.MustCompile(`(?i)` + monthWords + `\s+\d{1,2}\b`),
	}
)

// Layouts tried in order. Month names parse case-insensitively.
var dateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"2006/01/02",
	"2006/1/2",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"1-2-2006",
	"01/02/06",
	"1/2/06",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"Monday, January 2, 2006",
	"Monday January 2, 2006",
	"Monday January 2 2006",
	"Mon, Jan 2, 2006",
	"Mon Jan 2, 2006",
	"Mon Jan 2 2006",
	"2 January 2006",
	"2 January, 2006",
	"2 Jan 2006",
	"Monday, 2 January 2006",
	// Month and year only: the first of the month.
	"January 2006",
	"January, 2006",
	"Jan 2006",
	"Jan, 2006",
}

// Layouts for dates without a year; the year comes from the reference time.
var yearlessLayouts = []string{
	"January 2",
	"Jan 2",
	"Monday, January 2",
	"Monday January 2",
	"Mon, Jan 2",
	"Mon Jan 2",
	"2 January",
	"2 Jan",
}

// ParseDate cleans raw date text and returns it as YYYY-MM-DD, or nil when it
// cannot be read as a calendar date. No timezone adjustment is applied; now
// only supplies the year for texts such as "March 15".
func ParseDate(raw string, now time.Time) *string {
	if !anyDigit.MatchString(raw) {
		return nil
	}
	cleaned := cleanDate(raw)
	if cleaned == "" {
		return nil
	}
	// A year anywhere in the text rules out filling it from now.
	yearless := !hasYear.MatchString(cleaned)
	if t, ok := parseCleaned(cleaned, now, yearless); ok {
		return isoString(t)
	}
	for _, pattern := range datePatterns {
		for _, candidate := range pattern.FindAllString(cleaned, -1) {
			if t, ok := parseCleaned(strings.TrimRight(candidate, ", "), now, yearless); ok {
				return isoString(t)
			}
		}
	}
	return nil
}

func cleanDate(raw string) string {
	s := dateNoise.ReplaceAllString(raw, " ")
	s = ordinal.ReplaceAllString(s, "$1")
	s = sept.ReplaceAllString(s, "Sep")
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, ", ")
}

func parseCleaned(s string, now time.Time, yearless bool) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if !yearless {
		return time.Time{}, false
	}
	for _, layout := range yearlessLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func isoString(t time.Time) *string {
	s := t.Format(isoDate)
	return &s
}
