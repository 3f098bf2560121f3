package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "month name", raw: "March 15, 2025", want: "2025-03-15"},
		{name: "iso", raw: "2025-03-15", want: "2025-03-15"},
		{name: "us slashes", raw: "03/15/2025", want: "2025-03-15"},
		{name: "short us", raw: "3/5/2025", want: "2025-03-05"},
		{name: "abbreviated month", raw: "Mar 5, 2025", want: "2025-03-05"},
		{name: "weekday prefix", raw: "Saturday, March 15, 2025", want: "2025-03-15"},
		{name: "ordinal", raw: "March 15th, 2025", want: "2025-03-15"},
		{name: "day first", raw: "15 March 2025", want: "2025-03-15"},
		{name: "surrounding noise", raw: "Starts: Sat. March 15th, 2025 @ 9am", want: "2025-03-15"},
		{name: "lowercase", raw: "march 15 2025", want: "2025-03-15"},
		{name: "yearless takes clock year", raw: "April 2", want: "2025-04-02"},
		{name: "padding", raw: "  2025/03/15  ", want: "2025-03-15"},
		{name: "month and year", raw: "May 2025", want: "2025-05-01"},
		{name: "month and year keeps its year", raw: "December 2025", want: "2025-12-01"},
		{name: "month and year in text", raw: "Classes begin June 2025, evenings", want: "2025-06-01"},
		{name: "sept abbreviation", raw: "Sept 14, 2025", want: "2025-09-14"},
		{name: "sept with weekday", raw: "Sun. Sept. 14th 2025", want: "2025-09-14"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseDate(tt.raw, refTime)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseDateUnparseable(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "   ", "TBA", "Ongoing", "Every weekday", "99/99/9999", "Room 12", "Term 2025"} {
		assert.Nilf(t, ParseDate(raw, refTime), "raw %q", raw)
	}
}

func TestParseDateNeverBorrowsYearWhenTextHasOne(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC)
	for raw, want := range map[string]string{
		"May 2025":      "2025-05-01",
		"June 2025":     "2025-06-01",
		"December 2025": "2025-12-01",
	} {
		got := ParseDate(raw, now)
		require.NotNilf(t, got, "raw %q", raw)
		assert.Equalf(t, want, *got, "raw %q", raw)
	}
}
