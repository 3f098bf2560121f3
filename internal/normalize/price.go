package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var pricePattern = regexp.MustCompile(`\$\s?(\d{1,3}(?:,\d{3})+|\d+)(\.\d{2})?`)

// ParsePrice reads the first dollar amount in raw, or nil when none is present.
func ParsePrice(raw string) *float64 {
	m := pricePattern.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "")+m[2], 64)
	if err != nil {
		return nil
	}
	v = math.Round(v*100) / 100
	return &v
}
