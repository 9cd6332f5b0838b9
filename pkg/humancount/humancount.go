// Package humancount parses human-readable magnitude strings as rendered by
// social profile pages ("1.2K", "5M", "301") into integers.
package humancount

import (
	"math"
	"strconv"
	"strings"
)

// Parse converts a follower/like count string to an integer.
//
// Accepted forms: a plain integer ("300"), a decimal mantissa with a K/M/B
// suffix ("1.2K", "5M", "0.9B", case-insensitive), or a placeholder ("-",
// "--", empty). Placeholders and anything unparseable yield 0; Parse never
// fails, so an unknown count simply fails any threshold comparison.
func Parse(raw string) int64 {
	s := strings.TrimSpace(raw)
	if s == "" || s == "-" || s == "--" {
		return 0
	}
	// Thousands separators show up on some locales ("1,234").
	s = strings.ReplaceAll(s, ",", "")

	mult := int64(1)
	switch strings.ToLower(s[len(s)-1:]) {
	case "k":
		mult = 1_000
		s = s[:len(s)-1]
	case "m":
		mult = 1_000_000
		s = s[:len(s)-1]
	case "b":
		mult = 1_000_000_000
		s = s[:len(s)-1]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	if mult == 1 {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			// Fall through for decimal values without a suffix ("1.5").
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil || f < 0 {
				return 0
			}
			return int64(f)
		}
		return n
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	// Round, don't truncate: 128.2 * 1000 is 128199.99... in float64, and a
	// count sitting exactly on a threshold must not come out one short.
	return int64(math.Round(f * float64(mult)))
}
