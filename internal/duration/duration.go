// Package duration turns human-written durations ("30 minutes", "1 day",
// "1h30m", "90") into whole seconds.
package duration

import (
	"math"
	"strconv"
	"strings"

	"github.com/wasilibs/go-re2"
	"golang.org/x/text/unicode/norm"
)

const (
	day  = 24 * 60 * 60
	year = 365.25 * day
)

// unitSeconds maps every accepted unit spelling to its length in seconds.
var unitSeconds = map[string]float64{
	"ns": 1e-9, "nanosecond": 1e-9, "nanoseconds": 1e-9,
	"us": 1e-6, "μs": 1e-6, "microsecond": 1e-6, "microseconds": 1e-6,
	"ms": 1e-3, "msec": 1e-3, "millisecond": 1e-3, "milliseconds": 1e-3,
	"s": 1, "sec": 1, "secs": 1, "second": 1, "seconds": 1,
	"m": 60, "min": 60, "mins": 60, "minute": 60, "minutes": 60,
	"h": 3600, "hr": 3600, "hrs": 3600, "hour": 3600, "hours": 3600,
	"d": day, "day": day, "days": day,
	"w": 7 * day, "wk": 7 * day, "wks": 7 * day, "week": 7 * day, "weeks": 7 * day,
	"mo": year / 12, "month": year / 12, "months": year / 12,
	"y": year, "yr": year, "yrs": year, "year": year, "years": year,
}

var (
	componentPattern = re2.MustCompile(`(\d+(?:\.\d+)?|\.\d+)\s*([a-zμ]+)`)
	gapPattern       = re2.MustCompile(`^[\s,]*(?:and)?[\s,]*$`)
)

// ParseSeconds parses text into a positive number of whole seconds.
// A bare integer is taken as seconds. ok is false for anything it cannot
// read completely, and for totals that round to zero or less.
func ParseSeconds(text string) (int64, bool) {
	s := strings.ToLower(strings.TrimSpace(norm.NFKC.String(text)))
	if s == "" {
		return 0, false
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return 0, false
		}
		return n, true
	}

	matches := componentPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return 0, false
	}

	var total float64
	prevEnd := 0
	for _, m := range matches {
		if !gapPattern.MatchString(s[prevEnd:m[0]]) {
			return 0, false
		}
		prevEnd = m[1]

		value, err := strconv.ParseFloat(s[m[2]:m[3]], 64)
		if err != nil {
			return 0, false
		}
		unit, known := unitSeconds[s[m[4]:m[5]]]
		if !known {
			return 0, false
		}
		total += value * unit
	}
	if !gapPattern.MatchString(s[prevEnd:]) {
		return 0, false
	}

	seconds := math.Round(total)
	if seconds <= 0 || seconds > math.MaxInt64/2 {
		return 0, false
	}
	return int64(seconds), true
}
