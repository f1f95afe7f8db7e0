package platform

import (
	"fmt"
	"regexp"
	"strconv"
)

var iso8601DurationRe = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseISO8601Duration parses a YouTube Data API duration like "PT1H2M3S"
// into total seconds. Any missing component defaults to zero; "PT0S" and
// "PT" (no components, e.g. a livestream with duration not yet known)
// both parse to zero.
func ParseISO8601Duration(s string) (int, error) {
	m := iso8601DurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid ISO-8601 duration: %q", s)
	}
	hours := atoiOrZero(m[1])
	minutes := atoiOrZero(m[2])
	seconds := atoiOrZero(m[3])
	return hours*3600 + minutes*60 + seconds, nil
}

func atoiOrZero(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
