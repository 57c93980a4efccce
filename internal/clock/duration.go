package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration parses a human duration of the form <integer><suffix>
// where suffix is one of s|m|h|d (j is accepted as an alias for d, from
// the French "jour", matching spec-mandated aliasing). A bare integer is
// interpreted as seconds. Empty or negative durations are rejected; zero
// is accepted.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("duration: empty value")
	}

	suffix := s[len(s)-1:]
	numPart := s
	var unit time.Duration

	switch suffix {
	case "s":
		unit = time.Second
		numPart = s[:len(s)-1]
	case "m":
		unit = time.Minute
		numPart = s[:len(s)-1]
	case "h":
		unit = time.Hour
		numPart = s[:len(s)-1]
	case "d", "j":
		unit = 24 * time.Hour
		numPart = s[:len(s)-1]
	default:
		unit = time.Second
	}

	numPart = strings.TrimSpace(numPart)
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("duration: invalid value %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("duration: must not be negative, got %q", s)
	}

	return time.Duration(n) * unit, nil
}
