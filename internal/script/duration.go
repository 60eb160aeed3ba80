package script

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration parses a duration into milliseconds.
//
// Accepted forms are Go durations ("90s", "1m30s") and clock notation with
// one to three colon separated fields ("20:00", ":60", "1:05:00"). The last
// clock field is seconds and may exceed 59.
func ParseDuration(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if !strings.Contains(s, ":") {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		if d < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		if d%time.Millisecond != 0 {
			return 0, fmt.Errorf("duration %q is finer than a millisecond", s)
		}
		return d.Milliseconds(), nil
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock duration %q", s)
	}
	var total int64
	for _, p := range parts {
		total *= 60
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid clock duration %q", s)
		}
		total += n
	}
	return total * 1000, nil
}
