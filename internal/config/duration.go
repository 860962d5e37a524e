package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// ParseDurationField parses a config duration. Besides time.ParseDuration
// syntax it accepts a leading whole-day count: "7d", "1d12h". Empty means 0.
// path names the field in errors.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := parseSpan(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def standing in for an
// empty or zero value.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

func parseSpan(s string) (time.Duration, error) {
	n := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if n <= 0 || s[n] != 'd' {
		return time.ParseDuration(s)
	}
	days, err := strconv.ParseInt(s[:n], 10, 64)
	if err != nil || days > int64(1<<63-1)/int64(day) {
		return 0, fmt.Errorf("day count out of range")
	}
	total := time.Duration(days) * day
	if rest := s[n+1:]; rest != "" {
		extra, err := time.ParseDuration(rest)
		if err != nil {
			return 0, err
		}
		if extra < 0 {
			return 0, fmt.Errorf("negative part after days")
		}
		total += extra
	}
	return total, nil
}
