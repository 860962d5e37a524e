package cadence

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SpecKind is the normalized kind of a schedule string.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is a parsed schedule string.
//
// Accepted forms:
//   - cron: "*/5 * * * *", "@hourly", "@every 1m"
//   - Go duration: "1m", "2h30m"
//   - HH:MM interval: "00:05" (five minutes)
//
// The prefixes "cron:", "interval:" and "every:" force a form.
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"
}

// CronSpec renders the spec in a form robfig/cron accepts.
func (p ParsedSpec) CronSpec() string {
	if p.Kind == SpecInterval {
		return "@every " + p.Every.String()
	}
	return p.Cron
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule parses raw into a cron expression or a fixed interval.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return ParsedSpec{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return ParsedSpec{Kind: SpecCron, Cron: expr, Source: "cron"}, nil
	case strings.HasPrefix(low, "interval:"):
		return intervalSpec(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return intervalSpec(s[len("every:"):])
	}

	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return ParsedSpec{Kind: SpecCron, Cron: s, Source: "cron"}, nil
	}
	if reHHMM.MatchString(s) || looksLikeDuration(s) {
		return intervalSpec(s)
	}
	return ParsedSpec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '00:05', or duration like '1m')",
		raw,
	)
}

func looksLikeDuration(s string) bool {
	_, err := time.ParseDuration(s)
	return err == nil
}

func intervalSpec(v string) (ParsedSpec, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return ParsedSpec{}, fmt.Errorf("interval required")
	}
	src := "duration"
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); len(m) == 3 {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return ParsedSpec{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		src = "hhmm"
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return ParsedSpec{}, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '1m')", v)
		}
	}
	if d <= 0 {
		return ParsedSpec{}, fmt.Errorf("interval must be > 0")
	}
	return ParsedSpec{Kind: SpecInterval, Every: d, Source: src}, nil
}
