package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks field formats that the strict decoder cannot.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "memory", "mem", "file", "sqlite", "sqlite3":
		default:
			add(fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		_, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout)
		add(err)
	}
	_, err := ParseDurationField("driver.suspend_threshold", cfg.Driver.SuspendThreshold)
	add(err)
	_, err = ParseDurationField("reconcile.max_offline", cfg.Reconcile.MaxOffline)
	add(err)

	seen := map[string]bool{}
	for i, h := range cfg.Village.Heroes {
		id := strings.TrimSpace(h.ID)
		if id == "" {
			add(fmt.Errorf("village.heroes[%d]: id required", i))
			continue
		}
		if seen[id] {
			add(fmt.Errorf("village.heroes[%d]: duplicate id %q", i, id))
		}
		seen[id] = true
		if h.MaxEnergy < 0 || (h.Energy != nil && *h.Energy < 0) {
			add(fmt.Errorf("village.heroes[%d]: energy must be >= 0", i))
		}
	}
	for i, st := range cfg.Village.Structures {
		id := strings.TrimSpace(st.ID)
		if id == "" {
			add(fmt.Errorf("village.structures[%d]: id required", i))
			continue
		}
		if seen[id] {
			add(fmt.Errorf("village.structures[%d]: duplicate id %q", i, id))
		}
		seen[id] = true
	}
	return errors.Join(errs...)
}
