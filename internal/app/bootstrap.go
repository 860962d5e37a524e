package app

import (
	"fmt"
	"strings"
	"time"

	"villagekeep/internal/cadence"
	"villagekeep/internal/config"
	"villagekeep/internal/effects"
	"villagekeep/internal/storage"
	"villagekeep/internal/village"
	logx "villagekeep/pkg/logx"
)

const (
	defaultDriverSchedule      = "1m"
	defaultConsistencySchedule = "5m"
	defaultSuspendThreshold    = 5 * time.Minute
	defaultMaxEnergy           = 100
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		RatePerSec: cfg.Logging.RatePerSec,
	}
}

// mapStorageConfig returns the store config, the blob key and whether
// storage is enabled.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "memory", "mem":
		return storage.Config{Driver: "memory"}, true, nil
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func storageKey(cfg *config.Config) string {
	if cfg.Storage == nil {
		return ""
	}
	return strings.TrimSpace(cfg.Storage.Key)
}

func loadCatalog(cfg *config.Config) (*effects.Catalog, error) {
	p := strings.TrimSpace(cfg.Catalog.Path)
	if p == "" {
		return effects.DefaultCatalog(), nil
	}
	return effects.LoadCatalog(p)
}

type cadenceSettings struct {
	cfg              cadence.Config
	driver           string
	consistency      string
	suspendThreshold time.Duration
}

func mapCadence(cfg *config.Config) (cadenceSettings, error) {
	d := cfg.Driver
	out := cadenceSettings{
		cfg:         cadence.Config{Enabled: d.Enabled, Timezone: strings.TrimSpace(d.Timezone)},
		driver:      strings.TrimSpace(d.Schedule),
		consistency: strings.TrimSpace(d.ConsistencySchedule),
	}
	if out.driver == "" {
		out.driver = defaultDriverSchedule
	}
	if out.consistency == "" {
		out.consistency = defaultConsistencySchedule
	}
	if err := cadence.ValidateSchedule(out.driver); err != nil {
		return out, fmt.Errorf("driver.schedule: %w", err)
	}
	if err := cadence.ValidateSchedule(out.consistency); err != nil {
		return out, fmt.Errorf("driver.consistency_schedule: %w", err)
	}
	if out.cfg.Timezone != "" {
		if _, err := time.LoadLocation(out.cfg.Timezone); err != nil {
			return out, fmt.Errorf("driver.timezone: invalid %q: %w", out.cfg.Timezone, err)
		}
	}
	th, err := config.ParseDurationOrDefault("driver.suspend_threshold", d.SuspendThreshold, defaultSuspendThreshold)
	if err != nil {
		return out, err
	}
	out.suspendThreshold = th
	return out, nil
}

func seedEntities(cfg *config.Config) ([]village.Hero, []village.Structure) {
	heroes := make([]village.Hero, 0, len(cfg.Village.Heroes))
	for _, h := range cfg.Village.Heroes {
		maxE := h.MaxEnergy
		if maxE <= 0 {
			maxE = defaultMaxEnergy
		}
		energy := maxE
		if h.Energy != nil {
			energy = min(*h.Energy, maxE)
		}
		heroes = append(heroes, village.Hero{
			ID:        strings.TrimSpace(h.ID),
			Name:      h.Name,
			Energy:    energy,
			MaxEnergy: maxE,
			Level:     1,
			Status:    village.StatusIdle,
		})
	}
	structures := make([]village.Structure, 0, len(cfg.Village.Structures))
	for _, s := range cfg.Village.Structures {
		level := s.Level
		if s.Built && level <= 0 {
			level = 1
		}
		structures = append(structures, village.Structure{
			ID:     strings.TrimSpace(s.ID),
			Type:   s.Type,
			Level:  level,
			Built:  s.Built,
			Status: village.StatusIdle,
		})
	}
	return heroes, structures
}

// validate is the hot-reload gate: everything NewApp would reject.
func validate(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapCadence(cfg); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("reconcile.max_offline", cfg.Reconcile.MaxOffline); err != nil {
		return err
	}
	return nil
}
