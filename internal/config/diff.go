package config

import (
	"reflect"
	"strings"

	logx "villagekeep/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and compact
// structured attrs describing their new values.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Int("logging.rate_per_sec", newCfg.Logging.RatePerSec),
		)
	}

	os0, ns := storageOrZero(oldCfg.Storage), storageOrZero(newCfg.Storage)
	if os0 != ns {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(ns.Driver)),
			logx.String("storage.path", strings.TrimSpace(ns.Path)),
			logx.Bool("storage.compress", ns.Compress),
		)
	}

	if trimDriver(oldCfg.Driver) != trimDriver(newCfg.Driver) {
		changed = append(changed, "driver")
		attrs = append(attrs,
			logx.Bool("driver.enabled", newCfg.Driver.Enabled),
			logx.String("driver.schedule", strings.TrimSpace(newCfg.Driver.Schedule)),
			logx.String("driver.consistency_schedule", strings.TrimSpace(newCfg.Driver.ConsistencySchedule)),
			logx.String("driver.timezone", strings.TrimSpace(newCfg.Driver.Timezone)),
		)
	}

	if strings.TrimSpace(oldCfg.Reconcile.MaxOffline) != strings.TrimSpace(newCfg.Reconcile.MaxOffline) {
		changed = append(changed, "reconcile")
		attrs = append(attrs, logx.String("reconcile.max_offline", strings.TrimSpace(newCfg.Reconcile.MaxOffline)))
	}

	if strings.TrimSpace(oldCfg.Catalog.Path) != strings.TrimSpace(newCfg.Catalog.Path) {
		changed = append(changed, "catalog")
		attrs = append(attrs, logx.String("catalog.path", strings.TrimSpace(newCfg.Catalog.Path)))
	}

	if !reflect.DeepEqual(oldCfg.Village, newCfg.Village) {
		changed = append(changed, "village")
		attrs = append(attrs,
			logx.Int("village.heroes", len(newCfg.Village.Heroes)),
			logx.Int("village.structures", len(newCfg.Village.Structures)),
		)
	}

	return changed, attrs
}

func storageOrZero(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

func trimDriver(d DriverConfig) DriverConfig {
	d.Schedule = strings.TrimSpace(d.Schedule)
	d.ConsistencySchedule = strings.TrimSpace(d.ConsistencySchedule)
	d.SuspendThreshold = strings.TrimSpace(d.SuspendThreshold)
	d.Timezone = strings.TrimSpace(d.Timezone)
	return d
}
