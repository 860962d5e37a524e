package config

// Config is the daemon configuration. YAML and JSON files decode into it
// strictly: unknown keys are rejected.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Driver    DriverConfig    `json:"driver"`
	Reconcile ReconcileConfig `json:"reconcile"`
	Catalog   CatalogConfig   `json:"catalog"`
	Village   VillageConfig   `json:"village"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	// RatePerSec bounds non-error log lines per second. 0 disables the guard.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the snapshot blob store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./village.db", "compress": true }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	Key         string `json:"key,omitempty"`          // default: "village.snapshot"
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Compress    bool   `json:"compress,omitempty"`
}

// DriverConfig controls the periodic driver and consistency passes.
//
// Schedules accept cron ("*/5 * * * *"), Go durations ("1m") or HH:MM.
type DriverConfig struct {
	Enabled             bool   `json:"enabled"`
	Schedule            string `json:"schedule,omitempty"`             // default: "1m"
	ConsistencySchedule string `json:"consistency_schedule,omitempty"` // default: "5m"
	// SuspendThreshold is the invocation gap treated as a process suspension
	// and handed to offline reconciliation. Default: "5m".
	SuspendThreshold string `json:"suspend_threshold,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
}

type ReconcileConfig struct {
	// MaxOffline caps the replayed offline span. Default: "168h".
	MaxOffline string `json:"max_offline,omitempty"`
}

type CatalogConfig struct {
	// Path to a YAML catalog overriding the embedded one. Empty keeps the
	// defaults.
	Path string `json:"path,omitempty"`
}

// VillageConfig seeds a fresh state. Entities already present in a loaded
// snapshot are left alone.
type VillageConfig struct {
	Heroes     []HeroSeed      `json:"heroes,omitempty"`
	Structures []StructureSeed `json:"structures,omitempty"`
}

type HeroSeed struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Energy    *int   `json:"energy,omitempty"` // default: max_energy
	MaxEnergy int    `json:"max_energy,omitempty"`
}

type StructureSeed struct {
	ID    string `json:"id"`
	Type  string `json:"type,omitempty"`
	Built bool   `json:"built,omitempty"`
	Level int    `json:"level,omitempty"`
}
