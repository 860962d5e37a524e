package storage

import (
	"errors"
	"time"

	"villagekeep/internal/clock"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "memory": in-process map, nothing survives a restart
//   - "file": one file per key under Path (a directory)
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Clock stamps updated_at on sqlite rows. Nil means the wall clock.
	Clock clock.Clock
}
