package storage

import (
	"context"
	"errors"
	"strings"

	logx "villagekeep/pkg/logx"
)

// Store is a durable blob store addressed by a single key per blob.
// Writes are whole-value replacements, never partial patches.
type Store interface {
	Get(ctx context.Context, key string) (blob []byte, ok bool, err error)
	Put(ctx context.Context, key string, blob []byte) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "memory", "mem":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage key required")
	}
	return key, nil
}
