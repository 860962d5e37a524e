package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "villagekeep/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files (under the configured directory):
//   - <key>.blob     current value
//   - <key>.blob.tmp staging file, renamed over <key>.blob on success
//
// A crash mid-write leaves the previous <key>.blob intact.
type fileStore struct {
	log logx.Logger
	dir string

	mu     sync.Mutex
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, dir: dir}, nil
}

func (s *fileStore) path(key string) string {
	// Keys are flat names; keep them from escaping the directory.
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(s.dir, safe+".blob")
}

func (s *fileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	key, err := normalizeKey(key)
	if err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	b, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *fileStore) Put(ctx context.Context, key string, blob []byte) error {
	_ = ctx
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	dst := s.path(key)
	tmp := dst + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(blob); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return err
	}
	s.log.Trace("blob written", logx.String("key", key), logx.Int("bytes", len(blob)))
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
