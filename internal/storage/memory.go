package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps blobs in a process-local map.
type MemoryStore struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	writes int
	closed bool
}

// NewMemory returns an in-process store. Values are copied on the way in and
// out so callers cannot alias stored bytes.
func NewMemory() *MemoryStore {
	return &MemoryStore{blobs: map[string][]byte{}}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
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
	b, ok := s.blobs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, blob []byte) error {
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
	s.blobs[key] = append([]byte(nil), blob...)
	s.writes++
	return nil
}

// Writes reports how many Put calls succeeded.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
