// Package task holds the task record model, the exclusivity table and the
// ordered record store the engine drives.
package task

import (
	"sync"
)

// Store is an ordered collection of live task records.
//
// Callers never see the underlying slice: List returns copies and mutation
// goes through Add/Update/Remove. Every successful mutation fires the change
// hook unless a Batch is in progress, in which case the hook fires once when
// the batch ends.
type Store struct {
	mu      sync.Mutex
	records []Record
	index   map[string]int

	onChange func()
	batching int
	dirty    bool
}

// NewStore returns an empty store. onChange may be nil.
func NewStore(onChange func()) *Store {
	return &Store{index: map[string]int{}, onChange: onChange}
}

// SetOnChange replaces the change hook.
func (s *Store) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Add appends r. It fails with *DuplicateTaskError when r.ID is live.
func (s *Store) Add(r Record) error {
	s.mu.Lock()
	if _, ok := s.index[r.ID]; ok {
		s.mu.Unlock()
		return &DuplicateTaskError{ID: r.ID}
	}
	s.index[r.ID] = len(s.records)
	s.records = append(s.records, r.clone())
	fire := s.markLocked()
	s.mu.Unlock()
	fire()
	return nil
}

// Update replaces the live record with the same id. It returns false when
// the id is not live.
func (s *Store) Update(r Record) bool {
	s.mu.Lock()
	i, ok := s.index[r.ID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.records[i] = r.clone()
	fire := s.markLocked()
	s.mu.Unlock()
	fire()
	return true
}

// Remove deletes id if present. Removing an unknown id is a no-op.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	s.reindexLocked()
	fire := s.markLocked()
	s.mu.Unlock()
	fire()
	return true
}

// Get returns a copy of the live record with the given id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return Record{}, false
	}
	return s.records[i].clone(), true
}

// List returns copies of the live records in insertion order.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	for i, r := range s.records {
		out[i] = r.clone()
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// BySubject returns the live records whose slots touch the entity id.
func (s *Store) BySubject(entityID string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.records {
		if r.SubjectID == entityID || Occupies(r.Slots(), entityID) {
			out = append(out, r.clone())
		}
	}
	return out
}

// Persist returns the task section of a snapshot.
func (s *Store) Persist() []Record { return s.List() }

// Restore replaces the store contents. Duplicate ids keep the first
// occurrence. The change hook does not fire.
func (s *Store) Restore(rs []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make([]Record, 0, len(rs))
	s.index = make(map[string]int, len(rs))
	for _, r := range rs {
		if r.ID == "" {
			continue
		}
		if _, ok := s.index[r.ID]; ok {
			continue
		}
		s.index[r.ID] = len(s.records)
		s.records = append(s.records, r.clone())
	}
	s.dirty = false
}

// Batch runs fn with the change hook suppressed and fires it once afterwards
// if fn mutated the store. Batches may nest.
func (s *Store) Batch(fn func()) {
	s.mu.Lock()
	s.batching++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.batching--
		var hook func()
		if s.batching == 0 && s.dirty {
			s.dirty = false
			hook = s.onChange
		}
		s.mu.Unlock()
		if hook != nil {
			hook()
		}
	}()
	fn()
}

// markLocked records a mutation and returns the hook to fire after unlock.
func (s *Store) markLocked() func() {
	if s.batching > 0 {
		s.dirty = true
		return func() {}
	}
	hook := s.onChange
	if hook == nil {
		return func() {}
	}
	return hook
}

func (s *Store) reindexLocked() {
	s.index = make(map[string]int, len(s.records))
	for i, r := range s.records {
		s.index[r.ID] = i
	}
}
