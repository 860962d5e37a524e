package engine

import (
	"context"
	"errors"
	"fmt"

	"villagekeep/internal/eventbus"
	"villagekeep/internal/snapshot"
	"villagekeep/internal/village"
	logx "villagekeep/pkg/logx"
)

// Save writes the full state to the blob store and returns what was written.
func (e *Engine) Save(ctx context.Context) (snapshot.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saveLocked(ctx)
}

func (e *Engine) saveLocked(ctx context.Context) (snapshot.Snapshot, error) {
	snap := snapshot.FromState(e.state, e.tasks.Persist(), e.now())
	snap.Extensions = e.extensions
	if e.store == nil {
		e.dirty.Store(false)
		return snap, nil
	}
	blob, err := e.codec.Encode(snap)
	if err != nil {
		return snap, err
	}
	if err := e.store.Put(ctx, e.key, blob); err != nil {
		// State stays dirty so the next persistence point retries.
		e.log.Warn("snapshot write failed", logx.String("key", e.key), logx.Err(err))
		return snap, fmt.Errorf("persist snapshot: %w", err)
	}
	e.dirty.Store(false)
	e.saves.Add(1)
	e.log.Trace("snapshot saved", logx.String("key", e.key), logx.Int("bytes", len(blob)), logx.Int("tasks", len(snap.Tasks)))
	return snap, nil
}

// flushLocked saves only when something changed since the last write.
func (e *Engine) flushLocked(ctx context.Context) error {
	if !e.dirty.Load() {
		return nil
	}
	_, err := e.saveLocked(ctx)
	return err
}

// Load replaces the in-memory state with the stored snapshot. It returns
// ErrNoState when nothing is stored and a *snapshot.CorruptSaveError when the
// blob is unreadable; in both cases the current state is kept.
func (e *Engine) Load(ctx context.Context) (snapshot.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadLocked(ctx)
}

func (e *Engine) loadLocked(ctx context.Context) (snapshot.Snapshot, error) {
	if e.store == nil {
		return snapshot.Snapshot{}, ErrNoState
	}
	blob, ok, err := e.store.Get(ctx, e.key)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	if !ok {
		return snapshot.Snapshot{}, ErrNoState
	}
	snap, err := e.codec.Decode(blob)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	e.state = snap.State()
	e.tasks.Restore(snap.Tasks)
	e.extensions = snap.Extensions
	e.dirty.Store(false)
	e.log.Info("snapshot loaded",
		logx.String("key", e.key),
		logx.Int("heroes", len(snap.Heroes)),
		logx.Int("tasks", e.tasks.Len()),
		logx.Int64("saved_at", snap.SavedAt),
	)
	return snap, nil
}

// LoadResult tells the caller how start-up state was obtained.
type LoadResult struct {
	Fresh   bool
	Corrupt bool
	Reason  string
	// LastActiveAt is the persisted last driver time (0 for fresh state).
	LastActiveAt int64
}

// LoadOrFresh loads the stored snapshot, falling back to fresh state when
// none exists or it is unreadable. A corrupt blob is copied aside to
// "<key>.corrupt", reported on the bus, and then replaced on the next save.
func (e *Engine) LoadOrFresh(ctx context.Context) (LoadResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.loadLocked(ctx)
	switch {
	case err == nil:
		return LoadResult{LastActiveAt: snap.Counters.LastActiveAt}, nil
	case errors.Is(err, ErrNoState):
		e.resetLocked()
		return LoadResult{Fresh: true}, nil
	case errors.Is(err, snapshot.ErrCorruptSave):
		reason := err.Error()
		var ce *snapshot.CorruptSaveError
		if errors.As(err, &ce) {
			reason = ce.Reason
		}
		if blob, ok, gerr := e.store.Get(ctx, e.key); gerr == nil && ok {
			if perr := e.store.Put(ctx, e.key+".corrupt", blob); perr != nil {
				e.log.Warn("could not keep corrupt snapshot", logx.Err(perr))
			}
		}
		e.log.Warn("save file unreadable, starting fresh", logx.String("key", e.key), logx.Err(err))
		e.publish(eventbus.SaveCorrupt, eventbus.CorruptNotice{Key: e.key, Reason: reason})
		e.resetLocked()
		e.dirty.Store(true)
		return LoadResult{Fresh: true, Corrupt: true, Reason: reason}, nil
	default:
		return LoadResult{}, err
	}
}

func (e *Engine) resetLocked() {
	e.state = village.NewState()
	e.tasks.Restore(nil)
	e.extensions = nil
}
