package engine

import (
	"context"
	"time"

	"villagekeep/internal/eventbus"
	logx "villagekeep/pkg/logx"
)

// gateState is the suspension gate. Deadlines stay absolute while it is
// held; only the driver is suppressed. Resume rebases soft (repeating)
// records so the paused span yields no ticks.
type gateState struct {
	held      bool
	exclusive bool
	pausedAt  int64
	version   uint64
	timer     *time.Timer
}

func (g *gateState) suppressed() bool { return g.held || g.exclusive }

func (g *gateState) stopTimer() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// Pause holds the gate until Resume. It supersedes a pending PauseFor.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauseLocked()
}

func (e *Engine) pauseLocked() uint64 {
	e.gate.stopTimer()
	e.gate.version++
	if !e.gate.held {
		e.gate.held = true
		e.gate.pausedAt = e.now()
		e.log.Debug("gate held", logx.Int64("at", e.gate.pausedAt))
		e.publish(eventbus.GatePaused, e.gate.pausedAt)
	}
	return e.gate.version
}

// PauseFor holds the gate and resumes automatically after d. A later Pause,
// Resume or PauseFor cancels the automatic resume.
func (e *Engine) PauseFor(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.pauseLocked()
	if d <= 0 {
		e.resumeLocked(context.Background())
		return
	}
	e.gate.timer = time.AfterFunc(d, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.gate.version != v || !e.gate.held {
			return
		}
		if err := e.resumeLocked(context.Background()); err != nil {
			e.log.Warn("auto resume: persist failed", logx.Err(err))
		}
	})
}

// Resume releases the gate. Repeating records skip the paused span.
func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gate.stopTimer()
	e.gate.version++
	return e.resumeLocked(ctx)
}

func (e *Engine) resumeLocked(ctx context.Context) error {
	if !e.gate.held {
		return nil
	}
	now := e.now()
	from := e.gate.pausedAt
	e.gate.held = false
	e.gate.timer = nil
	e.rebaseSoftLocked(from, now)
	// The paused span is accounted for; a restart must not replay it.
	if now > e.state.Counters.LastActiveAt {
		e.state.Counters.LastActiveAt = now
		e.dirty.Store(true)
	}
	e.log.Debug("gate released", logx.Int64("paused_ms", now-from))
	e.publish(eventbus.GateResumed, now-from)
	return e.flushLocked(ctx)
}

// rebaseSoftLocked shifts LastTickAt of repeating records forward by the
// part of [from, now) they spent paused.
func (e *Engine) rebaseSoftLocked(from, now int64) {
	if now <= from {
		return
	}
	e.tasks.Batch(func() {
		for _, r := range e.tasks.List() {
			if !r.Kind.Soft() || r.IntervalMs <= 0 || r.LastTickAt >= now {
				continue
			}
			start := from
			if r.LastTickAt > start {
				start = r.LastTickAt
			}
			r.LastTickAt += now - start
			e.tasks.Update(r)
		}
	})
}

// SetExclusive sets the modal exclusive-activity flag. While set the driver
// does nothing; no rebasing happens when it clears.
func (e *Engine) SetExclusive(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gate.exclusive = on
}

// Held reports whether the driver is currently suppressed.
func (e *Engine) Held() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gate.suppressed()
}
