package engine

import (
	"context"

	"villagekeep/internal/eventbus"
	"villagekeep/internal/task"
	logx "villagekeep/pkg/logx"
)

// TickReport summarizes one driver pass.
type TickReport struct {
	Skipped   bool
	Ticks     int64
	Completed []string
	Faults    int
}

// Tick runs one driver pass at now (unix ms). A held gate or the exclusive
// flag makes it a no-op. Handler faults are contained; the returned error is
// only ever a persistence failure.
func (e *Engine) Tick(ctx context.Context, now int64) (TickReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gate.suppressed() {
		return TickReport{Skipped: true}, nil
	}
	rep := e.passLocked(now)
	if rep.Ticks > 0 || len(rep.Completed) > 0 || rep.Faults > 0 {
		e.log.Debug("driver pass",
			logx.Int64("now", now),
			logx.Int64("ticks", rep.Ticks),
			logx.Int("completed", len(rep.Completed)),
			logx.Int("faults", rep.Faults),
		)
	}
	return rep, e.flushLocked(ctx)
}

// TickNow runs Tick at the engine clock's current time.
func (e *Engine) TickNow(ctx context.Context) (TickReport, error) {
	return e.Tick(ctx, e.now())
}

// passLocked advances every live record to now: interval ticks bounded by the
// deadline, then completion once the duration has elapsed. Completed records
// are pruned at the end of the pass.
func (e *Engine) passLocked(now int64) TickReport {
	var rep TickReport
	c := e.effectCtx(now)
	if e.state.Counters.RollDay(now) {
		e.dirty.Store(true)
	}
	e.tasks.Batch(func() {
		for _, r := range e.tasks.List() {
			if r.Completed {
				continue
			}
			if ticks := r.PendingTicks(now); ticks > 0 {
				rec := r
				if err := e.invoke(rec, "interval", func() error { return e.reg.Interval(c, rec, ticks) }); err != nil {
					rep.Faults++
					continue
				}
				r.LastTickAt += ticks * r.IntervalMs
				e.tasks.Update(r)
				rep.Ticks += ticks
			}
			if r.Due(now) {
				rec := r
				if err := e.invoke(rec, "completion", func() error { return e.reg.Complete(c, rec) }); err != nil {
					rep.Faults++
					continue
				}
				r.Completed = true
				e.tasks.Update(r)
				rep.Completed = append(rep.Completed, r.ID)
				e.publish(eventbus.TaskCompleted, notice(r, now, nil))
			}
		}
		e.pruneLocked()
	})
	e.refreshLocked(now)
	return rep
}

func (e *Engine) pruneLocked() {
	for _, r := range e.tasks.List() {
		if r.Completed {
			e.tasks.Remove(r.ID)
			e.forgetFaults(r.ID)
		}
	}
}

// refreshLocked updates the display cache on entities held by a live record
// and stamps the last active time. Neither marks the state dirty.
func (e *Engine) refreshLocked(now int64) {
	for _, r := range e.tasks.List() {
		if r.Completed {
			continue
		}
		left := r.RemainingMs(now)
		for _, s := range r.Slots() {
			switch s.Category {
			case task.CategoryActivity:
				if h, ok := e.state.Hero(r.SubjectID); ok && task.HeroKey(h.ID) == s.Entity {
					h.RemainingMs = left
				}
			case task.CategoryConstruction:
				if st, ok := e.state.Structure(r.Kind.StructureID); ok && task.StructureKey(st.ID) == s.Entity {
					st.RemainingMs = left
				}
			}
		}
	}
	if now > e.state.Counters.LastActiveAt {
		e.state.Counters.LastActiveAt = now
	}
}
