package engine

import (
	"context"
	"time"

	"villagekeep/internal/eventbus"
	logx "villagekeep/pkg/logx"
)

// ReconcileReport summarizes an offline fast-forward.
type ReconcileReport struct {
	OfflineMs int64
	Ticks     int64
	Completed []string
	Faults    int
	// Capped is set when the offline span exceeded MaxOffline.
	Capped bool
}

// ReconcileOffline fast-forwards the state after the process could not run
// for offlineSeconds. Repeating records get floor(offline/interval) ticks in
// a bounded loop; deadline records get their remaining interval ticks and
// complete once if now is past the deadline. The result is written once.
//
// Spans longer than MaxOffline are treated as exactly MaxOffline, and the
// repeating records are rebased so the excess is never replayed.
func (e *Engine) ReconcileOffline(ctx context.Context, offlineSeconds int64, now int64) (ReconcileReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var rep ReconcileReport
	if offlineSeconds <= 0 {
		return rep, nil
	}
	offline := offlineSeconds * 1000
	if limit := e.maxOffline.Milliseconds(); offline > limit {
		offline = limit
		rep.Capped = true
	}
	rep.OfflineMs = offline

	c := e.effectCtx(now)
	e.state.Counters.RollDay(now)
	e.tasks.Batch(func() {
		for _, r := range e.tasks.List() {
			if r.Completed {
				continue
			}
			if r.OpenEnded() || r.Kind.Repeating() {
				if r.IntervalMs <= 0 {
					continue
				}
				ticks := offline / r.IntervalMs
				rec := r
				var applied int64
				err := e.invoke(rec, "interval", func() error {
					for ; applied < ticks; applied++ {
						if err := e.reg.Interval(c, rec, 1); err != nil {
							return err
						}
					}
					return nil
				})
				if err != nil {
					// Keep the ticks that landed so the driver does not repeat them.
					rep.Faults++
					if applied > 0 {
						r.LastTickAt = min(r.LastTickAt+applied*r.IntervalMs, now)
						e.tasks.Update(r)
						rep.Ticks += applied
					}
					continue
				}
				if rep.Capped {
					r.LastTickAt = now - (offline - ticks*r.IntervalMs)
				} else {
					r.LastTickAt += ticks * r.IntervalMs
				}
				if r.LastTickAt > now {
					r.LastTickAt = now
				}
				e.tasks.Update(r)
				rep.Ticks += ticks
				continue
			}

			if r.DeadlineAt == 0 {
				r.Normalize()
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
			if now >= r.DeadlineAt {
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
	e.dirty.Store(true)

	e.log.Info("offline reconciliation",
		logx.Duration("offline", time.Duration(offline)*time.Millisecond),
		logx.Int64("ticks", rep.Ticks),
		logx.Int("completed", len(rep.Completed)),
		logx.Bool("capped", rep.Capped),
	)
	e.publish(eventbus.ReconcileDone, eventbus.ReconcileNotice{
		OfflineMs: offline,
		Ticks:     rep.Ticks,
		Completed: len(rep.Completed),
		Capped:    rep.Capped,
	})
	return rep, e.flushLocked(ctx)
}
