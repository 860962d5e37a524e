package app

import (
	"context"
	"time"

	"villagekeep/internal/cadence"
	"villagekeep/internal/clock"
	logx "villagekeep/pkg/logx"
)

const (
	jobDriver      = "driver"
	jobConsistency = "consistency"
)

func (a *App) registerJobs() error {
	a.mu.Lock()
	s := a.schedules
	a.mu.Unlock()

	if err := a.cad.Set(cadence.Job{
		Name:     jobDriver,
		Schedule: s.driver,
		Timeout:  30 * time.Second,
		Run:      a.drive,
	}); err != nil {
		return err
	}
	return a.cad.Set(cadence.Job{
		Name:     jobConsistency,
		Schedule: s.consistency,
		Timeout:  30 * time.Second,
		Spread:   true,
		Run: func(ctx context.Context) error {
			_, err := a.eng.CheckConsistency(ctx)
			return err
		},
	})
}

// drive runs one driver pass. A gap since the previous invocation longer
// than the suspend threshold means the process was frozen (laptop sleep,
// SIGSTOP); that span goes through offline reconciliation first.
func (a *App) drive(ctx context.Context) error {
	now := clock.NowMs(a.clk)
	prev := a.lastDrive.Swap(now)
	if prev > 0 {
		if gap := now - prev; gap > a.suspendThreshold().Milliseconds() {
			a.log.Info("suspension detected", logx.Duration("gap", time.Duration(gap)*time.Millisecond))
			if err := a.catchUp(ctx, gap, now); err != nil {
				return err
			}
		}
	}
	rep, err := a.eng.Tick(ctx, now)
	if err != nil {
		return err
	}
	if rep.Skipped {
		a.log.Trace("driver pass skipped; gate held")
	}
	return nil
}
