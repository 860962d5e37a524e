package engine

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"villagekeep/internal/effects"
	"villagekeep/internal/task"
	"villagekeep/internal/village"
)

func TestReconcileRestScenario(t *testing.T) {
	t.Parallel()
	h := newHarness(t, village.Hero{ID: "H1", Energy: 30})
	h.create(t, CreateRequest{Kind: task.Rest(), SubjectID: "H1", DurationMs: 600_000, IntervalMs: 60_000})

	rep, err := h.e.ReconcileOffline(context.Background(), 650, 650_000)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Ticks != 10 || len(rep.Completed) != 1 || rep.Capped {
		t.Fatalf("report: %+v", rep)
	}
	if hero := h.hero(t, "H1"); hero.Energy != 100 || hero.Status != village.StatusIdle {
		t.Fatalf("hero: %+v", hero)
	}
	if len(h.e.Records()) != 0 {
		t.Fatal("record should be removed")
	}
}

// Stepwise ticking and one reconciliation must reach the same state for any
// overshoot k past the deadline.
func TestOfflineEquivalenceForDeadlineTasks(t *testing.T) {
	t.Parallel()
	const d = int64(30 * 60_000)
	for _, k := range []int64{0, 1000, 61_000, 3_600_000, 3 * 86_400_000} {
		k := k
		t.Run(time.Duration(k*int64(time.Millisecond)).String(), func(t *testing.T) {
			t.Parallel()
			setup := func() *harness {
				h := newHarness(t,
					village.Hero{ID: "H1", Energy: 10},
					village.Hero{ID: "H2", Energy: 100},
					village.Hero{ID: "H3", Energy: 100},
				)
				h.create(t, CreateRequest{Kind: task.Rest(), SubjectID: "H1"})
				h.create(t, CreateRequest{Kind: task.Gather(village.Wood), SubjectID: "H2", DurationMs: d})
				h.create(t, CreateRequest{Kind: task.Mission("north"), SubjectID: "H3", DurationMs: d})
				return h
			}
			end := d + k

			stepped := setup()
			for now := int64(7_000); now < end; now += 7_000 {
				if _, err := stepped.e.Tick(context.Background(), now); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := stepped.e.Tick(context.Background(), end); err != nil {
				t.Fatal(err)
			}

			jumped := setup()
			if _, err := jumped.e.ReconcileOffline(context.Background(), end/1000, end); err != nil {
				t.Fatal(err)
			}

			a, b := stepped.e.View(), jumped.e.View()
			if !reflect.DeepEqual(a.Heroes, b.Heroes) {
				t.Fatalf("heroes differ:\nstep %+v\njump %+v", a.Heroes, b.Heroes)
			}
			if !reflect.DeepEqual(a.Resources, b.Resources) || a.Counters != b.Counters {
				t.Fatalf("state differs:\nstep %+v %+v\njump %+v %+v", a.Resources, a.Counters, b.Resources, b.Counters)
			}
			if len(a.Tasks) != 0 || len(b.Tasks) != 0 {
				t.Fatalf("tasks left: step=%d jump=%d", len(a.Tasks), len(b.Tasks))
			}
		})
	}
}

func TestBoundedCatchUpForProduction(t *testing.T) {
	t.Parallel()
	const interval = int64(60_000)
	for _, s := range []int64{59, 60, 61, 3600, 3*86_400 + 17} {
		s := s
		t.Run(time.Duration(s*int64(time.Second)).String(), func(t *testing.T) {
			t.Parallel()
			var completions, ticks atomic.Int64
			h := newHarness(t)
			h.e.reg = countingRegistry(&completions, &ticks)
			rec := h.create(t, CreateRequest{Kind: task.AutoProduction(village.Food), IntervalMs: interval})

			now := s * 1000
			rep, err := h.e.ReconcileOffline(context.Background(), s, now)
			if err != nil {
				t.Fatal(err)
			}
			want := s * 1000 / interval
			if ticks.Load() != want || rep.Ticks != want {
				t.Fatalf("ticks=%d report=%d want %d", ticks.Load(), rep.Ticks, want)
			}
			recs := h.e.Records()
			if len(recs) != 1 || recs[0].ID != rec.ID || recs[0].LastTickAt != want*interval {
				t.Fatalf("record after reconcile: %+v", recs)
			}
			// The driver must not replay what reconciliation applied.
			h.e.Tick(context.Background(), now)
			if ticks.Load() != want {
				t.Fatalf("driver replayed ticks: %d", ticks.Load())
			}
		})
	}
}

func TestReconcileCeiling(t *testing.T) {
	t.Parallel()
	var completions, ticks atomic.Int64
	h := newHarness(t)
	h.e.reg = countingRegistry(&completions, &ticks)
	h.create(t, CreateRequest{Kind: task.AutoProduction(village.Food), IntervalMs: 60_000})

	offline := int64(10 * 86_400)
	now := offline*1000 + 30_000
	rep, err := h.e.ReconcileOffline(context.Background(), offline, now)
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultMaxOffline.Milliseconds() / 60_000
	if !rep.Capped || rep.Ticks != want || ticks.Load() != want {
		t.Fatalf("report: %+v counted=%d want %d", rep, ticks.Load(), want)
	}
	h.e.Tick(context.Background(), now)
	if ticks.Load() != want {
		t.Fatalf("excess replayed by driver: %d", ticks.Load()-want)
	}
	if last := h.e.Records()[0].LastTickAt; last > now || now-last >= 60_000 {
		t.Fatalf("rebased LastTickAt=%d now=%d", last, now)
	}
}

func TestReconcileNoopAndSingleWrite(t *testing.T) {
	t.Parallel()
	h := newHarness(t, village.Hero{ID: "H1", Energy: 100}, village.Hero{ID: "H2", Energy: 100})
	h.create(t, CreateRequest{Kind: task.Gather(village.Food), SubjectID: "H1", DurationMs: 1000})
	h.create(t, CreateRequest{Kind: task.Work(), SubjectID: "H2", DurationMs: 1000})
	h.create(t, CreateRequest{Kind: task.AutoProduction(village.Food)})
	before := h.store.Writes()

	for _, s := range []int64{0, -5} {
		rep, err := h.e.ReconcileOffline(context.Background(), s, 10_000)
		if err != nil || rep.Ticks != 0 || len(rep.Completed) != 0 {
			t.Fatalf("offline=%d should be a no-op: %+v %v", s, rep, err)
		}
	}
	if h.store.Writes() != before || len(h.e.Records()) != 3 {
		t.Fatal("no-op reconcile mutated state")
	}

	rep, err := h.e.ReconcileOffline(context.Background(), 600, 600_000)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Completed) != 2 || rep.Ticks != 10 {
		t.Fatalf("report: %+v", rep)
	}
	if got := h.store.Writes() - before; got != 1 {
		t.Fatalf("reconcile wrote %d times", got)
	}
	if h.amount(village.Food) != 60 {
		t.Fatalf("food=%d want 50 gathered + 10 produced", h.amount(village.Food))
	}
}

func TestTwoProducersClampAtCap(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.e.mu.Lock()
	h.e.state.Resources.Add(village.Food, 490)
	h.e.mu.Unlock()
	h.create(t, CreateRequest{Kind: task.AutoProduction(village.Food)})
	h.create(t, CreateRequest{Kind: task.AutoProduction(village.Food), SubjectID: "farm"})

	if _, err := h.e.ReconcileOffline(context.Background(), 600, 600_000); err != nil {
		t.Fatal(err)
	}
	if got := h.amount(village.Food); got != 500 {
		t.Fatalf("food=%d want cap 500", got)
	}
}

func TestReconcileFaultKeepsAppliedTicks(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	var calls, ticks atomic.Int64
	h.reg.Register(task.TagAutoProduction, effects.Handler{
		OnInterval: func(_ *effects.Ctx, _ task.Record, n int64) error {
			if calls.Add(1) == 3 {
				return errors.New("granary jammed")
			}
			ticks.Add(n)
			return nil
		},
	})
	h.create(t, CreateRequest{Kind: task.AutoProduction(village.Food), IntervalMs: 60_000})

	ctx := context.Background()
	rep, err := h.e.ReconcileOffline(ctx, 300, 300_000)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Faults != 1 || rep.Ticks != 2 || ticks.Load() != 2 {
		t.Fatalf("report: %+v applied=%d", rep, ticks.Load())
	}
	if last := h.e.Records()[0].LastTickAt; last != 120_000 {
		t.Fatalf("LastTickAt=%d want 120000", last)
	}

	// The next pass delivers only the ticks that never landed.
	h.e.Tick(ctx, 300_000)
	if got := ticks.Load(); got != 5 {
		t.Fatalf("applied=%d want 5", got)
	}
}
