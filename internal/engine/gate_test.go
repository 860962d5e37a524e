package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"villagekeep/internal/task"
	"villagekeep/internal/village"
)

func TestPausedDriverDoesNothing(t *testing.T) {
	t.Parallel()
	h := newHarness(t, village.Hero{ID: "H1", Energy: 100})
	h.create(t, CreateRequest{Kind: task.Gather(village.Food), SubjectID: "H1", DurationMs: 1000})
	h.e.Pause()
	writes := h.store.Writes()

	rep, err := h.e.Tick(context.Background(), 5000)
	if err != nil || !rep.Skipped {
		t.Fatalf("paused tick: %+v %v", rep, err)
	}
	if len(h.e.Records()) != 1 || h.store.Writes() != writes {
		t.Fatal("paused tick mutated state")
	}

	h.clk.Set(time.UnixMilli(5000))
	if err := h.e.Resume(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Deadlines are absolute: the gather matured while the gate was held.
	rep, _ = h.e.Tick(context.Background(), 5000)
	if len(rep.Completed) != 1 {
		t.Fatalf("after resume: %+v", rep)
	}
}

func TestResumeSkipsProductionDuringPause(t *testing.T) {
	t.Parallel()
	var completions, ticks atomic.Int64
	h := newHarness(t)
	h.e.reg = countingRegistry(&completions, &ticks)
	h.create(t, CreateRequest{Kind: task.AutoProduction(village.Food)})

	ctx := context.Background()
	h.clk.Set(time.UnixMilli(90_000))
	h.e.Tick(ctx, 90_000) // one tick, 30s carried
	h.e.Pause()
	h.clk.Set(time.UnixMilli(690_000))
	if err := h.e.Resume(ctx); err != nil {
		t.Fatal(err)
	}
	h.e.Tick(ctx, 690_000)
	if got := ticks.Load(); got != 1 {
		t.Fatalf("paused span produced ticks: %d", got)
	}
	h.e.Tick(ctx, 720_000)
	if got := ticks.Load(); got != 2 {
		t.Fatalf("carried partial interval lost: ticks=%d", got)
	}
}

func TestPauseForResumesAutomatically(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.e.PauseFor(20 * time.Millisecond)
	if !h.e.Held() {
		t.Fatal("gate should be held")
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.e.Held() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.e.Held() {
		t.Fatal("gate never released")
	}
}

func TestPauseSupersedesPauseFor(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.e.PauseFor(10 * time.Millisecond)
	h.e.Pause()
	time.Sleep(60 * time.Millisecond)
	if !h.e.Held() {
		t.Fatal("explicit Pause must cancel the pending auto-resume")
	}
	if err := h.e.Resume(context.Background()); err != nil || h.e.Held() {
		t.Fatalf("resume: %v", err)
	}
}

func TestExclusiveFlagSuppressesDriver(t *testing.T) {
	t.Parallel()
	h := newHarness(t, village.Hero{ID: "H1", Energy: 100})
	h.create(t, CreateRequest{Kind: task.Work(), SubjectID: "H1", DurationMs: 10})
	h.e.SetExclusive(true)
	if rep, _ := h.e.Tick(context.Background(), 100); !rep.Skipped {
		t.Fatal("exclusive flag ignored")
	}
	h.e.SetExclusive(false)
	if rep, _ := h.e.Tick(context.Background(), 100); len(rep.Completed) != 1 {
		t.Fatalf("after clearing exclusive: %+v", rep)
	}
}

func TestResumeSurvivesRestartWithoutReplay(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.create(t, CreateRequest{Kind: task.AutoProduction(village.Food)})

	ctx := context.Background()
	h.clk.Set(time.UnixMilli(60_000))
	h.e.Tick(ctx, 60_000)
	h.e.Pause()
	h.clk.Set(time.UnixMilli(3_660_000))
	if err := h.e.Resume(ctx); err != nil {
		t.Fatal(err)
	}

	// The process dies before another pass; a new engine restores the save.
	var completions, ticks atomic.Int64
	now := int64(3_720_000)
	h.clk.Set(time.UnixMilli(now))
	e2 := New(Options{Clock: h.clk, Store: h.store, Registry: countingRegistry(&completions, &ticks)})
	snap, err := e2.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	offline := (now - snap.Counters.LastActiveAt) / 1000
	if offline != 60 {
		t.Fatalf("offline=%ds want 60 (LastActiveAt=%d)", offline, snap.Counters.LastActiveAt)
	}
	rep, err := e2.ReconcileOffline(ctx, offline, now)
	if err != nil {
		t.Fatal(err)
	}
	e2.Tick(ctx, now)
	if rep.Ticks != 1 || ticks.Load() != 1 {
		t.Fatalf("paused span replayed: report=%+v applied=%d", rep, ticks.Load())
	}
}
