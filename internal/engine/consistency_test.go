package engine

import (
	"context"
	"testing"

	"villagekeep/internal/eventbus"
	"villagekeep/internal/task"
	"villagekeep/internal/village"
)

func TestConsistencyRepairsOrphanedStatus(t *testing.T) {
	t.Parallel()
	h := newHarness(t,
		village.Hero{ID: "H1", Energy: 100},
		village.Hero{ID: "H2", Energy: 100, Status: village.StatusWorking, ActiveKind: "work", RemainingMs: 5000},
	)
	h.create(t, CreateRequest{Kind: task.Gather(village.Food), SubjectID: "H1"})
	h.e.mu.Lock()
	h.e.state.Structures["farm"].Status = village.StatusUpgrading
	h.e.mu.Unlock()
	ch, unsub := h.bus.Subscribe(8)
	defer unsub()

	// The driver never repairs entity fields.
	h.e.Tick(context.Background(), 1000)
	if h.hero(t, "H2").Status != village.StatusWorking {
		t.Fatal("status repaired before the checker ran")
	}

	repaired, err := h.e.CheckConsistency(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(repaired) != 2 || repaired[0] != "H2" || repaired[1] != "farm" {
		t.Fatalf("repaired=%v", repaired)
	}
	if got := h.hero(t, "H2"); got.Status != village.StatusIdle || got.RemainingMs != 0 || got.ActiveKind != "" {
		t.Fatalf("H2 not reset: %+v", got)
	}
	if h.hero(t, "H1").Status != village.StatusGathering {
		t.Fatal("hero with a live record was touched")
	}

	var seen bool
	for len(ch) > 0 {
		if ev := <-ch; ev.Type == eventbus.ConsistencyRepaired {
			seen = len(ev.Data.(eventbus.RepairNotice).EntityIDs) == 2
		}
	}
	if !seen {
		t.Fatal("consistency.repaired not published")
	}

	again, err := h.e.CheckConsistency(context.Background())
	if err != nil || len(again) != 0 {
		t.Fatalf("second pass repaired %v (%v)", again, err)
	}
}
