package task

import (
	"errors"
	"testing"
)

func TestStoreAddRejectsDuplicate(t *testing.T) {
	t.Parallel()
	s := NewStore(nil)
	r := New("t1", Rest(), "H1", 0, 1000, 0)
	if err := s.Add(r); err != nil {
		t.Fatalf("Add: %v", err)
	}
	err := s.Add(r)
	var dup *DuplicateTaskError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateTaskError, got %v", err)
	}
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected errors.Is(err, ErrDuplicate)")
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

func TestStoreRemoveIsIdempotent(t *testing.T) {
	t.Parallel()
	writes := 0
	s := NewStore(func() { writes++ })
	_ = s.Add(New("a", Work(), "H1", 0, 10, 0))
	if !s.Remove("a") {
		t.Fatal("first Remove should report removal")
	}
	if s.Remove("a") {
		t.Fatal("second Remove should be a no-op")
	}
	if writes != 2 {
		t.Fatalf("writes = %d, want 2 (add + one remove)", writes)
	}
}

func TestStoreListIsACopy(t *testing.T) {
	t.Parallel()
	s := NewStore(nil)
	r := New("a", Build("farm"), "", 0, 10, 0)
	r.Cost = Cost{Resources: map[string]int{"wood": 5}}
	_ = s.Add(r)

	view := s.List()
	view[0].DurationMs = 999
	view[0].Cost.Resources["wood"] = 0

	got, _ := s.Get("a")
	if got.DurationMs != 10 || got.Cost.Resources["wood"] != 5 {
		t.Fatalf("store mutated through List view: %+v", got)
	}
}

func TestStoreKeepsInsertionOrder(t *testing.T) {
	t.Parallel()
	s := NewStore(nil)
	for _, id := range []string{"c", "a", "b"} {
		_ = s.Add(New(id, Work(), id, 0, 10, 0))
	}
	s.Remove("a")
	_ = s.Add(New("d", Work(), "d", 0, 10, 0))
	var ids []string
	for _, r := range s.List() {
		ids = append(ids, r.ID)
	}
	want := []string{"c", "b", "d"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
	if r, ok := s.Get("d"); !ok || r.ID != "d" {
		t.Fatal("index not rebuilt after remove")
	}
}

func TestStoreBatchFiresOnce(t *testing.T) {
	t.Parallel()
	writes := 0
	s := NewStore(func() { writes++ })
	s.Batch(func() {
		_ = s.Add(New("a", Work(), "H1", 0, 10, 0))
		_ = s.Add(New("b", Work(), "H2", 0, 10, 0))
		s.Remove("a")
	})
	if writes != 1 {
		t.Fatalf("writes = %d, want 1", writes)
	}
	s.Batch(func() {})
	if writes != 1 {
		t.Fatalf("empty batch should not write, got %d", writes)
	}
}

func TestStoreRestoreDropsDuplicates(t *testing.T) {
	t.Parallel()
	s := NewStore(func() { t.Fatal("restore must not fire the hook") })
	s.Restore([]Record{
		New("a", Work(), "H1", 0, 10, 0),
		New("a", Rest(), "H1", 0, 10, 0),
		{ID: ""},
	})
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
	if r, _ := s.Get("a"); r.Kind.Tag != TagWork {
		t.Fatalf("first occurrence should win, got %s", r.Kind)
	}
}

func TestRecordTiming(t *testing.T) {
	t.Parallel()
	r := New("", Rest(), "H1", 1000, 600000, 60000)
	if r.ID == "" {
		t.Fatal("expected generated id")
	}
	if r.DeadlineAt != 601000 {
		t.Fatalf("DeadlineAt = %d", r.DeadlineAt)
	}
	if got := r.PendingTicks(1000 + 650000); got != 10 {
		t.Fatalf("PendingTicks bounded by deadline = %d, want 10", got)
	}
	r.Rebase(2000)
	if r.DeadlineAt != 602000 {
		t.Fatalf("Rebase did not recompute deadline: %d", r.DeadlineAt)
	}

	p := New("p", AutoProduction("food"), "", 0, 0, 1000)
	if !p.OpenEnded() || p.Due(1<<40) {
		t.Fatal("production without duration must be open-ended")
	}
	if got := p.PendingTicks(5500); got != 5 {
		t.Fatalf("PendingTicks = %d, want 5", got)
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want Kind
		ok   bool
	}{
		{raw: "rest", want: Rest(), ok: true},
		{raw: "gather:wood", want: Gather("wood"), ok: true},
		{raw: "UPGRADE:townhall", want: Upgrade("townhall"), ok: true},
		{raw: "daily_mission:d1", want: DailyMission("d1"), ok: true},
		{raw: "gather", ok: false},
		{raw: "gather:gold", ok: false},
		{raw: "gather:iron", ok: false},
		{raw: "auto_production:gold", want: AutoProduction("gold"), ok: true},
		{raw: "fly:away", ok: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseKind(tt.raw)
			if tt.ok != (err == nil) {
				t.Fatalf("ParseKind(%q) err = %v", tt.raw, err)
			}
			if tt.ok && got != tt.want {
				t.Fatalf("ParseKind(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
			if tt.ok && got.String() != tt.want.String() {
				t.Fatalf("String round trip: %q", got.String())
			}
		})
	}
}

func TestGatherResourceMustBeGatherable(t *testing.T) {
	t.Parallel()
	for _, res := range []string{"food", "wood", "stone"} {
		if err := Gather(res).Validate(); err != nil {
			t.Fatalf("gather %s: %v", res, err)
		}
	}
	for _, res := range []string{"gold", "mana", "Food", ""} {
		if err := Gather(res).Validate(); err == nil {
			t.Fatalf("gather %q accepted", res)
		}
	}
}

func TestSlotsCompatibility(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		a, b     Kind
		sa, sb   string
		conflict bool
	}{
		{name: "rest vs gather same hero", a: Rest(), b: Gather("food"), sa: "H1", sb: "H1", conflict: true},
		{name: "rest vs rest other hero", a: Rest(), b: Rest(), sa: "H1", sb: "H2", conflict: false},
		{name: "mission slot taken", a: Mission("m1"), b: Mission("m1"), sa: "H1", sb: "H2", conflict: true},
		{name: "mission vs daily same id", a: Mission("x"), b: DailyMission("x"), sa: "H1", sb: "H2", conflict: false},
		{name: "build vs upgrade same structure", a: Build("farm"), b: Upgrade("farm"), conflict: true},
		{name: "builder hero is busy", a: Build("farm"), b: Train(), sa: "H1", sb: "H1", conflict: true},
		{name: "production vs hero work", a: AutoProduction("gold"), b: Work(), sa: "H1", sb: "H1", conflict: false},
		{name: "two producers same resource", a: AutoProduction("gold"), b: AutoProduction("gold"), conflict: true},
		{name: "two producers different resource", a: AutoProduction("gold"), b: AutoProduction("food"), conflict: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := len(Conflicts(Slots(tt.a, tt.sa), Slots(tt.b, tt.sb))) > 0
			if got != tt.conflict {
				t.Fatalf("conflict = %v, want %v", got, tt.conflict)
			}
		})
	}
}
