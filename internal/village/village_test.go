package village

import "testing"

func TestResourcesClampIsOrderIndependent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		start int
		cap   int
		a, b  int
	}{
		{name: "both fit", start: 0, cap: 100, a: 30, b: 40},
		{name: "second overflows", start: 50, cap: 100, a: 30, b: 40},
		{name: "first alone overflows", start: 90, cap: 100, a: 30, b: 5},
		{name: "already full", start: 100, cap: 100, a: 1, b: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			want := tt.start + tt.a + tt.b
			if want > tt.cap {
				want = tt.cap
			}
			for _, order := range [][2]int{{tt.a, tt.b}, {tt.b, tt.a}} {
				r := NewResources(map[string]int{Gold: tt.cap})
				r.Amounts[Gold] = tt.start
				applied := r.Add(Gold, order[0]) + r.Add(Gold, order[1])
				if got := r.Get(Gold); got != want {
					t.Fatalf("order %v: total = %d, want %d", order, got, want)
				}
				if applied != want-tt.start {
					t.Fatalf("order %v: applied = %d, want %d", order, applied, want-tt.start)
				}
			}
		})
	}
}

func TestResourcesSpendAllIsAtomic(t *testing.T) {
	t.Parallel()
	r := NewResources(nil)
	r.Add(Wood, 10)
	r.Add(Stone, 2)
	if r.SpendAll(map[string]int{Wood: 5, Stone: 3}) {
		t.Fatal("expected SpendAll to fail")
	}
	if r.Get(Wood) != 10 || r.Get(Stone) != 2 {
		t.Fatalf("partial spend happened: %+v", r.Amounts)
	}
	if !r.SpendAll(map[string]int{Wood: 5, Stone: 2}) {
		t.Fatal("expected SpendAll to succeed")
	}
	if r.Get(Wood) != 5 || r.Get(Stone) != 0 {
		t.Fatalf("unexpected totals: %+v", r.Amounts)
	}
}

func TestHeroEnergyClamp(t *testing.T) {
	t.Parallel()
	s := NewState()
	h := s.AddHero(Hero{ID: "H1", Energy: 95})
	if got := h.AddEnergy(10); got != 5 {
		t.Fatalf("applied = %d, want 5", got)
	}
	if h.Energy != DefaultMaxEnergy {
		t.Fatalf("Energy = %d", h.Energy)
	}
	if got := h.AddEnergy(-500); got != -100 || h.Energy != 0 {
		t.Fatalf("negative clamp: applied=%d energy=%d", got, h.Energy)
	}
}

func TestCountersRollDay(t *testing.T) {
	t.Parallel()
	c := Counters{DailyLimit: 3}
	day := int64(24 * 60 * 60 * 1000)
	if c.RollDay(10) {
		t.Fatal("first observation is not a rollover")
	}
	c.DailyDone = 2
	if c.RollDay(20) || c.DailyDone != 2 {
		t.Fatal("same day must not reset")
	}
	if !c.RollDay(day+1) || c.DailyDone != 0 {
		t.Fatalf("next day must reset, got %+v", c)
	}
}
