package effects

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"villagekeep/internal/task"
	"villagekeep/internal/village"
)

func newCtx(now int64) *Ctx {
	st := village.NewState()
	st.AddHero(village.Hero{ID: "H1", Energy: 100})
	return &Ctx{State: st, Catalog: DefaultCatalog(), Now: now}
}

func TestDefaultCatalogCoversEveryKind(t *testing.T) {
	t.Parallel()
	c := DefaultCatalog()
	for _, tag := range task.Tags {
		if _, ok := c.Kinds[tag]; !ok {
			t.Fatalf("catalog missing %s", tag)
		}
	}
	if got := time.Duration(c.Spec(task.TagRest).Interval); got != time.Minute {
		t.Fatalf("rest interval = %v", got)
	}
	reg := Default()
	for _, tag := range task.Tags {
		if _, ok := reg.Lookup(tag); !ok {
			t.Fatalf("registry missing %s", tag)
		}
	}
}

func TestParseCatalogRejectsUnknownKind(t *testing.T) {
	t.Parallel()
	_, err := ParseCatalog([]byte("kinds:\n  teleport:\n    duration: 1m\n"))
	if !errors.Is(err, task.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if _, err := ParseCatalog([]byte("kinds:\n  rest:\n    duration: soon\n")); err == nil {
		t.Fatal("expected invalid duration error")
	}
}

func TestLoadCatalogFillsMissingKinds(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte("kinds:\n  work:\n    duration: 5m\n    yield: {gold: 7}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if c.Spec(task.TagWork).Yield[village.Gold] != 7 {
		t.Fatalf("override lost: %+v", c.Spec(task.TagWork))
	}
	if c.Spec(task.TagRest).EnergyPerTick != 10 || c.XPPerLevel != 100 {
		t.Fatal("defaults not merged")
	}
}

func TestGatherStartCancelIsPaired(t *testing.T) {
	t.Parallel()
	c := newCtx(0)
	reg := Default()
	r := task.New("g", task.Gather(village.Wood), "H1", 0, 1000, 0)
	if err := reg.Start(c, &r); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h, _ := c.State.Hero("H1")
	if h.Energy != 80 || r.Cost.Energy != 20 || h.Status != village.StatusGathering {
		t.Fatalf("start effects wrong: hero=%+v cost=%+v", h, r.Cost)
	}
	if err := reg.Cancel(c, r); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if h.Energy != 100 || h.Status != village.StatusIdle {
		t.Fatalf("cancel did not roll back: %+v", h)
	}
}

func TestHeroJobRejectsLowEnergy(t *testing.T) {
	t.Parallel()
	c := newCtx(0)
	h, _ := c.State.Hero("H1")
	h.Energy = 5
	r := task.New("m", task.Mission("m1"), "H1", 0, 1000, 0)
	err := Default().Start(c, &r)
	if !errors.Is(err, ErrInsufficient) {
		t.Fatalf("expected ErrInsufficient, got %v", err)
	}
	if h.Energy != 5 || h.Status != village.StatusIdle {
		t.Fatalf("failed start mutated hero: %+v", h)
	}
}

func TestMissionCompletionRewards(t *testing.T) {
	t.Parallel()
	c := newCtx(0)
	reg := Default()
	r := task.New("m", task.Mission("m1"), "H1", 0, 1000, 0)
	if err := reg.Start(c, &r); err != nil {
		t.Fatal(err)
	}
	if err := reg.Complete(c, r); err != nil {
		t.Fatal(err)
	}
	h, _ := c.State.Hero("H1")
	if h.XP != 80 || h.Status != village.StatusIdle {
		t.Fatalf("hero after mission: %+v", h)
	}
	if c.State.Resources.Get(village.Gold) != 150 || c.State.Counters.MissionsCompleted != 1 {
		t.Fatalf("rewards: gold=%d missions=%d", c.State.Resources.Get(village.Gold), c.State.Counters.MissionsCompleted)
	}
}

func TestDailyMissionLimit(t *testing.T) {
	t.Parallel()
	c := newCtx(1000)
	c.State.Counters.DailyLimit = 1
	reg := Default()
	first := task.New("d1", task.DailyMission("a"), "H1", 1000, 1000, 0)
	if err := reg.Start(c, &first); err != nil {
		t.Fatal(err)
	}
	c.State.AddHero(village.Hero{ID: "H2", Energy: 100})
	second := task.New("d2", task.DailyMission("b"), "H2", 1000, 1000, 0)
	if err := reg.Start(c, &second); !errors.Is(err, ErrDailyLimit) {
		t.Fatalf("expected ErrDailyLimit, got %v", err)
	}
	if err := reg.Cancel(c, first); err != nil {
		t.Fatal(err)
	}
	if err := reg.Start(c, &second); err != nil {
		t.Fatalf("cancel should free the daily slot: %v", err)
	}
}

func TestBuildAndUpgrade(t *testing.T) {
	t.Parallel()
	c := newCtx(0)
	reg := Default()
	res := c.State.Resources
	res.Add(village.Wood, 400)
	res.Add(village.Stone, 300)
	res.Add(village.Gold, 200)

	b := task.New("b", task.Build("farm"), "H1", 0, 1000, 0)
	if err := reg.Start(c, &b); err != nil {
		t.Fatalf("build start: %v", err)
	}
	st, _ := c.State.Structure("farm")
	if st.Status != village.StatusConstructing || res.Get(village.Wood) != 300 {
		t.Fatalf("after build start: %+v wood=%d", st, res.Get(village.Wood))
	}
	if err := reg.Complete(c, b); err != nil {
		t.Fatal(err)
	}
	if !st.Built || st.Level != 1 || st.Status != village.StatusIdle {
		t.Fatalf("after build: %+v", st)
	}
	again := task.New("b2", task.Build("farm"), "", 0, 1000, 0)
	if err := reg.Start(c, &again); !errors.Is(err, ErrAlreadyBuilt) {
		t.Fatalf("expected ErrAlreadyBuilt, got %v", err)
	}

	u := task.New("u", task.Upgrade("farm"), "", 0, 1000, 0)
	if err := reg.Start(c, &u); err != nil {
		t.Fatalf("upgrade start: %v", err)
	}
	if u.Cost.Resources[village.Gold] != 100 {
		t.Fatalf("upgrade cost: %+v", u.Cost)
	}
	if err := reg.Cancel(c, u); err != nil {
		t.Fatal(err)
	}
	if res.Get(village.Wood) != 300 || res.Get(village.Gold) != 200 || st.Status != village.StatusIdle {
		t.Fatalf("upgrade cancel not refunded: %+v %+v", res.Amounts, st)
	}
}

func TestProductionClampsAtCap(t *testing.T) {
	t.Parallel()
	c := newCtx(0)
	c.State.Resources.Caps[village.Food] = 5
	r := task.New("p", task.AutoProduction(village.Food), "", 0, 0, 1000)
	if err := Default().Interval(c, r, 100); err != nil {
		t.Fatal(err)
	}
	if got := c.State.Resources.Get(village.Food); got != 5 {
		t.Fatalf("food = %d, want cap 5", got)
	}
}
