// Package village is the entity model the effect handlers mutate: heroes,
// structures, capped resource totals and auxiliary counters.
//
// Activity fields on heroes and structures (Status, ActiveKind, RemainingMs,
// RestRecovered) are a display cache of the live task record; the task store
// stays the source of truth for timing.
package village

import (
	"sort"
	"time"
)

// Status is the coarse activity tag shown for an entity.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusResting      Status = "resting"
	StatusGathering    Status = "gathering"
	StatusWorking      Status = "working"
	StatusTraining     Status = "training"
	StatusBuilding     Status = "building"
	StatusOnMission    Status = "on_mission"
	StatusConstructing Status = "constructing"
	StatusUpgrading    Status = "upgrading"
)

// Busy reports whether s indicates an in-progress task.
func (s Status) Busy() bool { return s != "" && s != StatusIdle }

type Hero struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Energy        int    `json:"energy"`
	MaxEnergy     int    `json:"max_energy"`
	XP            int    `json:"xp"`
	Level         int    `json:"level"`
	Status        Status `json:"status"`
	ActiveKind    string `json:"active_kind,omitempty"`
	RemainingMs   int64  `json:"remaining_ms,omitempty"`
	RestRecovered int    `json:"rest_recovered,omitempty"`
}

// SetIdle clears every activity field.
func (h *Hero) SetIdle() {
	h.Status = StatusIdle
	h.ActiveKind = ""
	h.RemainingMs = 0
	h.RestRecovered = 0
}

// AddEnergy adds n clamped to [0, MaxEnergy] and returns the applied delta.
func (h *Hero) AddEnergy(n int) int {
	before := h.Energy
	h.Energy = clamp(h.Energy+n, 0, h.MaxEnergy)
	return h.Energy - before
}

type Structure struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Level       int    `json:"level"`
	Built       bool   `json:"built"`
	Status      Status `json:"status"`
	RemainingMs int64  `json:"remaining_ms,omitempty"`
}

func (s *Structure) SetIdle() {
	s.Status = StatusIdle
	s.RemainingMs = 0
}

// Counters are auxiliary trackers persisted with the snapshot.
type Counters struct {
	DailyLimit        int    `json:"daily_limit"`
	DailyDone         int    `json:"daily_done"`
	LastProcessedDay  string `json:"last_processed_day,omitempty"`
	MissionsCompleted int    `json:"missions_completed"`
	LastActiveAt      int64  `json:"last_active_at,omitempty"`
}

// DayKey formats the UTC calendar day of ms, used for daily rollover.
func DayKey(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02")
}

// RollDay resets daily counters when ms falls on a new day. It reports
// whether a rollover happened.
func (c *Counters) RollDay(ms int64) bool {
	day := DayKey(ms)
	if c.LastProcessedDay == day {
		return false
	}
	rolled := c.LastProcessedDay != ""
	c.LastProcessedDay = day
	c.DailyDone = 0
	return rolled
}

// State is the full mutable entity model.
type State struct {
	Heroes     map[string]*Hero      `json:"heroes"`
	Structures map[string]*Structure `json:"structures"`
	Resources  *Resources            `json:"resources"`
	Counters   Counters              `json:"counters"`
}

// NewState returns an empty state with default counters.
func NewState() *State {
	return &State{
		Heroes:     map[string]*Hero{},
		Structures: map[string]*Structure{},
		Resources:  NewResources(nil),
		Counters:   Counters{DailyLimit: DefaultDailyLimit},
	}
}

const (
	DefaultDailyLimit = 3
	DefaultMaxEnergy  = 100
)

func (s *State) Hero(id string) (*Hero, bool) {
	h, ok := s.Heroes[id]
	return h, ok && h != nil
}

func (s *State) Structure(id string) (*Structure, bool) {
	st, ok := s.Structures[id]
	return st, ok && st != nil
}

// AddHero registers h, filling defaults for zero fields.
func (s *State) AddHero(h Hero) *Hero {
	if h.MaxEnergy <= 0 {
		h.MaxEnergy = DefaultMaxEnergy
	}
	if h.Level <= 0 {
		h.Level = 1
	}
	if h.Status == "" {
		h.Status = StatusIdle
	}
	cp := h
	s.Heroes[h.ID] = &cp
	return &cp
}

func (s *State) AddStructure(st Structure) *Structure {
	if st.Status == "" {
		st.Status = StatusIdle
	}
	if st.Built && st.Level <= 0 {
		st.Level = 1
	}
	cp := st
	s.Structures[st.ID] = &cp
	return &cp
}

// HeroIDs returns hero ids sorted for deterministic iteration.
func (s *State) HeroIDs() []string { return sortedKeys(s.Heroes) }

func (s *State) StructureIDs() []string { return sortedKeys(s.Structures) }

// HeroList returns copies of all heroes sorted by id.
func (s *State) HeroList() []Hero {
	out := make([]Hero, 0, len(s.Heroes))
	for _, id := range s.HeroIDs() {
		out = append(out, *s.Heroes[id])
	}
	return out
}

func (s *State) StructureList() []Structure {
	out := make([]Structure, 0, len(s.Structures))
	for _, id := range s.StructureIDs() {
		out = append(out, *s.Structures[id])
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}
