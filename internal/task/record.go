package task

import (
	"strings"

	"github.com/google/uuid"
)

// Cost is what a task's start handler charged. Cancellation refunds exactly
// this, once.
type Cost struct {
	Energy    int            `json:"energy,omitempty"`
	Resources map[string]int `json:"resources,omitempty"`
}

// IsZero reports whether nothing was charged.
func (c Cost) IsZero() bool {
	if c.Energy != 0 {
		return false
	}
	for _, n := range c.Resources {
		if n != 0 {
			return false
		}
	}
	return true
}

// Record is the unit of scheduled work. All timestamps are unix milliseconds.
type Record struct {
	ID         string `json:"id"`
	Kind       Kind   `json:"kind"`
	SubjectID  string `json:"subject_id,omitempty"`
	StartedAt  int64  `json:"started_at"`
	DurationMs int64  `json:"duration_ms"`
	DeadlineAt int64  `json:"deadline_at"`
	IntervalMs int64  `json:"interval_ms,omitempty"`
	LastTickAt int64  `json:"last_tick_at,omitempty"`
	Completed  bool   `json:"completed"`
	Cost       Cost   `json:"cost,omitempty"`
}

// NewID returns a fresh record id.
func NewID() string { return uuid.NewString() }

// New builds a record started at startedAt. An empty id gets a fresh uuid.
func New(id string, k Kind, subjectID string, startedAt, durationMs, intervalMs int64) Record {
	id = strings.TrimSpace(id)
	if id == "" {
		id = NewID()
	}
	r := Record{
		ID:         id,
		Kind:       k,
		SubjectID:  strings.TrimSpace(subjectID),
		StartedAt:  startedAt,
		DurationMs: durationMs,
		IntervalMs: intervalMs,
	}
	if intervalMs > 0 {
		r.LastTickAt = startedAt
	}
	r.DeadlineAt = r.deadline()
	return r
}

func (r Record) deadline() int64 {
	if r.OpenEnded() {
		return 0
	}
	return r.StartedAt + r.DurationMs
}

// OpenEnded reports whether the record never completes (production without a
// duration).
func (r Record) OpenEnded() bool { return r.DurationMs <= 0 && r.Kind.Repeating() }

// Normalize recomputes DeadlineAt from StartedAt+DurationMs and seeds
// LastTickAt for interval records that lack one.
func (r *Record) Normalize() {
	r.DeadlineAt = r.deadline()
	if r.IntervalMs > 0 && r.LastTickAt == 0 {
		r.LastTickAt = r.StartedAt
	}
}

// Rebase moves StartedAt and keeps the deadline derivable from it.
func (r *Record) Rebase(startedAt int64) {
	r.StartedAt = startedAt
	r.DeadlineAt = r.deadline()
}

// Due reports whether the record has reached its deadline at now.
func (r Record) Due(now int64) bool {
	if r.OpenEnded() {
		return false
	}
	return now-r.StartedAt >= r.DurationMs
}

// RemainingMs is the time left until the deadline (0 when due or open-ended).
func (r Record) RemainingMs(now int64) int64 {
	if r.OpenEnded() {
		return 0
	}
	left := r.DeadlineAt - now
	if left < 0 {
		return 0
	}
	return left
}

// PendingTicks returns how many whole intervals elapsed since LastTickAt,
// bounded by the deadline so a task never earns ticks past its completion.
func (r Record) PendingTicks(now int64) int64 {
	if r.IntervalMs <= 0 {
		return 0
	}
	until := now
	if !r.OpenEnded() && r.DeadlineAt < until {
		until = r.DeadlineAt
	}
	if until <= r.LastTickAt {
		return 0
	}
	return (until - r.LastTickAt) / r.IntervalMs
}

// Slots returns the exclusivity slots the record occupies.
func (r Record) Slots() []Slot { return Slots(r.Kind, r.SubjectID) }

func (r Record) clone() Record {
	cp := r
	if r.Cost.Resources != nil {
		cp.Cost.Resources = make(map[string]int, len(r.Cost.Resources))
		for k, v := range r.Cost.Resources {
			cp.Cost.Resources[k] = v
		}
	}
	return cp
}
