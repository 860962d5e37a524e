// Package clock supplies wall-clock timestamps to the engine.
//
// It is the only non-deterministic input: production code uses System,
// tests drive a Fake.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// NowMs returns c.Now() as unix milliseconds.
func NowMs(c Clock) int64 {
	if c == nil {
		return time.Now().UnixMilli()
	}
	return c.Now().UnixMilli()
}

type system struct{}

func (system) Now() time.Time { return time.Now() }

// System returns the process wall clock.
func System() Clock { return system{} }

// Fake is a manually advanced clock. Zero value starts at the unix epoch.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake positioned at t.
func NewFake(t time.Time) *Fake { return &Fake{now: t} }

// NewFakeMs returns a Fake positioned at unix millisecond ms.
func NewFakeMs(ms int64) *Fake { return &Fake{now: time.UnixMilli(ms)} }

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.now.IsZero() {
		return time.UnixMilli(0)
	}
	return f.now
}

// Advance moves the clock forward by d. Negative values are ignored so the
// clock stays non-decreasing.
func (f *Fake) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.now.IsZero() {
		f.now = time.UnixMilli(0)
	}
	if d > 0 {
		f.now = f.now.Add(d)
	}
	return f.now
}

// Set positions the clock at t. Moving backwards is allowed so tests can
// model clock skew.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}
