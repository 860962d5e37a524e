package cadence

import (
	"hash/fnv"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// spreadSchedule delays the first run of an interval job by a jitter, then
// follows the base schedule.
type spreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *spreadSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

var spreadSeq uint64

func spreadInterval(every time.Duration, now time.Time, tag string) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	window := every
	if window > maxStartupSpread {
		window = maxStartupSpread
	}
	if window <= 0 {
		return base, 0
	}
	seed := time.Now().UnixNano() ^ int64(atomic.AddUint64(&spreadSeq, 1)) ^ int64(fnv64a(tag))
	jitter := time.Duration(rand.New(rand.NewSource(seed)).Int63n(int64(window)))
	return &spreadSchedule{base: base, first: now.Add(every + jitter)}, jitter
}

func fnv64a(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
