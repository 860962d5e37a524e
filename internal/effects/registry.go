// Package effects maps every task kind to its effect handlers.
//
// Handlers are the only code that mutates resource totals and entity
// activity fields. Expected game conditions (a resource at cap, a hero that
// no longer exists at completion) are clamped or ignored; only start
// validation returns errors to the caller.
package effects

import (
	"fmt"
	"sync"

	"villagekeep/internal/task"
	"villagekeep/internal/village"
)

// Ctx is what a handler may touch.
type Ctx struct {
	State   *village.State
	Catalog *Catalog
	Now     int64
}

// Handler is the dispatch entry for one kind. OnStart and OnCancel are
// paired: OnStart records what it charged in r.Cost and OnCancel refunds
// exactly that.
type Handler struct {
	OnStart      func(c *Ctx, r *task.Record) error
	OnInterval   func(c *Ctx, r task.Record, ticks int64) error
	OnCompletion func(c *Ctx, r task.Record) error
	OnCancel     func(c *Ctx, r task.Record) error
}

// Registry is the kind -> Handler dispatch table.
type Registry struct {
	mu       sync.RWMutex
	handlers map[task.Tag]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[task.Tag]Handler{}}
}

// Register installs h for tag, replacing any previous entry.
func (r *Registry) Register(tag task.Tag, h Handler) {
	r.mu.Lock()
	r.handlers[tag] = h
	r.mu.Unlock()
}

func (r *Registry) Lookup(tag task.Tag) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[tag]
	return h, ok
}

// Start runs the kind's start handler.
func (r *Registry) Start(c *Ctx, rec *task.Record) error {
	h, ok := r.Lookup(rec.Kind.Tag)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, rec.Kind.Tag)
	}
	if h.OnStart == nil {
		return nil
	}
	return h.OnStart(c, rec)
}

// Interval runs the kind's interval handler for ticks whole intervals.
func (r *Registry) Interval(c *Ctx, rec task.Record, ticks int64) error {
	if ticks <= 0 {
		return nil
	}
	h, ok := r.Lookup(rec.Kind.Tag)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, rec.Kind.Tag)
	}
	if h.OnInterval == nil {
		return nil
	}
	return h.OnInterval(c, rec, ticks)
}

func (r *Registry) Complete(c *Ctx, rec task.Record) error {
	h, ok := r.Lookup(rec.Kind.Tag)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, rec.Kind.Tag)
	}
	if h.OnCompletion == nil {
		return nil
	}
	return h.OnCompletion(c, rec)
}

func (r *Registry) Cancel(c *Ctx, rec task.Record) error {
	h, ok := r.Lookup(rec.Kind.Tag)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, rec.Kind.Tag)
	}
	if h.OnCancel == nil {
		return nil
	}
	return h.OnCancel(c, rec)
}

// Default returns a registry with the handlers for every built-in kind.
func Default() *Registry {
	r := NewRegistry()
	r.Register(task.TagRest, restHandler())
	r.Register(task.TagGather, heroJob(village.StatusGathering, gatherReward))
	r.Register(task.TagWork, heroJob(village.StatusWorking, yieldReward))
	r.Register(task.TagTrain, heroJob(village.StatusTraining, trainReward))
	r.Register(task.TagMission, heroJob(village.StatusOnMission, missionReward))
	r.Register(task.TagDailyMission, dailyMissionHandler())
	r.Register(task.TagBuild, buildHandler())
	r.Register(task.TagUpgrade, upgradeHandler())
	r.Register(task.TagAutoProduction, productionHandler())
	return r
}
