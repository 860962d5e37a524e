// Package engine drives the village's timed tasks: creation and
// cancellation, the periodic driver pass, the suspension gate, offline
// reconciliation, the consistency checker and snapshot persistence.
//
// Every exported method takes the engine lock for its whole duration, so
// operations never interleave. Effect handlers run under that lock.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"villagekeep/internal/clock"
	"villagekeep/internal/effects"
	"villagekeep/internal/eventbus"
	"villagekeep/internal/snapshot"
	"villagekeep/internal/storage"
	"villagekeep/internal/task"
	"villagekeep/internal/village"
	logx "villagekeep/pkg/logx"
)

const (
	DefaultKey        = "village.snapshot"
	DefaultMaxOffline = 7 * 24 * time.Hour
)

type Options struct {
	Clock    clock.Clock
	Store    storage.Store // nil disables persistence
	Key      string
	Registry *effects.Registry
	Catalog  *effects.Catalog
	Log      logx.Logger
	Bus      eventbus.Bus
	// MaxOffline caps the span Offline Reconciliation replays.
	MaxOffline time.Duration
	Compress   bool
	// FaultLogEvery limits fault log lines per record.
	FaultLogEvery time.Duration
}

type Engine struct {
	mu sync.Mutex

	clk        clock.Clock
	store      storage.Store
	key        string
	reg        *effects.Registry
	cat        *effects.Catalog
	log        logx.Logger
	bus        eventbus.Bus
	codec      snapshot.Codec
	maxOffline time.Duration
	faultEvery time.Duration

	state      *village.State
	tasks      *task.Store
	extensions map[string]json.RawMessage
	dirty      atomic.Bool
	saves      atomic.Uint64

	gate       gateState
	faultLimit map[string]*rate.Sometimes
}

func New(opt Options) *Engine {
	if opt.Clock == nil {
		opt.Clock = clock.System()
	}
	if strings.TrimSpace(opt.Key) == "" {
		opt.Key = DefaultKey
	}
	if opt.Registry == nil {
		opt.Registry = effects.Default()
	}
	if opt.Catalog == nil {
		opt.Catalog = effects.DefaultCatalog()
	}
	if opt.Log.IsZero() {
		opt.Log = logx.Nop()
	}
	if opt.MaxOffline <= 0 {
		opt.MaxOffline = DefaultMaxOffline
	}
	if opt.FaultLogEvery <= 0 {
		opt.FaultLogEvery = time.Minute
	}
	e := &Engine{
		clk:        opt.Clock,
		store:      opt.Store,
		key:        opt.Key,
		reg:        opt.Registry,
		cat:        opt.Catalog,
		log:        opt.Log,
		bus:        opt.Bus,
		codec:      snapshot.Codec{Compress: opt.Compress},
		maxOffline: opt.MaxOffline,
		faultEvery: opt.FaultLogEvery,
		state:      village.NewState(),
		faultLimit: map[string]*rate.Sometimes{},
	}
	e.tasks = task.NewStore(func() { e.dirty.Store(true) })
	return e
}

func (e *Engine) now() int64 { return clock.NowMs(e.clk) }

func (e *Engine) effectCtx(now int64) *effects.Ctx {
	return &effects.Ctx{State: e.state, Catalog: e.cat, Now: now}
}

// CreateRequest describes a task to start. Zero durations take the
// catalog values.
type CreateRequest struct {
	ID         string
	Kind       task.Kind
	SubjectID  string
	DurationMs int64
	IntervalMs int64
}

// CreateTask validates req against the exclusivity table, runs the kind's
// start handler and stores the record.
func (e *Engine) CreateTask(ctx context.Context, req CreateRequest) (task.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := req.Kind.Validate(); err != nil {
		return task.Record{}, err
	}
	if id := strings.TrimSpace(req.ID); id != "" {
		if _, ok := e.tasks.Get(id); ok {
			return task.Record{}, &task.DuplicateTaskError{ID: id}
		}
	}
	slots := task.Slots(req.Kind, strings.TrimSpace(req.SubjectID))
	if err := e.checkSlotsLocked(req.Kind, slots); err != nil {
		return task.Record{}, err
	}

	spec := e.cat.Spec(req.Kind.Tag)
	dur, every := req.DurationMs, req.IntervalMs
	if dur <= 0 && !req.Kind.Repeating() {
		dur = spec.Duration.Ms()
	}
	if every <= 0 {
		every = spec.Interval.Ms()
	}
	if dur <= 0 && !req.Kind.Repeating() {
		return task.Record{}, fmt.Errorf("task %s: duration required", req.Kind)
	}

	now := e.now()
	rec := task.New(req.ID, req.Kind, req.SubjectID, now, dur, every)
	if err := e.invoke(rec, "start", func() error { return e.reg.Start(e.effectCtx(now), &rec) }); err != nil {
		return task.Record{}, err
	}
	if err := e.tasks.Add(rec); err != nil {
		return task.Record{}, err
	}
	e.log.Debug("task created",
		logx.String("task", rec.ID),
		logx.String("kind", rec.Kind.String()),
		logx.String("subject", rec.SubjectID),
		logx.Int64("deadline_at", rec.DeadlineAt),
	)
	e.publish(eventbus.TaskCreated, notice(rec, now, nil))
	return rec, e.flushLocked(ctx)
}

func (e *Engine) checkSlotsLocked(k task.Kind, slots []task.Slot) error {
	var conflict []task.Slot
	var ids []string
	for _, r := range e.tasks.List() {
		if r.Completed {
			continue
		}
		if c := task.Conflicts(slots, r.Slots()); len(c) > 0 {
			conflict = append(conflict, c...)
			ids = append(ids, r.ID)
		}
	}
	if len(ids) > 0 {
		return &task.BusyError{Kind: k, Conflict: conflict, TaskIDs: ids}
	}
	return nil
}

// CancelTask runs the cancel handler (refunding what start charged) and
// removes the record. Cancelling an unknown id is a no-op.
func (e *Engine) CancelTask(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.tasks.Get(strings.TrimSpace(id))
	if !ok {
		return nil
	}
	now := e.now()
	if !rec.Completed {
		if err := e.invoke(rec, "cancel", func() error { return e.reg.Cancel(e.effectCtx(now), rec) }); err != nil {
			return err
		}
	}
	e.tasks.Remove(rec.ID)
	e.forgetFaults(rec.ID)
	e.log.Debug("task cancelled", logx.String("task", rec.ID), logx.String("kind", rec.Kind.String()))
	e.publish(eventbus.TaskCancelled, notice(rec, now, nil))
	return e.flushLocked(ctx)
}

// IsBusy reports whether any live record occupies entityID.
func (e *Engine) IsBusy(entityID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.tasks.BySubject(strings.TrimSpace(entityID)) {
		if !r.Completed {
			return true
		}
	}
	return false
}

// Records returns copies of the live task records in creation order.
func (e *Engine) Records() []task.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tasks.List()
}

// View returns a copy of the current state as a snapshot.
func (e *Engine) View() snapshot.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot.FromState(e.state, e.tasks.List(), e.now())
}

// Seed adds heroes and structures that do not exist yet.
func (e *Engine) Seed(ctx context.Context, heroes []village.Hero, structures []village.Structure) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, h := range heroes {
		if strings.TrimSpace(h.ID) == "" {
			continue
		}
		if _, ok := e.state.Hero(h.ID); !ok {
			e.state.AddHero(h)
			e.dirty.Store(true)
		}
	}
	for _, st := range structures {
		if strings.TrimSpace(st.ID) == "" {
			continue
		}
		if _, ok := e.state.Structure(st.ID); !ok {
			e.state.AddStructure(st)
			e.dirty.Store(true)
		}
	}
	return e.flushLocked(ctx)
}

// Saves reports how many snapshot writes succeeded.
func (e *Engine) Saves() uint64 { return e.saves.Load() }

// invoke runs a handler call with panic recovery. Failures come back as
// *EffectHandlerFault and are logged at most once per FaultLogEvery per
// record and phase.
func (e *Engine) invoke(r task.Record, phase string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &EffectHandlerFault{
				TaskID: r.ID, Kind: r.Kind.String(), Phase: phase,
				Panic: p, Stack: string(debug.Stack()),
			}
		}
		if err == nil {
			return
		}
		fault, ok := err.(*EffectHandlerFault)
		if !ok {
			if phase == "start" {
				// start handlers reject with ordinary validation errors
				return
			}
			fault = &EffectHandlerFault{TaskID: r.ID, Kind: r.Kind.String(), Phase: phase, Err: err}
			err = fault
		}
		e.reportFault(r, fault)
	}()
	return fn()
}

func (e *Engine) reportFault(r task.Record, f *EffectHandlerFault) {
	key := r.ID + "/" + f.Phase
	lim, ok := e.faultLimit[key]
	if !ok {
		lim = &rate.Sometimes{First: 1, Interval: e.faultEvery}
		e.faultLimit[key] = lim
	}
	lim.Do(func() {
		fields := []logx.Field{
			logx.String("task", f.TaskID),
			logx.String("kind", f.Kind),
			logx.String("phase", f.Phase),
		}
		if f.Panic != nil {
			fields = append(fields, logx.Any("panic", f.Panic), logx.Stack(f.Stack))
		} else {
			fields = append(fields, logx.Err(f.Err))
		}
		e.log.Error("effect handler fault", fields...)
	})
	e.publish(eventbus.TaskFault, notice(r, e.now(), f))
}

func (e *Engine) forgetFaults(id string) {
	for key := range e.faultLimit {
		if strings.HasPrefix(key, id+"/") {
			delete(e.faultLimit, key)
		}
	}
}

func (e *Engine) publish(typ string, data any) {
	eventbus.Publish(e.bus, typ, data)
}

func notice(r task.Record, at int64, err error) eventbus.TaskNotice {
	n := eventbus.TaskNotice{ID: r.ID, Kind: r.Kind.String(), SubjectID: r.SubjectID, At: at}
	if err != nil {
		n.Err = err.Error()
	}
	return n
}
