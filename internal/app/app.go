package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"villagekeep/internal/cadence"
	"villagekeep/internal/clock"
	"villagekeep/internal/config"
	"villagekeep/internal/effects"
	"villagekeep/internal/engine"
	"villagekeep/internal/eventbus"
	"villagekeep/internal/runtime/supervisor"
	"villagekeep/internal/storage"
	logx "villagekeep/pkg/logx"
)

// App is the daemon: it owns the engine, drives it from cadence jobs and
// persists it across restarts.
type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log    logx.Logger
	logs   *logx.Service
	bus    eventbus.Bus
	store  storage.Store
	clk    clock.Clock
	notify Notifier

	eng *engine.Engine
	cad *cadence.Service

	mu        sync.Mutex
	schedules cadenceSettings

	// lastDrive is the unix ms of the previous driver invocation.
	lastDrive atomic.Int64
	// started is set once the village was loaded and caught up; only then
	// may Stop overwrite the stored snapshot.
	started  atomic.Bool
	stopOnce sync.Once
}

type Option func(*App)

// WithClock replaces the wall clock used by the engine and the driver job.
func WithClock(c clock.Clock) Option { return func(a *App) { a.clk = c } }

// WithNotifier replaces the systemd notifier.
func WithNotifier(n Notifier) Option { return func(a *App) { a.notify = n } }

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	a := &App{cfgPath: cfgPath, cfgm: cfgm, clk: clock.System()}
	for _, o := range opts {
		o(a)
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	a.logs = logSvc
	a.log = log.With(logx.String("comp", "app"))
	if a.notify == nil {
		a.notify = systemdNotifier{log: log.With(logx.String("comp", "systemd"))}
	}
	a.bus = eventbus.New()

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		sc.Clock = a.clk
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		a.store = st
		a.log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		a.closeStore()
		return nil, err
	}
	maxOffline, err := config.ParseDurationOrDefault("reconcile.max_offline", cfg.Reconcile.MaxOffline, engine.DefaultMaxOffline)
	if err != nil {
		a.closeStore()
		return nil, err
	}
	a.schedules, _ = mapCadence(cfg)

	compress := cfg.Storage != nil && cfg.Storage.Compress
	a.eng = engine.New(engine.Options{
		Clock:      a.clk,
		Store:      a.store,
		Key:        storageKey(cfg),
		Registry:   effects.Default(),
		Catalog:    cat,
		Log:        log.With(logx.String("comp", "engine")),
		Bus:        a.bus,
		MaxOffline: maxOffline,
		Compress:   compress,
	})
	a.cad = cadence.New(a.schedules.cfg, log.With(logx.String("comp", "cadence")))
	return a, nil
}

// Engine exposes the running engine for embedding callers and tests.
func (a *App) Engine() *engine.Engine { return a.eng }

// Done is closed when the app supervisor context is cancelled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start restores the village, replays the time the process was down, and
// starts the periodic jobs.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	cfg := a.cfgm.Get()

	res, err := a.eng.LoadOrFresh(ctx)
	if err != nil {
		return fmt.Errorf("load village: %w", err)
	}
	switch {
	case res.Corrupt:
		a.log.Warn("previous save unreadable; started fresh", logx.String("reason", res.Reason))
	case res.Fresh:
		a.log.Info("no saved village; starting fresh")
	}

	heroes, structures := seedEntities(cfg)
	if err := a.eng.Seed(ctx, heroes, structures); err != nil {
		return fmt.Errorf("seed village: %w", err)
	}

	now := clock.NowMs(a.clk)
	if !res.Fresh && res.LastActiveAt > 0 {
		if err := a.catchUp(ctx, now-res.LastActiveAt, now); err != nil {
			return err
		}
	}
	if _, err := a.eng.CheckConsistency(ctx); err != nil {
		return fmt.Errorf("consistency check: %w", err)
	}
	if _, err := a.eng.Tick(ctx, now); err != nil {
		return err
	}
	a.lastDrive.Store(now)

	if err := a.registerJobs(); err != nil {
		return err
	}
	a.cad.Start(a.sup.Context())

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error { return validate(c) })

	a.startEventLog()
	a.startReload()
	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.startWatchdog()

	a.started.Store(true)
	a.notify.Notify(notifyReady)
	a.log.Info("app started",
		logx.Bool("fresh", res.Fresh),
		logx.Int("tasks", len(a.eng.Records())),
		logx.Bool("driver", a.cad.Enabled()),
	)
	return nil
}

// catchUp hands an offline span of gapMs to reconciliation.
func (a *App) catchUp(ctx context.Context, gapMs, now int64) error {
	secs := gapMs / 1000
	if secs <= 0 {
		return nil
	}
	rep, err := a.eng.ReconcileOffline(ctx, secs, now)
	if err != nil {
		return fmt.Errorf("reconcile offline: %w", err)
	}
	a.log.Info("caught up offline time",
		logx.Int64("offline_s", secs),
		logx.Int64("ticks", rep.Ticks),
		logx.Int("completed", len(rep.Completed)),
		logx.Bool("capped", rep.Capped),
	)
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeStore()
		return nil
	}
	var out error
	a.stopOnce.Do(func() {
		a.notify.Notify(notifyStopping)
		a.log.Info("stopping", logx.String("reason", string(reason)))

		a.cad.Stop(ctx)
		if err := a.sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("supervised goroutine failed", logx.Err(err))
		}

		if a.started.Load() {
			// Bring every record current so the stored LastActiveAt is the stop time.
			if _, err := a.eng.TickNow(ctx); err != nil {
				out = errors.Join(out, err)
			}
			if _, err := a.eng.Save(ctx); err != nil {
				a.log.Error("final save failed", logx.Err(err))
				out = errors.Join(out, err)
			}
		}
		a.closeStore()

		a.log.Info("stopped", logx.Uint64("saves", a.eng.Saves()), logx.Uint64("events_dropped", a.bus.Dropped()))
		if a.logs != nil {
			if n := a.logs.Dropped(); n > 0 {
				a.log.Warn("log lines dropped by rate limit", logx.Uint64("count", n))
			}
			_ = a.logs.Close()
		}
	})
	return out
}

func (a *App) closeStore() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil && !a.log.IsZero() {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	a.store = nil
}

func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				logEvent(a.log, e)
			}
		}
	})
}

func logEvent(log logx.Logger, e eventbus.Event) {
	switch d := e.Data.(type) {
	case eventbus.TaskNotice:
		fields := []logx.Field{
			logx.String("type", e.Type),
			logx.String("task", d.ID),
			logx.String("kind", d.Kind),
			logx.String("subject", d.SubjectID),
		}
		if d.Err != "" {
			log.Warn("event", append(fields, logx.String("err", d.Err))...)
			return
		}
		log.Debug("event", fields...)
	case eventbus.ReconcileNotice:
		log.Debug("event", logx.String("type", e.Type), logx.Int64("offline_ms", d.OfflineMs), logx.Int64("ticks", d.Ticks))
	case eventbus.CorruptNotice:
		log.Warn("event", logx.String("type", e.Type), logx.String("key", d.Key), logx.String("reason", d.Reason))
	case eventbus.RepairNotice:
		log.Info("event", logx.String("type", e.Type), logx.Any("entities", d.EntityIDs))
	default:
		log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
	}
}

func (a *App) suspendThreshold() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.schedules.suspendThreshold
}
