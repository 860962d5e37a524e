package app

import (
	"context"
	"strings"

	"villagekeep/internal/config"
	logx "villagekeep/pkg/logx"
)

// startReload applies committed config changes. Logging and cadence
// settings are live; storage, catalog and reconcile changes wait for a
// restart.
func (a *App) startReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts; only the newest config matters.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.notify.Notify(notifyReloading)
	defer a.notify.Notify(notifyReady)

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLogConfig(newCfg))
		case "driver":
			a.applyCadence(newCfg)
		case "village":
			heroes, structures := seedEntities(newCfg)
			if err := a.eng.Seed(context.Background(), heroes, structures); err != nil {
				a.log.Warn("seeding new entities failed", logx.Err(err))
			}
		case "storage", "catalog", "reconcile":
			a.log.Warn("config section changed; restart required", logx.String("section", s))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) applyCadence(cfg *config.Config) {
	next, err := mapCadence(cfg)
	if err != nil {
		a.log.Warn("invalid driver config; keeping previous", logx.Err(err))
		return
	}
	a.mu.Lock()
	prev := a.schedules
	a.schedules = next
	a.mu.Unlock()

	if prev.driver != next.driver || prev.consistency != next.consistency {
		if err := a.registerJobs(); err != nil {
			a.log.Warn("reschedule failed", logx.Err(err))
		}
	}
	a.cad.Apply(next.cfg)
}
