package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "villagekeep/pkg/logx"
)

const (
	notifyReady     = daemon.SdNotifyReady
	notifyStopping  = daemon.SdNotifyStopping
	notifyReloading = daemon.SdNotifyReloading
	notifyWatchdog  = daemon.SdNotifyWatchdog
)

// Notifier reports service state to the init system.
type Notifier interface {
	Notify(state string)
}

type systemdNotifier struct{ log logx.Logger }

// Notify is a no-op outside systemd (NOTIFY_SOCKET unset).
func (n systemdNotifier) Notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Trace("sd_notify", logx.String("state", state))
	}
}

// startWatchdog pings the systemd watchdog at half its interval when
// WatchdogSec is configured for the unit.
func (a *App) startWatchdog() {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		a.log.Warn("watchdog config invalid", logx.Err(err))
		return
	}
	if every <= 0 {
		return
	}
	a.log.Info("systemd watchdog enabled", logx.Duration("interval", every))
	a.sup.Go("systemd.watchdog", func(ctx context.Context) error {
		t := time.NewTicker(every / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				a.notify.Notify(notifyWatchdog)
			}
		}
	})
}
