// Package systemd integrates the service lifecycle with systemd when the
// process runs under it. All calls are no-ops outside systemd.
package systemd

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"camgrid/internal/logging"
)

// NotifyReady tells systemd the service finished starting.
func NotifyReady() {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logging.GetLogger("systemd").Warn("sd_notify ready failed", "error", err)
		return
	}
	if sent {
		logging.GetLogger("systemd").Debug("Notified systemd: ready")
	}
}

// NotifyStopping tells systemd a shutdown is in progress.
func NotifyStopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}

// NotifyStatus publishes a one-line status visible in systemctl output.
func NotifyStatus(status string) {
	_, _ = daemon.SdNotify(false, "STATUS="+status)
}

// StartWatchdog feeds the systemd watchdog at half the configured interval
// until ctx is canceled. Returns immediately when no watchdog is set up.
func StartWatchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}

	logger := logging.GetLogger("systemd")
	logger.Info("systemd watchdog enabled", "interval", interval)

	go func() {
		ticker := time.NewTicker(interval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
					logger.Warn("watchdog notify failed", "error", err)
				}
			}
		}
	}()
}

// StatusLine formats a compact session summary for NotifyStatus.
func StatusLine(playing, total int) string {
	return fmt.Sprintf("%d/%d streams playing", playing, total)
}
