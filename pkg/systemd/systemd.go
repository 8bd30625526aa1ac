// Package systemd talks to the service manager over the notify socket.
// Every call is a no-op when the process was not started by systemd.
package systemd

import (
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready tells systemd that startup finished.
func Ready() (bool, error) { return notify(daemon.SdNotifyReady) }

// Stopping tells systemd that shutdown began.
func Stopping() (bool, error) { return notify(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func Status(format string, args ...any) (bool, error) {
	return notify("STATUS=" + fmt.Sprintf(format, args...))
}

// WatchdogPing resets the watchdog timer.
func WatchdogPing() (bool, error) { return notify(daemon.SdNotifyWatchdog) }

// WatchdogInterval returns how often to ping, half of WATCHDOG_USEC, or zero
// when the watchdog is off for this process.
func WatchdogInterval() (time.Duration, error) {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0, err
	}
	return d / 2, nil
}

func notify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}
