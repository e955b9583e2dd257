package launcher

import (
	"syscall"
	"time"

	"github.com/cuemby/iot-launcher/pkg/log"
	"github.com/cuemby/iot-launcher/pkg/reactor"
)

// beginStop signals SIGTERM to every process in a's cgroup, records
// requesterPID as a's killer, and arms the SIGKILL escalation timer.
// Callers must have already checked ownership and that a has no killer
// recorded yet.
func (l *Launcher) beginStop(a *App, requesterPID int32) error {
	if err := l.cgc.Signal(a.CgroupPath, syscall.SIGTERM); err != nil {
		return err
	}
	a.killer = requesterPID
	a.stopTimer = l.loop.AddTimer(l.cfg.StopTimeout, 0, func(_ reactor.TimerHandle, _ time.Time) {
		l.escalateStop(a)
	})
	a.hasTimer = true
	return nil
}

// escalateStop fires when an application hasn't exited (and triggered
// cleanup) within the stop timeout; it sends SIGKILL and leaves the
// killer recorded so the eventual cleanup still notifies the requester.
func (l *Launcher) escalateStop(a *App) {
	a.hasTimer = false
	if err := l.cgc.Signal(a.CgroupPath, syscall.SIGKILL); err != nil {
		log.WithComponent("launcher").Warn().Err(err).Str("app", a.AppID()).Msg("SIGKILL escalation failed")
	}
}

// cancelStopTimer disarms a's pending SIGKILL escalation, if any. Called
// from cleanup, since the application exiting on its own makes the
// escalation moot.
func (l *Launcher) cancelStopTimer(a *App) {
	if a.hasTimer {
		l.loop.DelTimer(a.stopTimer)
		a.hasTimer = false
	}
}
