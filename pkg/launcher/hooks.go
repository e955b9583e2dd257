package launcher

import "github.com/cuemby/iot-launcher/pkg/log"

// Hook lets an external collaborator participate in an application's
// lifecycle (spec §4.7's hook chain). Setup hooks run in registration
// order; a failing Setup hook aborts setup entirely and every hook that
// already ran gets its Cleanup invoked in reverse order. Cleanup hooks
// always run, in registration order, and a hook's own failure does not
// stop the remaining hooks from running.
type Hook struct {
	Name    string
	Setup   func(a *App) error
	Cleanup func(a *App)
}

// RegisterHook appends h to the launcher's hook chain. Hooks are meant
// to be registered once at startup, before the reactor loop runs.
func (l *Launcher) RegisterHook(h Hook) {
	l.hooks = append(l.hooks, h)
}

// runSetupHooks runs every registered hook's Setup step for a in order,
// unwinding already-run hooks' Cleanup on the first failure.
func (l *Launcher) runSetupHooks(a *App) error {
	for i, h := range l.hooks {
		if h.Setup == nil {
			continue
		}
		if err := h.Setup(a); err != nil {
			log.WithComponent("launcher").Warn().Err(err).Str("hook", h.Name).Str("app", a.AppID()).Msg("setup hook failed")
			for j := i - 1; j >= 0; j-- {
				if l.hooks[j].Cleanup != nil {
					l.hooks[j].Cleanup(a)
				}
			}
			return err
		}
	}
	return nil
}

// runCleanupHooks runs every registered hook's Cleanup step for a, in
// registration order, regardless of whether setup for a ever completed.
func (l *Launcher) runCleanupHooks(a *App) {
	for _, h := range l.hooks {
		if h.Cleanup != nil {
			h.Cleanup(a)
		}
	}
}
