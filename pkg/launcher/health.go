package launcher

import "strconv"

// Health reports the daemon's own readiness: whether it has a usable
// manifest store and cgroup controller, and how many applications are
// currently tracked. There is no cluster consensus to wait on here, so
// readiness is purely "are this process's own collaborators present".
func (l *Launcher) Health() (checks map[string]string, ready bool) {
	checks = make(map[string]string, 3)
	ready = true

	if l.store != nil {
		checks["manifest_store"] = "ok"
	} else {
		checks["manifest_store"] = "not configured"
		ready = false
	}

	if l.cgc != nil {
		checks["cgroup_controller"] = "ok"
	} else {
		checks["cgroup_controller"] = "not configured"
		ready = false
	}

	checks["apps_running"] = strconv.Itoa(len(l.apps))
	return checks, ready
}
