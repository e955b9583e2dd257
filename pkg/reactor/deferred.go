package reactor

import "github.com/cuemby/iot-launcher/pkg/container"

// DeferredHandle identifies a registered deferred ("idle") callback.
type DeferredHandle struct{ h container.Handle }

// DeferredCallback runs once per iteration while its handle is enabled.
type DeferredCallback func(h DeferredHandle)

type deferredRow struct {
	cb      DeferredCallback
	enabled bool
}

type deferredSet struct {
	arena *container.Arena[deferredRow]
}

func newDeferredSet() *deferredSet {
	return &deferredSet{arena: container.NewArena[deferredRow]()}
}

// AddDeferred registers cb, enabled by default, to run on every loop
// iteration until disabled or deleted.
func (l *Loop) AddDeferred(cb DeferredCallback) DeferredHandle {
	h, row := l.deferreds.arena.Alloc()
	row.cb = cb
	row.enabled = true
	return DeferredHandle{h}
}

// EnableDeferred turns a deferred callback on or off without deleting it.
func (l *Loop) EnableDeferred(dh DeferredHandle, enabled bool) bool {
	row, ok := l.deferreds.arena.Get(dh.h)
	if !ok {
		return false
	}
	row.enabled = enabled
	return true
}

// DelDeferred removes a deferred callback.
func (l *Loop) DelDeferred(dh DeferredHandle) {
	l.deferreds.arena.Tombstone(dh.h)
}

// dispatchActive runs every currently enabled deferred, in arena order.
// Deferreds added during this pass are not visited until the next
// iteration, matching the reactor's re-entrancy contract. quit is polled
// after every callback so a Quit called from within one stops the rest
// of this pass.
func (d *deferredSet) dispatchActive(quit func() bool) int {
	count := 0
	d.arena.Each(func(h container.Handle, row *deferredRow) bool {
		if !row.enabled {
			return true
		}
		cb := row.cb
		if cb != nil {
			cb(DeferredHandle{h})
			count++
		}
		return !quit()
	})
	return count
}
