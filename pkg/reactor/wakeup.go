package reactor

import (
	"time"

	"github.com/cuemby/iot-launcher/pkg/container"
)

// WakeupHandle identifies a registered throttled wakeup.
type WakeupHandle struct{ h container.Handle }

// WakeupCallback runs when a throttled wakeup actually fires.
type WakeupCallback func(h WakeupHandle)

type wakeupRow struct {
	interval time.Duration
	cb       WakeupCallback
	pending  bool
	lastFire time.Time
	armed    TimerHandle
}

type wakeupSet struct {
	arena *container.Arena[wakeupRow]
}

func newWakeupSet() *wakeupSet {
	return &wakeupSet{arena: container.NewArena[wakeupRow]()}
}

// AddWakeup registers a low-pass-filtered callback: Request may be called
// as often as desired, but cb fires at most once per interval. A request
// arriving mid-throttle is never dropped — a forcing timer guarantees it
// fires once the interval elapses even with no further requests.
func (l *Loop) AddWakeup(interval time.Duration, cb WakeupCallback) WakeupHandle {
	h, row := l.wakeups.arena.Alloc()
	row.interval = interval
	row.cb = cb
	return WakeupHandle{h}
}

// DelWakeup removes a wakeup, cancelling its forcing timer if armed.
func (l *Loop) DelWakeup(wh WakeupHandle) {
	row, ok := l.wakeups.arena.Get(wh.h)
	if ok && row.armed.h.Valid() {
		l.DelTimer(row.armed)
	}
	l.wakeups.arena.Tombstone(wh.h)
}

// Request asks for wh's callback to run. It may run immediately (this
// dispatch iteration's wakeup phase) or be deferred to respect the
// wakeup's throttle interval.
func (l *Loop) Request(wh WakeupHandle) {
	row, ok := l.wakeups.arena.Get(wh.h)
	if !ok {
		return
	}
	row.pending = true
	if row.interval <= 0 || row.lastFire.IsZero() || l.now.Sub(row.lastFire) >= row.interval {
		return // dispatchWakeups will fire it this iteration
	}
	if row.armed.h.Valid() {
		return // forcing timer already scheduled
	}
	remaining := row.interval - l.now.Sub(row.lastFire)
	row.armed = l.AddTimer(remaining, 0, func(_ TimerHandle, now time.Time) {
		row.armed = TimerHandle{}
		if row.pending {
			l.fireWakeup(wh, row, now)
		}
	})
}

func (l *Loop) fireWakeup(wh WakeupHandle, row *wakeupRow, now time.Time) {
	row.pending = false
	row.lastFire = now
	if row.cb != nil {
		row.cb(wh)
	}
}

// dispatchWakeups fires every wakeup whose throttle interval has elapsed
// and which has a pending request.
func (l *Loop) dispatchWakeups() int {
	count := 0
	l.wakeups.arena.Each(func(h container.Handle, row *wakeupRow) bool {
		if !row.pending {
			return true
		}
		if row.lastFire.IsZero() || l.now.Sub(row.lastFire) >= row.interval {
			l.fireWakeup(WakeupHandle{h}, row, l.now)
			count++
		}
		return !l.quit
	})
	return count
}
