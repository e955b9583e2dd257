package reactor

import (
	"sort"
	"time"

	"github.com/cuemby/iot-launcher/pkg/container"
)

// TimerHandle identifies a registered timer.
type TimerHandle struct{ h container.Handle }

// TimerCallback is invoked when a timer expires. now is the dispatch-time
// clock reading used for the whole iteration, not a fresh read per timer.
type TimerCallback func(h TimerHandle, now time.Time)

type timerRow struct {
	deadline time.Time
	period   time.Duration // 0 for one-shot
	cb       TimerCallback
}

type timerSet struct {
	arena *container.Arena[timerRow]
}

func newTimerSet() *timerSet {
	return &timerSet{arena: container.NewArena[timerRow]()}
}

// AddTimer schedules cb to run after d. If period is non-zero the timer
// re-arms itself for period after every firing instead of being tombstoned.
func (l *Loop) AddTimer(d, period time.Duration, cb TimerCallback) TimerHandle {
	h, row := l.timers.arena.Alloc()
	row.deadline = l.now.Add(d)
	row.period = period
	row.cb = cb
	return TimerHandle{h}
}

// ModTimer reschedules an existing timer to fire after d from now.
func (l *Loop) ModTimer(th TimerHandle, d time.Duration) bool {
	row, ok := l.timers.arena.Get(th.h)
	if !ok {
		return false
	}
	row.deadline = l.now.Add(d)
	return true
}

// DelTimer cancels a timer. Safe to call from within the timer's own
// callback or any other dispatch callback.
func (l *Loop) DelTimer(th TimerHandle) {
	l.timers.arena.Tombstone(th.h)
}

// nextDeadline returns the earliest live deadline, used to bound the
// poll timeout, and whether any timer exists at all.
func (t *timerSet) nextDeadline() (time.Time, bool) {
	var best time.Time
	found := false
	t.arena.Each(func(_ container.Handle, row *timerRow) bool {
		if !found || row.deadline.Before(best) {
			best = row.deadline
			found = true
		}
		return true
	})
	return best, found
}

// dispatchExpired runs every timer whose deadline has passed as of now, in
// deadline order, re-arming periodic timers in place. quit is polled after
// every callback so a Quit called from within one stops the rest of this
// pass, leaving later-deadline timers undispatched until the next
// iteration.
func (t *timerSet) dispatchExpired(now time.Time, quit func() bool) int {
	type due struct {
		h   container.Handle
		row *timerRow
	}
	var fired []due
	t.arena.Each(func(h container.Handle, row *timerRow) bool {
		if !row.deadline.After(now) {
			fired = append(fired, due{h, row})
		}
		return true
	})
	sort.SliceStable(fired, func(i, j int) bool { return fired[i].row.deadline.Before(fired[j].row.deadline) })
	count := 0
	for _, d := range fired {
		row, ok := t.arena.Get(d.h)
		if !ok {
			continue // tombstoned by an earlier callback this pass
		}
		cb := row.cb
		period := row.period
		if period > 0 {
			row.deadline = now.Add(period)
		} else {
			t.arena.Tombstone(d.h)
		}
		if cb != nil {
			cb(TimerHandle{d.h}, now)
		}
		count++
		if quit() {
			break
		}
	}
	return count
}
