package reactor

import (
	"fmt"
	"time"

	"github.com/cuemby/iot-launcher/pkg/metrics"
	"golang.org/x/sys/unix"
)

const maxEpollEvents = 64

// Loop is the launcher's single-threaded event loop. A Loop must only ever
// be driven from the goroutine that created it; nothing here takes a lock.
type Loop struct {
	epfd int
	now  time.Time

	iowatches   *iowatchSet
	timers      *timerSet
	deferreds   *deferredSet
	sighandlers *sighandlerSet
	wakeups     *wakeupSet
	Events      *Bus
	buses       map[string]*Bus

	quit  bool
	super *superloop
}

// Create builds a Loop backed by a fresh epoll instance.
func Create() (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	l := &Loop{
		epfd:        epfd,
		now:         time.Now(),
		iowatches:   newIOWatchSet(),
		timers:      newTimerSet(),
		deferreds:   newDeferredSet(),
		sighandlers: newSighandlerSet(),
		wakeups:     newWakeupSet(),
		buses:       make(map[string]*Bus),
	}
	l.Events = newBus(l)
	return l, nil
}

// Bus returns the named event bus, creating it on first use. An empty
// name returns l's global bus, the same one returned by GlobalBus and
// reachable directly as l.Events.
func (l *Loop) Bus(name string) *Bus {
	if name == "" {
		return l.Events
	}
	if b, ok := l.buses[name]; ok {
		return b
	}
	b := newBus(l)
	l.buses[name] = b
	return b
}

// Close releases the loop's epoll fd and signalfd, if any.
func (l *Loop) Close() error {
	if l.sighandlers.fd >= 0 {
		unix.Close(l.sighandlers.fd)
	}
	return unix.Close(l.epfd)
}

// syncFD registers or updates the kernel-level epoll registration for fd so
// it matches the union of every live watch's mask, and removes it once no
// live watch remains.
func (l *Loop) syncFD(fd int, entry *fdEntry) error {
	union := l.iowatches.unionMask(entry)
	ev := unix.EpollEvent{Events: union.toEpoll() | unix.EPOLLHUP | unix.EPOLLERR, Fd: int32(fd)}
	op := unix.EPOLL_CTL_MOD
	if len(entry.watches) == 1 {
		op = unix.EPOLL_CTL_ADD
	}
	live := 0
	for _, h := range entry.watches {
		if l.iowatches.arena.Live(h) {
			live++
		}
	}
	if live == 0 {
		delete(l.iowatches.byFD, fd)
		return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	}
	if err := unix.EpollCtl(l.epfd, op, fd, &ev); err != nil {
		if op == unix.EPOLL_CTL_ADD {
			return fmt.Errorf("reactor: epoll_ctl(add, fd=%d): %w", fd, err)
		}
		return fmt.Errorf("reactor: epoll_ctl(mod, fd=%d): %w", fd, err)
	}
	return nil
}

// Quit requests the loop stop after the current iteration finishes.
func (l *Loop) Quit() { l.quit = true }

// Now returns the clock reading taken at the start of the current (or most
// recently completed) iteration. Callbacks should prefer this over
// time.Now() so every callback in one dispatch pass agrees on "now".
func (l *Loop) Now() time.Time { return l.now }

// Run drives iterations until Quit is called or poll returns a fatal error.
func (l *Loop) Run() error {
	for !l.quit {
		if err := l.Iterate(-1); err != nil {
			return err
		}
	}
	return nil
}

// Iterate runs a single prepare/poll/dispatch cycle. maxWait bounds the
// poll timeout in milliseconds; -1 means "derive from the nearest timer
// deadline, or block indefinitely if there are none".
func (l *Loop) Iterate(maxWait int) error {
	metrics.LoopIterations.Inc()
	l.now = time.Now()

	timeout := l.Prepare(maxWait)
	events, err := l.Poll(timeout)
	if err != nil {
		return err
	}
	l.now = time.Now()
	l.Dispatch(events)
	return nil
}

// Prepare computes the epoll_wait timeout for the upcoming poll: 0 if any
// deferred is currently active, else the caller's bound clamped to the
// nearest timer deadline, else the caller's bound (infinite if negative).
func (l *Loop) Prepare(maxWait int) int {
	if l.hasActiveDeferred() {
		return 0
	}
	deadline, ok := l.timers.nextDeadline()
	if !ok {
		return maxWait
	}
	remaining := deadline.Sub(l.now)
	if remaining < 0 {
		remaining = 0
	}
	ms := int((remaining + time.Millisecond - 1) / time.Millisecond)
	if maxWait >= 0 && maxWait < ms {
		return maxWait
	}
	return ms
}

// Poll blocks for up to timeoutMs milliseconds (or indefinitely if
// negative) and returns the fds that became ready.
func (l *Loop) Poll(timeoutMs int) ([]unix.EpollEvent, error) {
	start := time.Now()
	var buf [maxEpollEvents]unix.EpollEvent
	n, err := unix.EpollWait(l.epfd, buf[:], timeoutMs)
	metrics.LoopPollTimeoutMs.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("reactor: epoll_wait: %w", err)
	}
	return buf[:n], nil
}

// Dispatch runs one full dispatch pass: wakeups, active deferreds, expired
// timers, ready I/O, then a sweep of everything tombstoned along the way.
// Quit, called from any callback in any phase, aborts the remaining phases
// of this same pass; the final sweep still runs regardless, so a handle
// tombstoned right before Quit is reclaimed rather than left dangling.
func (l *Loop) Dispatch(events []unix.EpollEvent) {
	w := l.dispatchWakeups()
	metrics.DispatchedCallbacks.WithLabelValues("wakeup").Add(float64(w))

	if !l.quit {
		d := l.deferreds.dispatchActive(l.quitRequested)
		metrics.DispatchedCallbacks.WithLabelValues("deferred").Add(float64(d))
	}

	if !l.quit {
		t := l.timers.dispatchExpired(l.now, l.quitRequested)
		metrics.DispatchedCallbacks.WithLabelValues("timer").Add(float64(t))
	}

	if !l.quit {
		n := l.dispatchIO(events)
		metrics.DispatchedCallbacks.WithLabelValues("io").Add(float64(n))
	}

	swept := l.timers.arena.Sweep(nil) +
		l.deferreds.arena.Sweep(nil) +
		l.sweepIOWatches() +
		l.sighandlers.arena.Sweep(nil) +
		l.wakeups.arena.Sweep(nil) +
		l.Events.arena.Sweep(nil) +
		l.sweepNamedBuses()
	metrics.SweptPerIteration.Observe(float64(swept))

	metrics.HandlesLive.WithLabelValues("timer").Set(float64(l.timers.arena.Len()))
	metrics.HandlesLive.WithLabelValues("deferred").Set(float64(l.deferreds.arena.Len()))
	metrics.HandlesLive.WithLabelValues("iowatch").Set(float64(l.iowatches.arena.Len()))
	metrics.HandlesLive.WithLabelValues("sighandler").Set(float64(l.sighandlers.arena.Len()))
	metrics.HandlesLive.WithLabelValues("wakeup").Set(float64(l.wakeups.arena.Len()))
}

// quitRequested reports whether Quit has been called so far this pass.
// Passed down to phases that don't otherwise hold a *Loop.
func (l *Loop) quitRequested() bool { return l.quit }

// dispatchIO delivers ready I/O events in poll order, stopping early if a
// callback calls Quit.
func (l *Loop) dispatchIO(events []unix.EpollEvent) int {
	n := 0
	for _, ev := range events {
		l.iowatches.dispatch(int(ev.Fd), fromEpoll(ev.Events))
		n++
		if l.quit {
			break
		}
	}
	return n
}

// sweepNamedBuses reclaims tombstoned subscriptions on every bus obtained
// through Bus, beyond the global bus already swept in Dispatch.
func (l *Loop) sweepNamedBuses() int {
	n := 0
	for _, b := range l.buses {
		n += b.arena.Sweep(nil)
	}
	return n
}

// sweepIOWatches reclaims tombstoned watch rows and prunes them out of
// their fd's fan-out chain.
func (l *Loop) sweepIOWatches() int {
	return l.iowatches.arena.Sweep(func(row *iowatchRow) {
		entry := l.iowatches.byFD[row.fd]
		if entry == nil {
			return
		}
		// The handle itself was already removed from arena storage; the
		// fd entry's watch list is pruned lazily by DelIOWatch's caller
		// via a filter pass here since Sweep doesn't have the handle.
		live := entry.watches[:0]
		for _, h := range entry.watches {
			if l.iowatches.arena.Live(h) {
				live = append(live, h)
			}
		}
		entry.watches = live
	})
}
