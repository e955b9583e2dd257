package reactor

import (
	"github.com/cuemby/iot-launcher/pkg/container"
)

// IOHandle identifies a registered I/O watch.
type IOHandle struct{ h container.Handle }

// IOCallback is invoked with the readiness bits that were delivered to this
// watch. It returns the subset of those bits it handled; any bits it
// leaves unclaimed are offered to the next slave watching the same fd.
type IOCallback func(h IOHandle, fd int, events IOMask) IOMask

type iowatchRow struct {
	fd      int
	mask    IOMask
	trigger Trigger
	cb      IOCallback
}

// fdEntry fans a single kernel-registered fd out to every watch on it. The
// first element is the master: its requested mask is unioned into the
// kernel registration, and its callback runs first on every dispatch.
type fdEntry struct {
	watches []container.Handle
}

type iowatchSet struct {
	arena *container.Arena[iowatchRow]
	byFD  map[int]*fdEntry
}

func newIOWatchSet() *iowatchSet {
	return &iowatchSet{
		arena: container.NewArena[iowatchRow](),
		byFD:  make(map[int]*fdEntry),
	}
}

// AddIOWatch registers cb to run when fd becomes ready per mask. Multiple
// watches on the same fd fan out in registration order; the loop keeps the
// kernel-level registration in sync with the union of every watch's mask.
func (l *Loop) AddIOWatch(fd int, mask IOMask, trigger Trigger, cb IOCallback) (IOHandle, error) {
	h, row := l.iowatches.arena.Alloc()
	row.fd = fd
	row.mask = mask
	row.trigger = trigger
	row.cb = cb

	entry, ok := l.iowatches.byFD[fd]
	if !ok {
		entry = &fdEntry{}
		l.iowatches.byFD[fd] = entry
	}
	entry.watches = append(entry.watches, h)

	if err := l.syncFD(fd, entry); err != nil {
		l.iowatches.arena.Tombstone(h)
		entry.watches = entry.watches[:len(entry.watches)-1]
		if len(entry.watches) == 0 {
			delete(l.iowatches.byFD, fd)
		}
		return IOHandle{}, err
	}
	return IOHandle{h}, nil
}

// DelIOWatch removes a watch. The underlying fd stays registered with the
// kernel, under a shrunk union mask, as long as any sibling watch survives.
func (l *Loop) DelIOWatch(ih IOHandle) {
	row, ok := l.iowatches.arena.Get(ih.h)
	if !ok {
		return
	}
	l.iowatches.arena.Tombstone(ih.h)
	entry := l.iowatches.byFD[row.fd]
	if entry == nil {
		return
	}
	l.syncFD(row.fd, entry)
}

// unionMask computes the OR of every live watch's mask on entry, used to
// size the single kernel registration for the fd.
func (s *iowatchSet) unionMask(entry *fdEntry) IOMask {
	var union IOMask
	for _, h := range entry.watches {
		if row, ok := s.arena.Get(h); ok {
			union |= row.mask
		}
	}
	return union
}

// dispatch delivers events to every live watch on fd in registration
// order, master first, stopping early once all requested bits are claimed.
func (s *iowatchSet) dispatch(fd int, events IOMask) {
	entry := s.byFD[fd]
	if entry == nil {
		return
	}
	remaining := events
	for _, h := range entry.watches {
		if remaining == 0 {
			break
		}
		row, ok := s.arena.Get(h)
		if !ok {
			continue
		}
		delivered := remaining & (row.mask | Hup)
		if delivered == 0 {
			continue
		}
		if row.cb == nil {
			continue
		}
		claimed := row.cb(IOHandle{h}, fd, delivered)
		remaining &^= claimed
	}
}
