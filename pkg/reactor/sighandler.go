package reactor

import (
	"unsafe"

	"github.com/cuemby/iot-launcher/pkg/container"
	"golang.org/x/sys/unix"
)

// SigHandle identifies a registered signal handler.
type SigHandle struct{ h container.Handle }

// SigCallback is invoked when its signal is read off the signalfd.
type SigCallback func(h SigHandle, sig unix.Signal)

type sighandlerRow struct {
	sig unix.Signal
	cb  SigCallback
}

type sighandlerSet struct {
	arena *container.Arena[sighandlerRow]
	bySig map[unix.Signal][]container.Handle
	mask  unix.Sigset_t
	fd    int
	ioh   IOHandle
}

func newSighandlerSet() *sighandlerSet {
	return &sighandlerSet{
		arena: container.NewArena[sighandlerRow](),
		bySig: make(map[unix.Signal][]container.Handle),
		fd:    -1,
	}
}

// AddSigHandler registers cb for sig, blocking sig in the process signal
// mask so it is only ever observed through the reactor's signalfd rather
// than delivered asynchronously.
func (l *Loop) AddSigHandler(sig unix.Signal, cb SigCallback) (SigHandle, error) {
	h, row := l.sighandlers.arena.Alloc()
	row.sig = sig
	row.cb = cb
	l.sighandlers.bySig[sig] = append(l.sighandlers.bySig[sig], h)

	if err := l.syncSignalMask(); err != nil {
		l.sighandlers.arena.Tombstone(h)
		return SigHandle{}, err
	}
	return SigHandle{h}, nil
}

// DelSigHandler removes a signal handler. The signal is unblocked again
// once no handler remains for it.
func (l *Loop) DelSigHandler(sh SigHandle) {
	row, ok := l.sighandlers.arena.Get(sh.h)
	if !ok {
		return
	}
	l.sighandlers.arena.Tombstone(sh.h)
	handlers := l.sighandlers.bySig[row.sig]
	for i, h := range handlers {
		if h == sh.h {
			handlers = append(handlers[:i], handlers[i+1:]...)
			break
		}
	}
	l.sighandlers.bySig[row.sig] = handlers
	l.syncSignalMask()
}

// syncSignalMask recomputes the set of blocked signals from live handlers,
// creates the signalfd on first use, and updates its mask (and the
// process's blocked-signal mask) whenever the set changes.
func (l *Loop) syncSignalMask() error {
	s := l.sighandlers
	var set unix.Sigset_t
	for sig, handlers := range s.bySig {
		if len(handlers) == 0 {
			continue
		}
		addSignal(&set, sig)
	}
	s.mask = set

	if err := unix.SigprocMask(unix.SIG_SETMASK, &set, nil); err != nil {
		return err
	}

	fd, err := unix.Signalfd(s.fd, &set, unix.SFD_CLOEXEC|unix.SFD_NONBLOCK)
	if err != nil {
		return err
	}
	if s.fd != fd {
		s.fd = fd
		ih, err := l.AddIOWatch(fd, In, LevelTriggered, l.onSignalReadable)
		if err != nil {
			return err
		}
		s.ioh = ih
	}
	return nil
}

func (l *Loop) onSignalReadable(_ IOHandle, fd int, _ IOMask) IOMask {
	buf := make([]byte, unix.SizeofSignalfdSiginfo)
	for {
		n, err := unix.Read(fd, buf)
		if err != nil || n != unix.SizeofSignalfdSiginfo {
			break
		}
		info := (*unix.SignalfdSiginfo)(unsafe.Pointer(&buf[0]))
		sig := unix.Signal(info.Signo)
		for _, h := range l.sighandlers.bySig[sig] {
			row, ok := l.sighandlers.arena.Get(h)
			if !ok {
				continue
			}
			if row.cb != nil {
				row.cb(SigHandle{h}, sig)
			}
		}
	}
	return In
}

// addSignal sets sig's bit in set. Sigset_t on linux/amd64 and linux/arm64
// is a 1024-bit array of uint64 words; signal numbers are 1-based.
func addSignal(set *unix.Sigset_t, sig unix.Signal) {
	n := uint(sig) - 1
	set.Val[n/64] |= 1 << (n % 64)
}
