package reactor

import (
	"time"

	"github.com/cuemby/iot-launcher/pkg/container"
)

// SuperloopOps is the vtable a foreign host loop (e.g. glib's main loop)
// implements to drive this reactor instead of the reactor driving itself.
type SuperloopOps struct {
	AddIO      func(data interface{}, fd int, mask IOMask) (token interface{}, err error)
	DelIO      func(data interface{}, token interface{})
	AddTimer   func(data interface{}, timeoutMs int) (token interface{}, err error)
	ModTimer   func(data interface{}, token interface{}, timeoutMs int) error
	DelTimer   func(data interface{}, token interface{})
	AddDefer   func(data interface{}) (token interface{}, err error)
	DelDefer   func(data interface{}, token interface{})
	Unregister func(data interface{})
}

// superloop holds the bindings created when the reactor registers itself
// into a host loop: its own readiness fd as a watch, its next poll timeout
// as a host timer, and its dispatch work as a host deferred.
type superloop struct {
	ops  SuperloopOps
	data interface{}

	ioToken    interface{}
	timerToken interface{}
	deferToken interface{}
}

// SetSuperloop binds the reactor into a foreign host loop: the reactor's
// epoll fd becomes a host I/O watch, the reactor's own dispatch becomes a
// host deferred, and the next poll timeout becomes a host timer. From this
// point the reactor no longer drives Run itself; call Iterate's pieces
// (Prepare/Poll/Dispatch) from the host callbacks instead, as onHostIO,
// onHostDefer and onHostTimer do below.
func (l *Loop) SetSuperloop(ops SuperloopOps, data interface{}) error {
	sl := &superloop{ops: ops, data: data}

	ioTok, err := ops.AddIO(data, l.epfd, In)
	if err != nil {
		return err
	}
	sl.ioToken = ioTok

	deferTok, err := ops.AddDefer(data)
	if err != nil {
		ops.DelIO(data, ioTok)
		return err
	}
	sl.deferToken = deferTok

	timerTok, err := ops.AddTimer(data, l.Prepare(-1))
	if err != nil {
		ops.DelDefer(data, deferTok)
		ops.DelIO(data, ioTok)
		return err
	}
	sl.timerToken = timerTok

	l.super = sl
	return nil
}

// ClearSuperloop unbinds the reactor from its host loop.
func (l *Loop) ClearSuperloop() {
	if l.super == nil {
		return
	}
	sl := l.super
	sl.ops.DelTimer(sl.data, sl.timerToken)
	sl.ops.DelDefer(sl.data, sl.deferToken)
	sl.ops.DelIO(sl.data, sl.ioToken)
	if sl.ops.Unregister != nil {
		sl.ops.Unregister(sl.data)
	}
	l.super = nil
}

// onHostIO is the callback the host loop invokes when the reactor's
// readiness fd becomes readable.
func (l *Loop) onHostIO() error {
	events, err := l.Poll(0)
	if err != nil {
		return err
	}
	l.now = time.Now()
	l.Dispatch(events)
	return l.rearmHostTimer()
}

// onHostDefer is the callback the host loop invokes for the reactor's
// registered deferred; it runs one dispatch pass with no poll, so the
// host's own event sources stay interleaved with the reactor's deferreds.
func (l *Loop) onHostDefer() error {
	l.now = time.Now()
	l.Dispatch(nil)
	return l.rearmHostTimer()
}

// onHostTimer is the callback the host loop invokes when the reactor's
// next-wakeup timer expires.
func (l *Loop) onHostTimer() error {
	events, err := l.Poll(0)
	if err != nil {
		return err
	}
	l.now = time.Now()
	l.Dispatch(events)
	return l.rearmHostTimer()
}

// rearmHostTimer recomputes the host timer timeout: 0 whenever any
// deferred is active (some host loops starve on endlessly-ready
// deferreds, so this yields once per host round instead of spinning),
// else the distance to the nearest timer deadline.
func (l *Loop) rearmHostTimer() error {
	if l.super == nil {
		return nil
	}
	return l.super.ops.ModTimer(l.super.data, l.super.timerToken, l.Prepare(-1))
}

func (l *Loop) hasActiveDeferred() bool {
	active := false
	l.deferreds.arena.Each(func(_ container.Handle, row *deferredRow) bool {
		if row.enabled {
			active = true
			return false
		}
		return true
	})
	return active
}
