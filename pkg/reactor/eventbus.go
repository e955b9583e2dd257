package reactor

import "github.com/cuemby/iot-launcher/pkg/container"

// EventHandle identifies a registered event subscription.
type EventHandle struct{ h container.Handle }

// EventCallback receives an emitted event's id and payload.
type EventCallback func(h EventHandle, id EventID, format EventFormat, payload []byte)

type eventWatchRow struct {
	mask EventMask
	cb   EventCallback
}

type pendingEvent struct {
	id      EventID
	format  EventFormat
	payload []byte
}

// Bus is the reactor's in-process publish/subscribe event bus. Synchronous
// emission dispatches to subscribers inline, reentrantly; asynchronous
// emission appends to a pending queue drained by a dedicated pump deferred
// on the next iteration so a producer never blocks on a slow subscriber's
// handler running out of order.
type Bus struct {
	arena    *container.Arena[eventWatchRow]
	pending  []pendingEvent
	busy     int // reentrancy depth of Emit(Synchronous)
	loop     *Loop
	pumpHand DeferredHandle
}

// GlobalBus returns l's global event bus, the same bus reachable as
// l.Events or via l.Bus(""). It is the default destination for an emit
// that doesn't name a bus, matching the original mainloop's singleton
// IOT_GLOBAL_BUS.
func GlobalBus(l *Loop) *Bus { return l.Events }

func newBus(l *Loop) *Bus {
	b := &Bus{arena: container.NewArena[eventWatchRow](), loop: l}
	b.pumpHand = l.AddDeferred(func(DeferredHandle) {
		b.pump()
		l.EnableDeferred(b.pumpHand, false)
	})
	l.EnableDeferred(b.pumpHand, false)
	return b
}

// Subscribe registers cb for every event whose id is set in mask (or every
// event, if mask is MatchAll).
func (b *Bus) Subscribe(mask EventMask, cb EventCallback) EventHandle {
	h, row := b.arena.Alloc()
	row.mask = mask
	row.cb = cb
	return EventHandle{h}
}

// Unsubscribe removes a subscription. Safe to call from within the bus's
// own dispatch, including from the subscriber being removed.
func (b *Bus) Unsubscribe(eh EventHandle) {
	b.arena.Tombstone(eh.h)
}

// Emit publishes an event. With Synchronous set, subscribers run inline
// before Emit returns (reentrant: an emit from within a handler nests);
// otherwise the event is queued and a pump deferred is armed to drain the
// queue on the next iteration.
func (b *Bus) Emit(id EventID, format EventFormat, payload []byte, flags EventFlags) {
	if flags&Synchronous != 0 {
		b.dispatch(id, format, payload)
		return
	}
	b.pending = append(b.pending, pendingEvent{id: id, format: format, payload: payload})
	b.loop.EnableDeferred(b.pumpHand, true)
}

func (b *Bus) dispatch(id EventID, format EventFormat, payload []byte) {
	b.busy++
	defer func() { b.busy-- }()
	b.arena.Each(func(h container.Handle, row *eventWatchRow) bool {
		if !row.mask.has(id) {
			return true
		}
		if row.cb != nil {
			row.cb(EventHandle{h}, id, format, payload)
		}
		return true
	})
	if b.busy == 1 {
		b.arena.Sweep(nil)
	}
}

// pump drains every queued asynchronous event in FIFO order. A handler may
// itself call Emit; the freshly queued events are drained by this same
// pump call since it loops until the queue is empty.
func (b *Bus) pump() {
	for len(b.pending) > 0 {
		ev := b.pending[0]
		b.pending = b.pending[1:]
		b.dispatch(ev.id, ev.format, ev.payload)
	}
}
