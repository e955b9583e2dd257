/*
Package reactor implements the launcher's single-threaded event loop: a
readiness-multiplexing reactor that owns I/O watches, timers, deferred
("idle") callbacks, signal handlers, throttled wakeups, and an in-process
event bus, all dispatched from one goroutine with no locking.

# Dispatch order

Each iteration runs, in this order: wakeups, active deferreds, expired
timers, ready I/O callbacks, then a sweep that frees everything tombstoned
during the phases above. A callback may add, modify, or delete any handle —
including itself — mid-dispatch; deletions are observed immediately by the
rest of that dispatch pass (the callback is cleared to a no-op sentinel)
but the handle's storage is not reclaimed until the sweep, so an
already-delivered but not-yet-dispatched kernel event can still resolve
back to a (now dead) watch without touching freed memory. This is the
generational-arena model from pkg/container, not the original's shared
intrusive-list header trick.

# Master/slave fan-out

Multiple I/O watches on one fd collapse into one master registered with
the kernel under the union of every watch's mask, plus a slave chain
dispatched in user space: the master's callback runs first, and any
in|out bits it leaves unclaimed are offered to each slave in turn.
*/
package reactor
