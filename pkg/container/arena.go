// Package container provides the intrusive-list-free collection primitives
// the reactor is built on: a generational arena that stands in for the
// original C mainloop's heterogeneous intrusive lists plus a shared
// "free function at a fixed header offset" sweeper trick.
//
// Every reactor handle kind (I/O watch, timer, deferred, signal handler,
// wakeup) stores its rows in an Arena[T]. Alloc returns a Handle carrying
// both the row index and a generation counter; Tombstone marks a row dead
// without releasing storage, and Sweep reclaims every tombstoned row after
// a dispatch phase completes. This gives the same "deletion during
// iteration is observed immediately, storage survives until the sweep"
// discipline as the original without ever exposing a freed pointer.
package container

// Handle identifies one row in an Arena. The zero Handle is never valid.
type Handle struct {
	index      int
	generation uint32
}

// Valid reports whether h was ever produced by Alloc (it does not imply the
// row is still live — use Arena.Live for that).
func (h Handle) Valid() bool { return h.generation != 0 }

type slot[T any] struct {
	value      T
	generation uint32
	tombstoned bool
	inUse      bool
}

// Arena is a generational, index-addressed store of T. It never moves or
// frees a row's memory on Tombstone; Sweep compacts tombstoned rows back
// onto the free list.
type Arena[T any] struct {
	slots    []slot[T]
	freeList []int
}

// NewArena creates an empty arena.
func NewArena[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Alloc reserves a row, zero-initializes it, and returns its handle and a
// pointer to the stored value for the caller to populate.
func (a *Arena[T]) Alloc() (Handle, *T) {
	var idx int
	if n := len(a.freeList); n > 0 {
		idx = a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
		a.slots[idx].generation++
	} else {
		a.slots = append(a.slots, slot[T]{generation: 1})
		idx = len(a.slots) - 1
	}
	s := &a.slots[idx]
	var zero T
	s.value = zero
	s.tombstoned = false
	s.inUse = true
	return Handle{index: idx, generation: s.generation}, &s.value
}

// Get returns a pointer to the stored value and whether the handle is
// currently live (allocated and not tombstoned).
func (a *Arena[T]) Get(h Handle) (*T, bool) {
	if h.index < 0 || h.index >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[h.index]
	if !s.inUse || s.generation != h.generation || s.tombstoned {
		return nil, false
	}
	return &s.value, true
}

// Live reports whether h refers to a currently live (non-tombstoned) row.
func (a *Arena[T]) Live(h Handle) bool {
	_, ok := a.Get(h)
	return ok
}

// Tombstone marks h dead. The row is not reusable until Sweep runs. Safe to
// call multiple times or on an already-dead handle.
func (a *Arena[T]) Tombstone(h Handle) {
	if h.index < 0 || h.index >= len(a.slots) {
		return
	}
	s := &a.slots[h.index]
	if s.inUse && s.generation == h.generation {
		s.tombstoned = true
	}
}

// Sweep visits every tombstoned row, invokes free on its value, and returns
// it to the free list. It must run between dispatch phases, never during
// one, so that handles tombstoned mid-dispatch remain resolvable by
// in-flight code until the phase completes.
func (a *Arena[T]) Sweep(free func(*T)) int {
	count := 0
	for i := range a.slots {
		s := &a.slots[i]
		if s.inUse && s.tombstoned {
			if free != nil {
				free(&s.value)
			}
			s.inUse = false
			var zero T
			s.value = zero
			a.freeList = append(a.freeList, i)
			count++
		}
	}
	return count
}

// Each visits every live (allocated, non-tombstoned) row in index
// (insertion) order. visit may itself call Tombstone/Alloc on the same
// arena; newly allocated rows are not visited by the in-flight Each call,
// and tombstoned rows are skipped for the remainder of it — mirroring the
// reactor's dispatch-time re-entrancy contract.
func (a *Arena[T]) Each(visit func(Handle, *T) bool) {
	live := make([]Handle, 0, len(a.slots))
	for i := range a.slots {
		if s := &a.slots[i]; s.inUse && !s.tombstoned {
			live = append(live, Handle{index: i, generation: s.generation})
		}
	}
	for _, h := range live {
		v, ok := a.Get(h)
		if !ok {
			continue
		}
		if !visit(h, v) {
			return
		}
	}
}

// Len returns the number of live (allocated, non-tombstoned) rows.
func (a *Arena[T]) Len() int {
	n := 0
	for i := range a.slots {
		if a.slots[i].inUse && !a.slots[i].tombstoned {
			n++
		}
	}
	return n
}
