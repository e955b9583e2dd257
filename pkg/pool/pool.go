// Package pool implements the fixed-size object pool described by the
// reactor's handle allocation strategy: chunks of slots with a two-level
// free bitmap so allocation and free are both near-constant time and
// locality stays high under churn.
//
// Go cannot place a raw byte chunk header in front of arbitrary slot
// storage the way the original C pool does, so this is a generic,
// type-safe pool over []T chunks (per SPEC_FULL's Design Notes mapping):
// the chunk header, cache word, and per-chunk bitmap are kept, but slots
// are addressed by (chunk, index) rather than by pointer arithmetic on a
// chunk-aligned address.
package pool

import (
	"errors"
)

const bitsPerWord = 32

// Config configures a Pool.
type Config struct {
	// Name identifies the pool in logs and metrics.
	Name string
	// SlotsPerChunk is the number of objects allocated per chunk.
	SlotsPerChunk int
	// Limit caps the total number of live objects across all chunks; 0
	// means unbounded.
	Limit int
	// Prealloc is the number of chunks to allocate up front.
	Prealloc int
}

var (
	// ErrLimitReached is returned by Alloc when the pool's Limit is reached.
	ErrLimitReached = errors.New("pool: object limit reached")
	// ErrNotOwned is returned by Free when given a pointer the pool didn't allocate.
	ErrNotOwned = errors.New("pool: pointer not owned by this pool")
)

type chunk[T any] struct {
	slots     []T
	used      []bool
	maskWords []uint32 // inverted: 1 = free
	cache     uint32   // bit i set iff maskWords[i] has a free slot
	full      bool
}

func newChunk[T any](n int) *chunk[T] {
	nWords := (n + bitsPerWord - 1) / bitsPerWord
	c := &chunk[T]{
		slots:     make([]T, n),
		used:      make([]bool, n),
		maskWords: make([]uint32, nWords),
	}
	for i := range c.maskWords {
		c.maskWords[i] = ^uint32(0)
	}
	// Clear the padding bits in the last word beyond n slots so they're
	// never reported as free.
	if rem := n % bitsPerWord; rem != 0 && nWords > 0 {
		c.maskWords[nWords-1] = (uint32(1) << rem) - 1
	}
	for i := range c.maskWords {
		if c.maskWords[i] != 0 {
			c.cache |= 1 << uint(i)
		}
	}
	return c
}

func (c *chunk[T]) allocIndex() (int, bool) {
	if c.cache == 0 {
		return -1, false
	}
	wordIdx := firstSet32(c.cache)
	bitIdx := firstSet32(c.maskWords[wordIdx])
	c.maskWords[wordIdx] &^= 1 << bitIdx
	if c.maskWords[wordIdx] == 0 {
		c.cache &^= 1 << uint(wordIdx)
	}
	idx := wordIdx*bitsPerWord + int(bitIdx)
	c.used[idx] = true
	if c.cache == 0 {
		c.full = true
	}
	return idx, true
}

func (c *chunk[T]) freeIndex(idx int) {
	wordIdx := idx / bitsPerWord
	bitIdx := uint(idx % bitsPerWord)
	c.maskWords[wordIdx] |= 1 << bitIdx
	c.cache |= 1 << uint(wordIdx)
	c.used[idx] = false
	c.full = false
}

func (c *chunk[T]) empty() bool {
	for _, u := range c.used {
		if u {
			return false
		}
	}
	return true
}

func firstSet32(w uint32) uint {
	for i := uint(0); i < bitsPerWord; i++ {
		if w&(1<<i) != 0 {
			return i
		}
	}
	return bitsPerWord
}

// handle locates a live object within a pool.
type handle[T any] struct {
	chunk *chunk[T]
	index int
}

// Pool is a fixed-size object pool over chunked, bitmap-tracked storage.
type Pool[T any] struct {
	name          string
	slotsPerChunk int
	limit         int
	live          int
	ctor          func(*T) error
	dtor          func(*T)
	poison        *byte

	space []*chunk[T] // chunks with at least one free slot
	full  []*chunk[T]

	owned map[*T]handle[T]
}

// New creates a pool. SlotsPerChunk defaults to 64 if unset. ctor, dtor,
// and poison are all optional.
func New[T any](cfg Config, ctor func(*T) error, dtor func(*T), poison *byte) *Pool[T] {
	slotsPerChunk := cfg.SlotsPerChunk
	if slotsPerChunk <= 0 {
		slotsPerChunk = 64
	}
	p := &Pool[T]{
		name:          cfg.Name,
		slotsPerChunk: slotsPerChunk,
		limit:         cfg.Limit,
		ctor:          ctor,
		dtor:          dtor,
		poison:        poison,
		owned:         make(map[*T]handle[T]),
	}
	p.Grow(cfg.Prealloc)
	return p
}

// Grow preallocates n additional chunks.
func (p *Pool[T]) Grow(n int) {
	for i := 0; i < n; i++ {
		p.space = append(p.space, newChunk[T](p.slotsPerChunk))
	}
}

// Shrink releases up to n wholly-empty chunks (full or partially-used
// chunks are never released).
func (p *Pool[T]) Shrink(n int) int {
	released := 0
	kept := p.space[:0]
	for _, c := range p.space {
		if released < n && c.empty() {
			released++
			continue
		}
		kept = append(kept, c)
	}
	p.space = kept
	return released
}

// Alloc reserves and returns a new object, running Ctor if configured.
func (p *Pool[T]) Alloc() (*T, error) {
	if p.limit > 0 && p.live >= p.limit {
		return nil, ErrLimitReached
	}
	if len(p.space) == 0 {
		p.space = append(p.space, newChunk[T](p.slotsPerChunk))
	}
	c := p.space[len(p.space)-1]
	idx, ok := c.allocIndex()
	if !ok {
		// Shouldn't happen: chunk claimed to have space.
		return nil, ErrLimitReached
	}
	if c.full {
		p.space = p.space[:len(p.space)-1]
		p.full = append(p.full, c)
	}
	obj := &c.slots[idx]
	var zero T
	*obj = zero
	if p.ctor != nil {
		if err := p.ctor(obj); err != nil {
			c.freeIndex(idx)
			return nil, err
		}
	}
	p.owned[obj] = handle[T]{chunk: c, index: idx}
	p.live++
	return obj, nil
}

// Free releases obj back to the pool. It must have come from this pool and
// must not be freed twice.
func (p *Pool[T]) Free(obj *T) error {
	h, ok := p.owned[obj]
	if !ok {
		return ErrNotOwned
	}
	delete(p.owned, obj)
	if p.dtor != nil {
		p.dtor(obj)
	}
	if p.poison != nil {
		poisonValue(obj, *p.poison)
	}
	wasFull := h.chunk.full
	h.chunk.freeIndex(h.index)
	if wasFull {
		p.moveChunkToSpace(h.chunk)
	}
	p.live--
	return nil
}

func (p *Pool[T]) moveChunkToSpace(c *chunk[T]) {
	for i, fc := range p.full {
		if fc == c {
			p.full = append(p.full[:i], p.full[i+1:]...)
			break
		}
	}
	p.space = append(p.space, c)
}

// Live returns the number of currently allocated objects.
func (p *Pool[T]) Live() int { return p.live }

func poisonValue[T any](obj *T, b byte) {
	// Reset the freed object to T's zero value. The poison byte b is not
	// written: a freed slot reads back as all zero bytes whatever poison
	// value the pool was configured with.
	var zero T
	*obj = zero
}
