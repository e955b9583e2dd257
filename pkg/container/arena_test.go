package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaAllocGetTombstoneSweep(t *testing.T) {
	a := NewArena[int]()

	h1, v1 := a.Alloc()
	*v1 = 10
	h2, v2 := a.Alloc()
	*v2 = 20

	got, ok := a.Get(h1)
	require.True(t, ok)
	assert.Equal(t, 10, *got)

	a.Tombstone(h1)
	_, ok = a.Get(h1)
	assert.False(t, ok, "tombstoned handle must not resolve before sweep")

	freed := a.Sweep(nil)
	assert.Equal(t, 1, freed)

	// h2 still resolves after sweeping h1.
	got2, ok := a.Get(h2)
	require.True(t, ok)
	assert.Equal(t, 20, *got2)
}

func TestArenaGenerationPreventsStaleHandleReuse(t *testing.T) {
	a := NewArena[string]()

	h1, v1 := a.Alloc()
	*v1 = "first"
	a.Tombstone(h1)
	a.Sweep(nil)

	h2, v2 := a.Alloc()
	*v2 = "second"

	assert.Equal(t, h1.index, h2.index, "freed row should be reused")
	_, ok := a.Get(h1)
	assert.False(t, ok, "stale handle into a reused slot must not resolve")
	got, ok := a.Get(h2)
	require.True(t, ok)
	assert.Equal(t, "second", *got)
}

func TestArenaEachSkipsDeletionsMadeDuringIteration(t *testing.T) {
	a := NewArena[int]()
	var handles []Handle
	for i := 0; i < 3; i++ {
		h, v := a.Alloc()
		*v = i
		handles = append(handles, h)
	}

	var seen []int
	a.Each(func(h Handle, v *int) bool {
		seen = append(seen, *v)
		if *v == 0 {
			a.Tombstone(handles[1])
			a.Tombstone(handles[2])
		}
		return true
	})

	// Rows tombstoned mid-walk are skipped for the rest of the same Each
	// call, so only the first row is ever visited.
	assert.Equal(t, []int{0}, seen)
	assert.False(t, a.Live(handles[1]))
	assert.False(t, a.Live(handles[2]))

	freed := a.Sweep(nil)
	assert.Equal(t, 2, freed)
}

func TestArenaFreeCallbackInvokedOnSweep(t *testing.T) {
	a := NewArena[int]()
	h, v := a.Alloc()
	*v = 42

	freedVals := []int{}
	a.Tombstone(h)
	a.Sweep(func(val *int) {
		freedVals = append(freedVals, *val)
	})

	assert.Equal(t, []int{42}, freedVals)
}
