package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID int
}

func TestAllocFreeRoundTrip(t *testing.T) {
	p := New[widget](Config{Name: "widgets", SlotsPerChunk: 4}, nil, nil, nil)

	w, err := p.Alloc()
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 1, p.Live())

	require.NoError(t, p.Free(w))
	assert.Equal(t, 0, p.Live())
}

func TestFreeRejectsForeignPointer(t *testing.T) {
	p := New[widget](Config{SlotsPerChunk: 4}, nil, nil, nil)
	foreign := &widget{}
	assert.ErrorIs(t, p.Free(foreign), ErrNotOwned)
}

func TestAllocRespectsLimit(t *testing.T) {
	p := New[widget](Config{SlotsPerChunk: 4, Limit: 2}, nil, nil, nil)

	_, err := p.Alloc()
	require.NoError(t, err)
	_, err = p.Alloc()
	require.NoError(t, err)

	_, err = p.Alloc()
	assert.ErrorIs(t, err, ErrLimitReached)
}

func TestAllocBeyondOneChunkGrowsAutomatically(t *testing.T) {
	p := New[widget](Config{SlotsPerChunk: 2}, nil, nil, nil)
	var got []*widget
	for i := 0; i < 5; i++ {
		w, err := p.Alloc()
		require.NoError(t, err)
		got = append(got, w)
	}
	assert.Equal(t, 5, p.Live())
	for _, w := range got {
		require.NoError(t, p.Free(w))
	}
	assert.Equal(t, 0, p.Live())
}

func TestCtorFailureFailsAllocAndReleasesSlot(t *testing.T) {
	calls := 0
	ctorErr := assertError("ctor boom")
	p := New[widget](Config{SlotsPerChunk: 2}, func(w *widget) error {
		calls++
		return ctorErr
	}, nil, nil)

	_, err := p.Alloc()
	assert.ErrorIs(t, err, ctorErr)
	assert.Equal(t, 0, p.Live())
	assert.Equal(t, 1, calls)
}

func TestDtorRunsBeforeFreeCompletes(t *testing.T) {
	var dtorRan bool
	p := New[widget](Config{SlotsPerChunk: 2}, nil, func(w *widget) {
		dtorRan = true
	}, nil)

	w, err := p.Alloc()
	require.NoError(t, err)
	require.NoError(t, p.Free(w))
	assert.True(t, dtorRan)
}

func TestShrinkOnlyReleasesEmptyChunks(t *testing.T) {
	p := New[widget](Config{SlotsPerChunk: 2, Prealloc: 2}, nil, nil, nil)
	w, err := p.Alloc()
	require.NoError(t, err)

	released := p.Shrink(10)
	assert.Equal(t, 1, released, "only the wholly-empty preallocated chunk should be released")

	require.NoError(t, p.Free(w))
}

type assertError string

func (e assertError) Error() string { return string(e) }
