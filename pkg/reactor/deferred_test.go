package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeferredRunsEveryIterationUntilDisabled(t *testing.T) {
	l, err := Create()
	require.NoError(t, err)
	defer l.Close()

	runs := 0
	h := l.AddDeferred(func(DeferredHandle) { runs++ })

	require.NoError(t, l.Iterate(1))
	require.NoError(t, l.Iterate(1))
	assert.Equal(t, 2, runs)

	require.True(t, l.EnableDeferred(h, false))
	require.NoError(t, l.Iterate(1))
	assert.Equal(t, 2, runs)
}

func TestZeroTimeoutWhenDeferredActive(t *testing.T) {
	l, err := Create()
	require.NoError(t, err)
	defer l.Close()

	l.AddDeferred(func(DeferredHandle) {})
	assert.Equal(t, 0, l.Prepare(-1))
}

func TestDeferredDeletedFromWithinItselfStopsRunning(t *testing.T) {
	l, err := Create()
	require.NoError(t, err)
	defer l.Close()

	runs := 0
	var h DeferredHandle
	h = l.AddDeferred(func(DeferredHandle) {
		runs++
		l.DelDeferred(h)
	})

	require.NoError(t, l.Iterate(1))
	require.NoError(t, l.Iterate(1))
	assert.Equal(t, 1, runs)
}
