package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStopsOnQuit(t *testing.T) {
	l, err := Create()
	require.NoError(t, err)
	defer l.Close()

	iterations := 0
	l.AddDeferred(func(DeferredHandle) {
		iterations++
		if iterations >= 3 {
			l.Quit()
		}
	})

	require.NoError(t, l.Run())
	assert.Equal(t, 3, iterations)
}

func TestPrepareReturnsInfiniteWaitWithNoTimersOrDeferreds(t *testing.T) {
	l, err := Create()
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, -1, l.Prepare(-1))
}

func TestPrepareClampsToNearestTimerDeadline(t *testing.T) {
	l, err := Create()
	require.NoError(t, err)
	defer l.Close()

	l.AddTimer(5*time.Millisecond, 0, func(TimerHandle, time.Time) {})
	assert.LessOrEqual(t, l.Prepare(1000), 5)
}
