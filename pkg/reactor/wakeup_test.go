package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWakeupFiresImmediatelyWhenNotThrottled(t *testing.T) {
	l, err := Create()
	require.NoError(t, err)
	defer l.Close()

	fired := 0
	h := l.AddWakeup(0, func(WakeupHandle) { fired++ })
	l.Request(h)

	require.NoError(t, l.Iterate(1))
	assert.Equal(t, 1, fired)
}

func TestWakeupThrottledRequestIsCoalescedAndForced(t *testing.T) {
	l, err := Create()
	require.NoError(t, err)
	defer l.Close()

	fired := 0
	h := l.AddWakeup(20*time.Millisecond, func(WakeupHandle) { fired++ })

	l.Request(h)
	require.NoError(t, l.Iterate(1))
	assert.Equal(t, 1, fired, "first request fires immediately since lastFire is zero")

	l.Request(h)
	l.Request(h)
	require.NoError(t, l.Iterate(1))
	assert.Equal(t, 1, fired, "second request still inside the throttle window")

	time.Sleep(25 * time.Millisecond)
	require.NoError(t, l.Iterate(1))
	assert.Equal(t, 2, fired, "forcing timer fires the coalesced request once the window elapses")
}
