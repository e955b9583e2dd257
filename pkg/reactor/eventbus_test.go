package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynchronousEmitDispatchesInline(t *testing.T) {
	l, err := Create()
	require.NoError(t, err)
	defer l.Close()

	var got EventID
	l.Events.Subscribe(MatchAll, func(_ EventHandle, id EventID, _ EventFormat, _ []byte) {
		got = id
	})

	l.Events.Emit(EventID(7), FormatRaw, nil, Synchronous)
	assert.Equal(t, EventID(7), got)
}

func TestAsyncEmitDrainsOnNextIteration(t *testing.T) {
	l, err := Create()
	require.NoError(t, err)
	defer l.Close()

	var got EventID
	l.Events.Subscribe(MatchAll, func(_ EventHandle, id EventID, _ EventFormat, _ []byte) {
		got = id
	})

	l.Events.Emit(EventID(9), FormatRaw, nil, 0)
	assert.Equal(t, EventID(0), got, "async emit must not dispatch before the pump runs")

	require.NoError(t, l.Iterate(10))
	assert.Equal(t, EventID(9), got)
}

func TestSubscriberMaskFiltersByEventID(t *testing.T) {
	l, err := Create()
	require.NoError(t, err)
	defer l.Close()

	var calls int
	l.Events.Subscribe(maskBit(1), func(EventHandle, EventID, EventFormat, []byte) { calls++ })

	l.Events.Emit(EventID(2), FormatRaw, nil, Synchronous)
	assert.Equal(t, 0, calls)

	l.Events.Emit(EventID(1), FormatRaw, nil, Synchronous)
	assert.Equal(t, 1, calls)
}

func TestUnsubscribeDuringDispatchIsTombstonedNotFreedImmediately(t *testing.T) {
	l, err := Create()
	require.NoError(t, err)
	defer l.Close()

	var secondRan bool
	var first EventHandle
	first = l.Events.Subscribe(MatchAll, func(h EventHandle, _ EventID, _ EventFormat, _ []byte) {
		l.Events.Unsubscribe(h)
	})
	l.Events.Subscribe(MatchAll, func(EventHandle, EventID, EventFormat, []byte) {
		secondRan = true
	})

	l.Events.Emit(EventID(1), FormatRaw, nil, Synchronous)
	assert.True(t, secondRan, "sibling subscriber still runs after the first tombstones itself mid-dispatch")
	assert.False(t, l.Events.arena.Live(first.h))
}
