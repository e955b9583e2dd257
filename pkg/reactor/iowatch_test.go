package reactor

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestIOWatchFiresOnReadable(t *testing.T) {
	l, err := Create()
	require.NoError(t, err)
	defer l.Close()

	a, b := socketpair(t)
	fired := make(chan IOMask, 1)
	_, err = l.AddIOWatch(a, In, LevelTriggered, func(_ IOHandle, _ int, events IOMask) IOMask {
		fired <- events
		return events
	})
	require.NoError(t, err)

	_, err = unix.Write(b, []byte("x"))
	require.NoError(t, err)

	require.NoError(t, l.Iterate(1000))
	select {
	case m := <-fired:
		require.NotZero(t, m&In)
	default:
		t.Fatal("watch did not fire")
	}
}

// TestMasterSlaveFanOut exercises the spec's master/slave fan-out: the
// master's callback runs first and any bits it leaves unclaimed are
// offered to the slave.
func TestMasterSlaveFanOut(t *testing.T) {
	l, err := Create()
	require.NoError(t, err)
	defer l.Close()

	a, b := socketpair(t)
	var order []string
	master, err := l.AddIOWatch(a, In, LevelTriggered, func(_ IOHandle, _ int, events IOMask) IOMask {
		order = append(order, "master")
		return 0 // claim nothing, let the slave see it too
	})
	require.NoError(t, err)
	_, err = l.AddIOWatch(a, In, LevelTriggered, func(_ IOHandle, _ int, events IOMask) IOMask {
		order = append(order, "slave")
		return events
	})
	require.NoError(t, err)

	_, err = unix.Write(b, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, l.Iterate(1000))

	require.Equal(t, []string{"master", "slave"}, order)
	l.DelIOWatch(master)
}

func TestDelIOWatchDuringDispatchIsObservedImmediately(t *testing.T) {
	l, err := Create()
	require.NoError(t, err)
	defer l.Close()

	a, b := socketpair(t)
	var second bool
	var first IOHandle
	first, err = l.AddIOWatch(a, In, LevelTriggered, func(h IOHandle, _ int, events IOMask) IOMask {
		l.DelIOWatch(h)
		return 0 // claim nothing, so the sibling is still offered the event
	})
	require.NoError(t, err)
	_, err = l.AddIOWatch(a, In, LevelTriggered, func(_ IOHandle, _ int, events IOMask) IOMask {
		second = true
		return events
	})
	require.NoError(t, err)

	_, err = unix.Write(b, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, l.Iterate(1000))

	require.False(t, l.iowatches.arena.Live(first.h))
	require.True(t, second, "sibling watch still dispatches after master tombstones itself mid-pass")
}
