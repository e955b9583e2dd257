package transport

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/iot-launcher/pkg/reactor"
)

func newLoop(t *testing.T) *reactor.Loop {
	t.Helper()
	l, err := reactor.Create()
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

// pump runs a handful of iterations so async connect/accept/read
// callbacks have a chance to fire.
func pump(t *testing.T, l *reactor.Loop, rounds int) {
	t.Helper()
	for i := 0; i < rounds; i++ {
		require.NoError(t, l.Iterate(20))
	}
}

func TestStreamListenerAcceptsAndExchangesFrames(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "launcher.sock")
	addr := "unxs:" + sockPath

	serverLoop := newLoop(t)
	clientLoop := newLoop(t)

	var serverConn *Conn
	var received json.RawMessage

	listener, err := Listen(serverLoop, addr)
	require.NoError(t, err)
	listener.OnConn = func(c *Conn) {
		serverConn = c
		c.OnFrame = func(_ *Conn, frame json.RawMessage) {
			received = frame
		}
	}
	t.Cleanup(func() { listener.Close() })

	client, err := Dial(clientLoop, addr)
	require.NoError(t, err)

	require.NoError(t, client.SendJSON(map[string]any{"type": "setup", "seqno": 1}))

	deadline := time.Now().Add(2 * time.Second)
	for received == nil && time.Now().Before(deadline) {
		pump(t, serverLoop, 1)
		pump(t, clientLoop, 1)
	}

	require.NotNil(t, serverConn)
	require.NotNil(t, received)

	var got map[string]any
	require.NoError(t, json.Unmarshal(received, &got))
	require.Equal(t, "setup", got["type"])
}

func TestConnCloseDuringOwnCallbackDefersTeardown(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "launcher.sock")
	addr := "unxs:" + sockPath

	serverLoop := newLoop(t)
	clientLoop := newLoop(t)

	listener, err := Listen(serverLoop, addr)
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	var destroyedInsideCallback bool
	listener.OnConn = func(c *Conn) {
		c.OnFrame = func(conn *Conn, _ json.RawMessage) {
			conn.Close()
			destroyedInsideCallback = conn.CheckDestroy()
		}
	}

	client, err := Dial(clientLoop, addr)
	require.NoError(t, err)
	require.NoError(t, client.SendJSON(map[string]any{"type": "stop"}))

	deadline := time.Now().Add(2 * time.Second)
	for !destroyedInsideCallback && time.Now().Before(deadline) {
		pump(t, serverLoop, 1)
		pump(t, clientLoop, 1)
	}

	require.True(t, destroyedInsideCallback)
}

func TestDatagramListenerIsRegisteredAndBound(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "events.sock")
	addr := "unxd:" + sockPath

	serverLoop := newLoop(t)
	listener, err := Listen(serverLoop, addr)
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	_, err = os.Stat(sockPath)
	require.NoError(t, err, "datagram Listen must bind the socket file")
}

func TestExtractFramesSplitsConsecutiveValues(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(`{"a":1} {"b":2}`)
	frames, err := extractFrames(&buf)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, `{"a":1}`, string(frames[0]))
	assert.Equal(t, `{"b":2}`, string(frames[1]))
}

func TestExtractFramesLeavesPartialValueBuffered(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(`{"a":1}{"b":`)
	frames, err := extractFrames(&buf)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, `{"b":`, buf.String())
}
