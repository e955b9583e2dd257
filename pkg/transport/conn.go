package transport

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/cuemby/iot-launcher/pkg/reactor"
)

// Conn is one accepted stream connection: a raw nonblocking fd watched
// by the reactor, an incremental JSON frame decoder, and the
// destruction-safety busy counter required because a callback may
// destroy the connection from within itself.
type Conn struct {
	fd        int
	loop      *reactor.Loop
	ioh       reactor.IOHandle
	inbuf     bytes.Buffer
	busy      int
	destroyed bool

	// OnFrame is invoked once per complete JSON value received.
	OnFrame func(*Conn, json.RawMessage)
	// OnClosed is invoked once, the moment the peer is observed gone.
	OnClosed func(*Conn)
}

func newConn(loop *reactor.Loop, fd int) (*Conn, error) {
	c := &Conn{fd: fd, loop: loop}
	ioh, err := loop.AddIOWatch(fd, reactor.In, reactor.LevelTriggered, c.onReadable)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	c.ioh = ioh
	return c, nil
}

// PeerCred returns the connecting process's uid/gid/pid via SO_PEERCRED,
// the substrate for privilege checks and session identity (spec §4.3,
// §4.6, §4.7).
func (c *Conn) PeerCred() (uid, gid uint32, pid int32, err error) {
	cred, err := unix.GetsockoptUcred(c.fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("transport: peer-cred: %w", err)
	}
	return cred.Uid, cred.Gid, cred.Pid, nil
}

// PeerSec returns the connecting process's security label via
// SO_PEERSEC. Platforms without an LSM loaded return an empty string
// and no error.
func (c *Conn) PeerSec() (string, error) {
	label, err := unix.GetsockoptString(c.fd, unix.SOL_SOCKET, unix.SO_PEERSEC)
	if err == unix.ENOPROTOOPT {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("transport: peer-sec: %w", err)
	}
	return label, nil
}

func (c *Conn) onReadable(_ reactor.IOHandle, fd int, events reactor.IOMask) reactor.IOMask {
	c.busy++
	defer c.leave()

	buf := make([]byte, 4096)
	for {
		n, err := unix.Read(fd, buf)
		if n > 0 {
			c.inbuf.Write(buf[:n])
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			break
		}
		if err != nil || n == 0 {
			c.handleEOF()
			return events
		}
		if n < len(buf) {
			break
		}
	}

	frames, _ := extractFrames(&c.inbuf)
	for _, f := range frames {
		if c.destroyed {
			break
		}
		if c.OnFrame != nil {
			c.OnFrame(c, f)
		}
	}
	return events
}

func (c *Conn) handleEOF() {
	if c.OnClosed != nil {
		c.OnClosed(c)
	}
	c.Close()
}

// SendJSON marshals v and writes it whole. JSON framing needs no
// separate delimiter on the wire since the peer's decoder tracks
// brace/bracket depth itself.
func (c *Conn) SendJSON(v interface{}) error {
	if c.destroyed {
		return fmt.Errorf("transport: send on destroyed connection")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	for len(data) > 0 {
		n, err := unix.Write(c.fd, data)
		if err != nil {
			if err == unix.EAGAIN {
				continue
			}
			return fmt.Errorf("transport: write: %w", err)
		}
		data = data[n:]
	}
	return nil
}

func (c *Conn) leave() {
	c.busy--
	if c.busy == 0 && c.destroyed {
		c.teardown()
	}
}

// Close marks the connection for destruction. If a callback is still on
// the stack (busy > 0), teardown is deferred until it returns — the
// busy-counter discipline spec §4.3 requires of every transport backend.
func (c *Conn) Close() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	if c.busy == 0 {
		c.teardown()
	}
}

func (c *Conn) teardown() {
	c.loop.DelIOWatch(c.ioh)
	unix.Close(c.fd)
}

// CheckDestroy reports whether c has been marked for destruction;
// callers iterating after invoking a callback must stop touching c once
// this returns true (spec §4.3's check_destroy predicate).
func (c *Conn) CheckDestroy() bool {
	return c.destroyed
}
