package transport

import (
	"fmt"
	"os"
	"sync"

	"github.com/coreos/go-systemd/v22/activation"
	"golang.org/x/sys/unix"

	"github.com/cuemby/iot-launcher/pkg/reactor"
)

var (
	activatedOnce  sync.Once
	activatedFiles []*os.File
	activatedNext  int
)

// nextActivatedFD consumes the next pre-opened listening fd handed down
// by a supervising init's socket activation protocol, in the order the
// init declared them — systemd guarantees that order matches the
// service unit's own Listen directives. Returns ok=false once the
// supply is exhausted (or none was ever handed down), in which case the
// caller creates its own socket.
func nextActivatedFD() (int, bool) {
	activatedOnce.Do(func() {
		activatedFiles = activation.Files(false)
	})
	if activatedNext >= len(activatedFiles) {
		return 0, false
	}
	f := activatedFiles[activatedNext]
	activatedNext++
	return int(f.Fd()), true
}

// Listener owns one bound socket (stream-listening or datagram-bound)
// and the reactor I/O watch that turns its readability into Accept/Recv
// calls.
type Listener struct {
	desc Descriptor
	fd   int
	loop *reactor.Loop
	ioh  reactor.IOHandle

	// OnConn is invoked for each accepted stream connection.
	OnConn func(*Conn)
	// OnDatagram is invoked for each received datagram, paired with the
	// sender's address for send_raw_to/send_json_to style replies.
	OnDatagram func(data []byte, from unix.Sockaddr)
}

// Listen creates (or adopts, under socket activation) a socket at addr
// ("unxs:/run/foo/socket" or "unxd:/run/foo/events") and registers it
// with loop.
func Listen(loop *reactor.Loop, addr string) (*Listener, error) {
	desc, path, err := parseAddress(addr)
	if err != nil {
		return nil, err
	}

	fd, err := openListeningSocket(desc, path)
	if err != nil {
		return nil, err
	}

	l := &Listener{desc: desc, fd: fd, loop: loop}
	ioh, err := loop.AddIOWatch(fd, reactor.In, reactor.LevelTriggered, l.onReadable)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	l.ioh = ioh
	return l, nil
}

func openListeningSocket(desc Descriptor, path string) (int, error) {
	if fd, ok := nextActivatedFD(); ok {
		return fd, nil
	}

	fd, err := unix.Socket(unix.AF_UNIX, desc.SockType|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, fmt.Errorf("transport: socket: %w", err)
	}

	_ = os.Remove(path)
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("transport: bind %s: %w", path, err)
	}

	if desc.SockType == unix.SOCK_STREAM {
		if err := unix.Listen(fd, 16); err != nil {
			unix.Close(fd)
			return 0, fmt.Errorf("transport: listen %s: %w", path, err)
		}
	}
	return fd, nil
}

func (l *Listener) onReadable(_ reactor.IOHandle, fd int, _ reactor.IOMask) reactor.IOMask {
	if l.desc.SockType == unix.SOCK_STREAM {
		l.acceptAll(fd)
	} else {
		l.recvAllDatagrams(fd)
	}
	return reactor.In
}

func (l *Listener) acceptAll(fd int) {
	for {
		nfd, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			return
		}
		conn, err := newConn(l.loop, nfd)
		if err != nil {
			continue
		}
		if l.OnConn != nil {
			l.OnConn(conn)
		}
	}
}

func (l *Listener) recvAllDatagrams(fd int) {
	buf := make([]byte, 65536)
	for {
		n, from, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			return
		}
		if l.OnDatagram != nil {
			data := make([]byte, n)
			copy(data, buf[:n])
			l.OnDatagram(data, from)
		}
	}
}

// SendTo writes a datagram to a peer previously observed via OnDatagram.
func (l *Listener) SendTo(data []byte, to unix.Sockaddr) error {
	return unix.Sendto(l.fd, data, 0, to)
}

// Close tears down the listening socket.
func (l *Listener) Close() error {
	l.loop.DelIOWatch(l.ioh)
	return unix.Close(l.fd)
}
