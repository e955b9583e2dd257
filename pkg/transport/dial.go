package transport

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/cuemby/iot-launcher/pkg/reactor"
)

// Dial connects to a listening socket at addr and registers the
// resulting connection with loop. Used by trusted helper clients (and
// by tests) rather than by the daemon itself, which only ever Listens.
func Dial(loop *reactor.Loop, addr string) (*Conn, error) {
	desc, path, err := parseAddress(addr)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_UNIX, desc.SockType|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: socket: %w", err)
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: connect %s: %w", path, err)
	}

	return newConn(loop, fd)
}
