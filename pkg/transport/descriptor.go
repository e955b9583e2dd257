package transport

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// Descriptor names one transport backend: its socket type and the
// scheme prefix addresses for it carry.
type Descriptor struct {
	TypeName string
	SockType int // unix.SOCK_STREAM or unix.SOCK_DGRAM
}

var registry = map[string]Descriptor{}

func register(scheme string, d Descriptor) {
	registry[scheme] = d
}

func lookup(scheme string) (Descriptor, error) {
	d, ok := registry[scheme]
	if !ok {
		return Descriptor{}, fmt.Errorf("transport: unknown scheme %q", scheme)
	}
	return d, nil
}

func init() {
	register("unxs", Descriptor{TypeName: "stream-unix", SockType: unix.SOCK_STREAM})
	register("unxd", Descriptor{TypeName: "datagram-unix", SockType: unix.SOCK_DGRAM})
}

// parseAddress splits a scheme-prefixed address like "unxs:/run/foo/socket"
// into its descriptor and filesystem path.
func parseAddress(addr string) (Descriptor, string, error) {
	scheme, path, ok := strings.Cut(addr, ":")
	if !ok {
		return Descriptor{}, "", fmt.Errorf("transport: address %q has no scheme", addr)
	}
	d, err := lookup(scheme)
	if err != nil {
		return Descriptor{}, "", err
	}
	return d, path, nil
}
