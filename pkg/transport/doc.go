// Package transport implements the launcher's JSON-over-socket wire
// transport: a name-registered backend per URL scheme (stream-unix
// "unxs:", datagram-unix "unxd:"), self-delimited JSON framing, peer
// credential/security-label introspection, and destruction safety via a
// busy counter so a connection can be torn down from within its own
// read callback.
package transport
