// Package transport defines the uniform, non-blocking send/poll contract
// every concrete datagram transport (UDP, WebTransport, an in-process local
// pair) implements, so the core never depends on a specific socket type.
// Restructured from the teacher's always-blocking background receive-loop
// UDPTransport (pkg/transport/transport.go in the teacher repo) into an
// explicit non-blocking Poll, because spec.md §5 forbids blocking I/O
// inside the core's per-frame entry points — see DESIGN.md.
package transport

import "net"

// Addr identifies a remote endpoint in a transport-neutral way. Concrete
// transports may use net.Addr (UDP) or an opaque session handle
// (WebTransport); both satisfy this via String().
type Addr interface {
	String() string
}

// Transport is the adapter the core's connection and packet-builder layers
// talk to. Per spec.md §5, Poll must never block: it is called once per
// frame's receive phase and returns immediately with whatever is already
// available.
type Transport interface {
	// Send fire-and-forgets a single datagram to addr and never blocks.
	// Errors are returned to the caller; runtime.Peer logs a failed send
	// and leaves the connection's state unchanged.
	Send(addr Addr, payload []byte) error

	// Poll returns the next buffered datagram and its source address, or
	// ok=false if nothing is currently available. It never blocks.
	Poll() (payload []byte, from Addr, ok bool)

	// LocalAddr returns the transport's bound local address, if any.
	LocalAddr() net.Addr

	// Close releases the transport's resources.
	Close() error
}
