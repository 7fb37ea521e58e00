// Package localpair implements an in-process transport.Transport pair
// connected by bounded channels, for same-process client/server tests and
// for the local (non-networked) collaborator named in spec.md §1. This is
// the concrete shape spec.md §9 describes for async transports in general:
// "a pair of single-producer single-consumer byte queues."
package localpair

import (
	"errors"
	"net"

	"github.com/appnet-org/netplay/pkg/transport"
)

// Addr names one end of a local pair.
type Addr string

func (a Addr) String() string { return string(a) }

type datagram struct {
	payload []byte
	from    Addr
}

// Transport is one end of an in-process pair; Send on one end delivers to
// the other end's Poll queue.
type Transport struct {
	self    Addr
	outbox  chan<- datagram
	inbox   <-chan datagram
	closed  bool
}

// NewPair builds two connected Transports named a and b with a bounded
// queue depth.
func NewPair(a, b Addr, queueDepth int) (*Transport, *Transport) {
	aToB := make(chan datagram, queueDepth)
	bToA := make(chan datagram, queueDepth)
	ta := &Transport{self: a, outbox: aToB, inbox: bToA}
	tb := &Transport{self: b, outbox: bToA, inbox: aToB}
	return ta, tb
}

func (t *Transport) Send(addr transport.Addr, payload []byte) error {
	if t.closed {
		return errors.New("localpair: send on closed transport")
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	select {
	case t.outbox <- datagram{payload: cp, from: t.self}:
		return nil
	default:
		return errors.New("localpair: peer queue full, datagram dropped")
	}
}

func (t *Transport) Poll() ([]byte, transport.Addr, bool) {
	select {
	case d, ok := <-t.inbox:
		if !ok {
			return nil, nil, false
		}
		return d.payload, d.from, true
	default:
		return nil, nil, false
	}
}

func (t *Transport) LocalAddr() net.Addr { return nil }

func (t *Transport) Close() error {
	t.closed = true
	return nil
}
