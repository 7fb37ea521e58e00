// Package packetbuilder packs ready channel frames into MTU-bounded
// packets, stamps the ack-carrying header, and enforces a bandwidth budget.
package packetbuilder

import "github.com/appnet-org/netplay/pkg/wire"

// Kind identifies the packet_kind header byte.
type Kind uint8

const (
	KindData Kind = iota + 1
	KindKeepAlive
	KindPing
	KindPong
	KindDataFragment
	// KindConnectRequest/Response/Denied carry the handshake, per spec.md
	// §4.10: a client's connect-token offer and the server's accept/deny.
	// They precede a Connected state and so are never subject to the
	// ack-carrying body the other kinds share; the header is still stamped
	// uniformly for simplicity.
	KindConnectRequest
	KindConnectResponse
	KindConnectDenied
)

// HeaderSize is the fixed on-wire size of Header: 1 (kind) + 2 (sequence) +
// 2 (ack_sequence) + 4 (ack_bitfield) bytes.
const HeaderSize = 1 + 2 + 2 + 4

// Header is the fixed packet header from spec.md §6, identical for every
// packet_kind. Data/DataFragment carry message slots after it, Ping carries
// an id and a tick, Pong an id and two timestamps; KeepAlive carries no body.
type Header struct {
	Kind        Kind
	Sequence    uint16
	AckSequence uint16
	AckBitfield uint32
}

func (h Header) Encode(w *wire.Writer) {
	w.WriteU8(uint8(h.Kind))
	w.WriteU16(h.Sequence)
	w.WriteU16(h.AckSequence)
	w.WriteU32(h.AckBitfield)
}

func DecodeHeader(r *wire.Reader) (Header, error) {
	var h Header
	k, err := r.ReadU8()
	if err != nil {
		return h, err
	}
	h.Kind = Kind(k)
	if h.Sequence, err = r.ReadU16(); err != nil {
		return h, err
	}
	if h.AckSequence, err = r.ReadU16(); err != nil {
		return h, err
	}
	if h.AckBitfield, err = r.ReadU32(); err != nil {
		return h, err
	}
	return h, nil
}
