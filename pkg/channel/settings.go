// Package channel implements the six channel reliability/ordering state
// machines sitting above the unreliable datagram transport: per-kind send
// buffers (senders) and mirror buffers with ordering/dedup/ack emission
// (receivers).
package channel

import (
	"time"

	"github.com/appnet-org/netplay/pkg/netid"
)

// Mode identifies one of the six channel state machines.
type Mode uint8

const (
	UnorderedUnreliable Mode = iota
	SequencedUnreliable
	UnorderedReliable
	OrderedReliable
	SequencedReliable
	TickBuffered
)

func (m Mode) Reliable() bool {
	switch m {
	case UnorderedReliable, OrderedReliable, SequencedReliable:
		return true
	default:
		return false
	}
}

func (m Mode) Ordered() bool {
	return m == OrderedReliable
}

func (m Mode) Sequenced() bool {
	return m == SequencedUnreliable || m == SequencedReliable
}

func (m Mode) TickBuffered() bool {
	return m == TickBuffered
}

// Direction constrains which peer may send on a channel.
type Direction uint8

const (
	ClientToServer Direction = iota
	ServerToClient
	Bidirectional
)

// Settings configures one registered channel kind, matching spec.md §3's
// Channel settings record.
type Settings struct {
	Mode            Mode
	Direction       Direction
	Priority        float32
	SendFrequency   time.Duration
	RetransmitAfter time.Duration
	RTTMultiplier   float32
}

// DefaultSettings returns sane defaults for a reliable, bidirectional,
// medium-priority channel; callers override fields as needed.
func DefaultSettings(mode Mode) Settings {
	return Settings{
		Mode:            mode,
		Direction:       Bidirectional,
		Priority:        1.0,
		SendFrequency:   0,
		RetransmitAfter: 200 * time.Millisecond,
		RTTMultiplier:   1.5,
	}
}

// Registry maps a registered channel Kind to its Settings, mirroring the
// packet-registry idiom used for message/component kinds (netid.Registry)
// but with a settings payload instead of a codec function table.
type Registry struct {
	kinds    *netid.Registry
	settings map[netid.ID]Settings
}

func NewRegistry() *Registry {
	return &Registry{
		kinds:    netid.NewRegistry(),
		settings: make(map[netid.ID]Settings),
	}
}

// RegisterChannel assigns a stable NetId to name and stores its settings.
func (r *Registry) RegisterChannel(name string, settings Settings) *netid.Kind {
	k := r.kinds.Register(name, nil, nil, nil)
	r.settings[k.ID] = settings
	return k
}

func (r *Registry) Settings(id netid.ID) (Settings, bool) {
	s, ok := r.settings[id]
	return s, ok
}

func (r *Registry) Lookup(id netid.ID) (*netid.Kind, bool) {
	return r.kinds.Lookup(id)
}

func (r *Registry) Freeze() { r.kinds.Freeze() }
