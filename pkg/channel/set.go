package channel

import (
	"time"

	"github.com/appnet-org/netplay/pkg/common"
	"github.com/appnet-org/netplay/pkg/neterr"
	"github.com/appnet-org/netplay/pkg/netid"
)

// Set is the per-connection collection of Sender/Receiver pairs, one per
// registered channel kind, instantiated once a connection reaches
// Connected. The channel Registry itself (kinds + settings) is process-wide
// and shared read-only across every Set.
type Set struct {
	registry *Registry
	senders  map[netid.ID]*Sender
	receivers map[netid.ID]*Receiver
}

// NewSet builds a Sender/Receiver for every channel currently registered.
// Called once per connection after the registry is frozen.
func NewSet(registry *Registry, pool *common.BufferPool, fragmentSize int, fragmentTimeout time.Duration, rtt func() time.Duration, counters *neterr.Counters) *Set {
	s := &Set{
		registry:  registry,
		senders:   make(map[netid.ID]*Sender),
		receivers: make(map[netid.ID]*Receiver),
	}
	for id, settings := range registry.settings {
		s.senders[id] = NewSender(settings, fragmentSize, rtt)
		s.receivers[id] = NewReceiver(settings, pool, fragmentTimeout, counters)
	}
	return s
}

func (s *Set) Sender(id netid.ID) (*Sender, bool) {
	sn, ok := s.senders[id]
	return sn, ok
}

func (s *Set) Receiver(id netid.ID) (*Receiver, bool) {
	rc, ok := s.receivers[id]
	return rc, ok
}

// ForEachSender iterates every channel's sender, in no particular order; the
// packet builder is responsible for priority ordering across channels.
func (s *Set) ForEachSender(fn func(id netid.ID, sender *Sender)) {
	for id, sn := range s.senders {
		fn(id, sn)
	}
}

// ExpireFragments runs fragment-reassembly timeout sweeps across every
// channel's receiver, called once per tick.
func (s *Set) ExpireFragments(now time.Time) {
	for _, rc := range s.receivers {
		rc.ExpireFragments(now)
	}
}

// ForEachReceiver iterates every channel's receiver, in no particular
// order.
func (s *Set) ForEachReceiver(fn func(id netid.ID, receiver *Receiver)) {
	for id, rc := range s.receivers {
		fn(id, rc)
	}
}
