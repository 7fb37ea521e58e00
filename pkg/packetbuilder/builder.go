package packetbuilder

import (
	"sort"
	"time"

	"github.com/appnet-org/netplay/pkg/channel"
	"github.com/appnet-org/netplay/pkg/common"
	"github.com/appnet-org/netplay/pkg/netid"
	"github.com/appnet-org/netplay/pkg/wire"
)

// candidate is one frame awaiting packing, with its resolved channel
// metadata and pre-encoded slot bytes so the greedy packer can measure it
// without re-encoding on every placement attempt.
type candidate struct {
	channelID netid.ID
	frame     channel.OutgoingFrame
	reliable  bool
	slotBytes []byte
	priority  float64
}

// Builder implements the per-send-cycle packet assembly algorithm from
// spec.md §4.3: collect ready frames from every channel sender, sort by
// effective priority, greedily pack into one or more MTU-bounded packets,
// stamp the ack-carrying header, and notify senders which frames rode which
// outgoing sequence. The multi-packet greedy fill (keep packing until a
// frame would overflow, carry the remainder into the next packet) is
// grounded on pkg/transport/symphony_fragmentation.go's slack-packing
// phases, generalized from byte-level stream packing to frame-level
// message packing.
type Builder struct {
	Registry       *channel.Registry
	Channels       *channel.Set
	MaxPacketBytes int
	Pool           *common.BufferPool
	Ack            *AckTracker
	Budget         *Budget

	nextSeq uint16
}

func NewBuilder(registry *channel.Registry, channels *channel.Set, maxPacketBytes int, pool *common.BufferPool, ack *AckTracker, budget *Budget) *Builder {
	return &Builder{
		Registry:       registry,
		Channels:       channels,
		MaxPacketBytes: maxPacketBytes,
		Pool:           pool,
		Ack:            ack,
		Budget:         budget,
	}
}

// collect gathers ready frames from every channel sender and pre-encodes
// each into its MessageSlot bytes, computing an age-weighted effective
// priority: static channel priority times (1 + seconds since the frame was
// first queued), so a frame stuck behind higher-priority traffic
// eventually wins out.
func (b *Builder) collect(now time.Time) []candidate {
	var out []candidate
	b.Channels.ForEachSender(func(id netid.ID, sender *channel.Sender) {
		settings, ok := b.Registry.Settings(id)
		if !ok {
			return
		}
		tickBuffered := settings.Mode.TickBuffered()
		for _, f := range sender.CollectReady(now) {
			w := wire.NewWriter(b.Pool.GetSize(0))
			EncodeSlot(w, id, settings.Mode.Reliable(), settings.Mode.Sequenced(), tickBuffered, f)
			age := now.Sub(f.QueuedAt).Seconds()
			if age < 0 {
				age = 0
			}
			out = append(out, candidate{
				channelID: id,
				frame:     f,
				reliable:  settings.Mode.Reliable(),
				slotBytes: w.Bytes(),
				priority:  float64(settings.Priority) * (1 + age),
			})
		}
	})
	return out
}

// Pack runs one full send-cycle: collect, sort, greedily fill one or more
// packets, stamp headers, notify senders, and return the serialized
// packets ready for the transport.
func (b *Builder) Pack(now time.Time) [][]byte {
	candidates := b.collect(now)
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].priority > candidates[j].priority
	})

	ackSeq, ackBitfield, _ := b.Ack.Ack()

	var packets [][]byte
	var cur []candidate
	curSize := HeaderSize

	flush := func() {
		if len(cur) == 0 {
			return
		}
		packets = append(packets, b.serialize(cur, ackSeq, ackBitfield))
		b.notifySenders(cur)
		cur = nil
		curSize = HeaderSize
	}

	for _, c := range candidates {
		if b.Budget != nil && !b.Budget.Admit(len(c.slotBytes), now) {
			continue
		}
		if curSize+len(c.slotBytes) > b.MaxPacketBytes {
			flush()
		}
		if len(c.slotBytes) > b.MaxPacketBytes-HeaderSize {
			// A single slot alone cannot fit even an empty packet; this
			// indicates a fragment sized larger than FragmentSize allows,
			// which the channel sender should never produce. Drop it
			// rather than emit an oversize packet.
			continue
		}
		cur = append(cur, c)
		curSize += len(c.slotBytes)
	}
	flush()
	return packets
}

func (b *Builder) serialize(frames []candidate, ackSeq uint16, ackBitfield uint32) []byte {
	seq := b.nextSeq
	b.nextSeq++

	w := wire.NewWriter(b.Pool.GetSize(0))
	Header{Kind: KindData, Sequence: seq, AckSequence: ackSeq, AckBitfield: ackBitfield}.Encode(w)
	for _, c := range frames {
		w.WriteBytes(c.slotBytes)
	}
	return w.Bytes()
}

func (b *Builder) notifySenders(frames []candidate) {
	byChannel := make(map[netid.ID][]channel.OutgoingFrame)
	for _, c := range frames {
		if !c.reliable {
			continue
		}
		byChannel[c.channelID] = append(byChannel[c.channelID], c.frame)
	}
	seq := b.nextSeq - 1
	for id, fs := range byChannel {
		if sender, ok := b.Channels.Sender(id); ok {
			sender.NotifyPacketSent(seq, fs)
		}
	}
}

// NotifyAck folds an inbound ack_sequence/ack_bitfield pair into every
// channel's sender, per spec.md §4.3: "When a packet is acknowledged ...
// notify each channel sender of every message-id that rode it."
func (b *Builder) NotifyAck(ackSequence uint16, ackBitfield uint32) {
	newlyAcked := []uint16{ackSequence}
	for i := 0; i < 32; i++ {
		if ackBitfield&(1<<uint(i)) != 0 {
			newlyAcked = append(newlyAcked, ackSequence-1-uint16(i))
		}
	}
	b.Channels.ForEachSender(func(_ netid.ID, sender *channel.Sender) {
		for _, seq := range newlyAcked {
			sender.NotifyAck(seq)
		}
	})
}
