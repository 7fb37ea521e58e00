package channel

import (
	"time"

	"github.com/appnet-org/netplay/pkg/tick"
)

// pendingMessage is one enqueued application message, possibly split into
// several fragment frames sharing a message id.
type pendingMessage struct {
	id            uint16
	frames        []OutgoingFrame
	acked         []bool
	firstSendTime time.Time
	lastSendTime  time.Time
	sent          bool
}

func (pm *pendingMessage) fullyAcked() bool {
	for _, a := range pm.acked {
		if !a {
			return false
		}
	}
	return true
}

// Sender is the send-side state machine for one channel instance on one
// connection. The retransmit bookkeeping (per-message send queue,
// RTT-scaled retransmit timeout, packet-sequence-to-message-id
// correlation) is grounded on pkg/custom/reliable/utils.go's
// ConnectionState.TxMsg/checkRetransmission, generalized from a per-RPC-call
// key to a per-channel message id key.
type Sender struct {
	Settings     Settings
	FragmentSize int
	RTT          func() time.Duration

	nextMessageID uint16
	pending       map[uint16]*pendingMessage
	order         []uint16 // insertion order of pending, for stable retransmit scans

	// unreliable/tick-buffered messages are single-shot: queued once then
	// dropped regardless of ack.
	unreliableQueue []*pendingMessage

	// seqToFrames correlates an outgoing packet sequence to the
	// (message id, fragment index) pairs it carried, so NotifyAck can mark
	// exactly the frames that rode that packet as acked.
	seqToFrames map[uint16][]frameRef

	// OnAcked, if set, is called with a message id the instant every fragment
	// of that message has been acked and it is dropped from pending. Used by
	// the replication wiring to advance a delta-compression baseline once
	// its carrying message is confirmed delivered, reusing this channel's
	// existing ack bookkeeping instead of a parallel mechanism.
	OnAcked func(messageID uint16)
}

type frameRef struct {
	messageID     uint16
	fragmentIndex uint8
}

func NewSender(settings Settings, fragmentSize int, rtt func() time.Duration) *Sender {
	return &Sender{
		Settings:      settings,
		FragmentSize:  fragmentSize,
		RTT:           rtt,
		pending:       make(map[uint16]*pendingMessage),
		seqToFrames:   make(map[uint16][]frameRef),
	}
}

// Enqueue splits payload into one or more fragment frames (orthogonal to
// channel mode, per spec §4.2) and queues them for the next CollectReady
// call. Returns the assigned message id; every call takes the next id,
// whatever the channel mode.
func (s *Sender) Enqueue(payload []byte, now time.Time, atTick tick.Tick) uint16 {
	id := s.nextMessageID
	s.nextMessageID++

	frames := s.fragmentPayload(payload, id, atTick)
	for i := range frames {
		frames[i].QueuedAt = now
	}
	pm := &pendingMessage{
		id:            id,
		frames:        frames,
		acked:         make([]bool, len(frames)),
		firstSendTime: now,
	}

	if s.Settings.Mode.Reliable() {
		s.pending[id] = pm
		s.order = append(s.order, id)
	} else {
		s.unreliableQueue = append(s.unreliableQueue, pm)
	}
	return id
}

func (s *Sender) fragmentPayload(payload []byte, id uint16, atTick tick.Tick) []OutgoingFrame {
	if s.FragmentSize <= 0 || len(payload) <= s.FragmentSize {
		return []OutgoingFrame{{
			MessageID: id,
			Tick:      atTick,
			Priority:  s.Settings.Priority,
			Payload:   payload,
		}}
	}
	numFragments := (len(payload) + s.FragmentSize - 1) / s.FragmentSize
	frames := make([]OutgoingFrame, 0, numFragments)
	for i := 0; i < numFragments; i++ {
		start := i * s.FragmentSize
		end := start + s.FragmentSize
		if end > len(payload) {
			end = len(payload)
		}
		frames = append(frames, OutgoingFrame{
			MessageID:     id,
			Tick:          atTick,
			IsFragment:    true,
			FragmentIndex: uint8(i),
			NumFragments:  uint8(numFragments),
			Priority:      s.Settings.Priority,
			Payload:       payload[start:end],
		})
	}
	return frames
}

func (s *Sender) retransmitTimeout() time.Duration {
	rtt := time.Duration(0)
	if s.RTT != nil {
		rtt = s.RTT()
	}
	scaled := time.Duration(float32(rtt) * s.Settings.RTTMultiplier)
	if scaled > s.Settings.RetransmitAfter {
		return scaled
	}
	return s.Settings.RetransmitAfter
}

// CollectReady returns every frame that should go out this packet-builder
// cycle: unreliable/tick-buffered messages exactly once, reliable messages
// on first send and again whenever the retransmit timeout has elapsed
// without an ack.
func (s *Sender) CollectReady(now time.Time) []OutgoingFrame {
	var ready []OutgoingFrame

	for _, pm := range s.unreliableQueue {
		ready = append(ready, pm.frames...)
	}
	s.unreliableQueue = s.unreliableQueue[:0]

	timeout := s.retransmitTimeout()
	for _, id := range s.order {
		pm, ok := s.pending[id]
		if !ok {
			continue
		}
		if pm.fullyAcked() {
			continue
		}
		if !pm.sent {
			pm.sent = true
			pm.lastSendTime = now
			ready = append(ready, pendingUnackedFrames(pm)...)
			continue
		}
		if now.Sub(pm.lastSendTime) > timeout {
			pm.lastSendTime = now
			ready = append(ready, pendingUnackedFrames(pm)...)
		}
	}
	return ready
}

func pendingUnackedFrames(pm *pendingMessage) []OutgoingFrame {
	var out []OutgoingFrame
	for i, f := range pm.frames {
		if !pm.acked[i] {
			out = append(out, f)
		}
	}
	return out
}

// NotifyPacketSent records which (message id, fragment index) frames rode
// outgoing packet sequence seq, so a later ack of that sequence can mark
// exactly those frames acked.
func (s *Sender) NotifyPacketSent(seq uint16, frames []OutgoingFrame) {
	if len(frames) == 0 {
		return
	}
	refs := make([]frameRef, len(frames))
	for i, f := range frames {
		refs[i] = frameRef{messageID: f.MessageID, fragmentIndex: f.FragmentIndex}
	}
	s.seqToFrames[seq] = append(s.seqToFrames[seq], refs...)
}

// NotifyAck marks every frame that rode packet sequence seq as acked,
// garbage-collecting fully-acked messages from the pending set.
func (s *Sender) NotifyAck(seq uint16) {
	refs, ok := s.seqToFrames[seq]
	if !ok {
		return
	}
	delete(s.seqToFrames, seq)
	for _, ref := range refs {
		pm, ok := s.pending[ref.messageID]
		if !ok {
			continue
		}
		if int(ref.fragmentIndex) < len(pm.acked) {
			pm.acked[ref.fragmentIndex] = true
		}
		if pm.fullyAcked() {
			delete(s.pending, ref.messageID)
			if s.OnAcked != nil {
				s.OnAcked(ref.messageID)
			}
		}
	}
}

// Pending returns the number of reliable messages still awaiting ack, for
// tests and observability.
func (s *Sender) Pending() int { return len(s.pending) }
