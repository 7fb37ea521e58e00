package channel

import (
	"time"

	"github.com/appnet-org/netplay/pkg/common"
	"github.com/appnet-org/netplay/pkg/fragment"
	"github.com/appnet-org/netplay/pkg/neterr"
	"github.com/appnet-org/netplay/pkg/tick"
)

// dedupWindowSize is the number of most-recent message ids a reliable
// receiver remembers for duplicate detection, per spec.md §4.2.
const dedupWindowSize = 64

// Receiver is the receive-side state machine for one channel instance.
// Mirrors Sender's mode dispatch; the sliding dedup window reuses Bitset,
// the per-mode ordering/drop rules are implemented directly from spec.md
// §4.2's per-mode bullet list.
type Receiver struct {
	Settings Settings
	reasm    *fragment.Reassembler

	// reliable dedup window: bit i == message id (highestSeen - i) seen.
	seen        *Bitset
	highestSeen uint16
	haveAny     bool

	// sequenced (reliable or unreliable): drop anything <= lastSeen.
	lastSeenSequenced uint16
	haveSequenced     bool

	// ordered-reliable: release strictly ascending, buffering gaps.
	nextOrderedID uint16
	orderedBuf    map[uint16][]byte

	// tick-buffered: held here until ReleaseTickBuffered is called with a
	// local tick that has caught up to (or passed) the message's stamped
	// tick; release exactly at the matching tick, discard anything whose
	// tick has already passed.
	tickPending []tickBufferedEntry

	Counters *neterr.Counters
}

// tickBufferedEntry is one TickBuffered-mode message awaiting its release
// tick.
type tickBufferedEntry struct {
	tick tick.Tick
	msg  Delivered
}

func NewReceiver(settings Settings, pool *common.BufferPool, fragmentTimeout time.Duration, counters *neterr.Counters) *Receiver {
	return &Receiver{
		Settings:   settings,
		reasm:      fragment.NewReassembler(pool, fragmentTimeout),
		seen:       NewBitset(dedupWindowSize),
		orderedBuf: make(map[uint16][]byte),
		Counters:   counters,
	}
}

// Delivered is one fully-reassembled message ready for application code, in
// the order this Receiver decided to release it.
type Delivered struct {
	MessageID uint16
	Payload   []byte
}

// HandleFrame folds one incoming wire frame into the receiver's state and
// returns zero or more messages newly ready for delivery to the
// application (zero for a fragment that doesn't complete its set yet, a
// buffered out-of-order message, or a tick-buffered message not yet due;
// more than one when releasing a frame unblocks a run of already-buffered
// ordered messages).
func (r *Receiver) HandleFrame(f IncomingFrame, now time.Time) []Delivered {
	payload := f.Payload
	if f.IsFragment {
		full, complete := r.reasm.Process(f.MessageID, f.FragmentIndex, f.NumFragments, f.Payload, now)
		if !complete {
			return nil
		}
		payload = full
	}

	switch r.Settings.Mode {
	case UnorderedUnreliable:
		return []Delivered{{MessageID: f.MessageID, Payload: payload}}

	case SequencedUnreliable:
		return r.handleSequenced(f.MessageID, payload)

	case UnorderedReliable:
		if r.dedupSeen(f.MessageID) {
			return nil
		}
		return []Delivered{{MessageID: f.MessageID, Payload: payload}}

	case OrderedReliable:
		// Ids behind nextOrderedID were already delivered; any other id is
		// buffered or released, even one older than the dedup window.
		r.dedupSeen(f.MessageID)
		if int16(f.MessageID-r.nextOrderedID) < 0 {
			return nil
		}
		return r.releaseOrdered(f.MessageID, payload)

	case SequencedReliable:
		// Still dedup/ack-worthy (the sender retransmits until acked) but
		// delivery follows sequenced-drop semantics, not ordered buffering.
		r.dedupSeen(f.MessageID) // record for ack purposes even if dropped below
		return r.handleSequenced(f.MessageID, payload)

	case TickBuffered:
		// Held until ReleaseTickBuffered says the local tick has caught up;
		// HandleFrame itself never delivers a tick-buffered message.
		r.tickPending = append(r.tickPending, tickBufferedEntry{
			tick: f.Tick,
			msg:  Delivered{MessageID: f.MessageID, Payload: payload},
		})
		return nil

	default:
		return nil
	}
}

func (r *Receiver) handleSequenced(id uint16, payload []byte) []Delivered {
	if r.haveSequenced && !sequenceNewer(id, r.lastSeenSequenced) {
		if r.Counters != nil {
			r.Counters.IncSequencedDrop()
		}
		return nil
	}
	r.lastSeenSequenced = id
	r.haveSequenced = true
	return []Delivered{{MessageID: id, Payload: payload}}
}

// sequenceNewer reports whether id is strictly newer than last under 16-bit
// wraparound, matching the tick-wrap comparison style used elsewhere in this
// module (message ids share the same monotonic-with-wraparound shape).
func sequenceNewer(id, last uint16) bool {
	return int16(id-last) > 0
}

func (r *Receiver) dedupSeen(id uint16) (duplicate bool) {
	if !r.haveAny {
		r.highestSeen = id
		r.haveAny = true
		r.seen.Set(0, true)
		return false
	}
	diff := int32(int16(id - r.highestSeen))
	switch {
	case diff == 0:
		return true
	case diff > 0:
		// id is newer than anything seen: shift the window forward.
		shift := uint32(diff)
		if shift >= dedupWindowSize {
			*r.seen = *NewBitset(dedupWindowSize)
		} else {
			shifted := NewBitset(dedupWindowSize)
			for i := uint32(0); i < dedupWindowSize-shift; i++ {
				if r.seen.Get(i) {
					shifted.Set(i+shift, true)
				}
			}
			r.seen = shifted
		}
		r.highestSeen = id
		r.seen.Set(0, true)
		return false
	default:
		// id is older than the current window head.
		idx := uint32(-diff)
		if idx >= dedupWindowSize {
			// Outside the window: treat conservatively as already seen so a
			// very late retransmit of an ancient message id is dropped
			// rather than redelivered.
			return true
		}
		if r.seen.Get(idx) {
			return true
		}
		r.seen.Set(idx, true)
		return false
	}
}

func (r *Receiver) releaseOrdered(id uint16, payload []byte) []Delivered {
	if !r.haveAny {
		r.nextOrderedID = id
	}
	if id != r.nextOrderedID {
		r.orderedBuf[id] = payload
		return nil
	}
	out := []Delivered{{MessageID: id, Payload: payload}}
	r.nextOrderedID++
	for {
		buf, ok := r.orderedBuf[r.nextOrderedID]
		if !ok {
			break
		}
		out = append(out, Delivered{MessageID: r.nextOrderedID, Payload: buf})
		delete(r.orderedBuf, r.nextOrderedID)
		r.nextOrderedID++
	}
	return out
}

// ReleaseTickBuffered returns every TickBuffered-mode message whose stamped
// tick equals localTick, and discards any whose tick is already strictly
// before localTick (arrived too late to be released on time). Messages
// stamped for a tick still ahead of localTick stay buffered. The channel
// set owner calls this once per connection per Tick, after StepLocal.
func (r *Receiver) ReleaseTickBuffered(localTick tick.Tick) []Delivered {
	if len(r.tickPending) == 0 {
		return nil
	}
	var due []Delivered
	remaining := r.tickPending[:0]
	for _, e := range r.tickPending {
		switch {
		case e.tick == localTick:
			due = append(due, e.msg)
		case tick.Before(e.tick, localTick):
			// stale: localTick has already passed this message's tick
			// without releasing it.
		default:
			remaining = append(remaining, e)
		}
	}
	r.tickPending = remaining
	return due
}

// ExpireFragments drops any partial fragment set older than the
// reassembler's timeout, per the fragment-timeout failure semantics in
// spec.md §4.10 (unreliable: dropped for good; reliable: the sender's
// natural retransmit will resend every fragment, so no extra action is
// needed here beyond freeing the stale partial buffers).
func (r *Receiver) ExpireFragments(now time.Time) []uint16 {
	expired := r.reasm.ExpireOlderThan(now)
	if r.Counters != nil && len(expired) > 0 {
		for range expired {
			r.Counters.IncFragmentDrop()
		}
	}
	return expired
}
