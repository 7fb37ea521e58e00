package packetbuilder

// AckTracker records which outgoing packet sequences this peer has received
// from the remote side, and stamps outgoing headers with the matching
// ack_sequence / ack_bitfield pair: bit i of the bitfield set means
// (ack_sequence - 1 - i) was received, per spec.md §6 and testable
// property 5.
type AckTracker struct {
	highest  uint16
	haveAny  bool
	bitfield uint32 // bit i => highest-1-i received
}

// RecordReceived folds a newly received packet sequence into the tracker.
func (a *AckTracker) RecordReceived(seq uint16) {
	if !a.haveAny {
		a.highest = seq
		a.haveAny = true
		a.bitfield = 0
		return
	}
	diff := int32(int16(seq - a.highest))
	switch {
	case diff == 0:
		return
	case diff > 0:
		shift := uint32(diff)
		if shift > 32 {
			a.bitfield = 0
		} else {
			// the previous "highest" becomes bit (shift-1)
			a.bitfield = (a.bitfield << shift) | (1 << (shift - 1))
		}
		a.highest = seq
	default:
		idx := uint32(-diff) - 1
		if idx < 32 {
			a.bitfield |= 1 << idx
		}
	}
}

// Ack returns the current (ack_sequence, ack_bitfield) pair to stamp onto an
// outgoing header. haveAny is false before any packet has ever been
// received, in which case the caller should stamp zero values.
func (a *AckTracker) Ack() (ackSequence uint16, ackBitfield uint32, haveAny bool) {
	return a.highest, a.bitfield, a.haveAny
}

// Acked reports whether sequence seq is known to have been received,
// matching testable property 5's "(max(S) − 1 − i) ∈ S" definition exactly.
func (a *AckTracker) Acked(seq uint16) bool {
	if !a.haveAny {
		return false
	}
	if seq == a.highest {
		return true
	}
	diff := int32(int16(a.highest - seq))
	if diff <= 0 {
		return false
	}
	idx := uint32(diff) - 1
	if idx >= 32 {
		return false
	}
	return a.bitfield&(1<<idx) != 0
}
