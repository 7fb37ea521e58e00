package packetbuilder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestAckTrackerBitfield is P5: ack_sequence equals max(S) and bit i of the
// bitfield equals (max(S)-1-i) ∈ S.
func TestAckTrackerBitfield(t *testing.T) {
	var a AckTracker
	for _, seq := range []uint16{5, 3, 7, 6} {
		a.RecordReceived(seq)
	}

	seq, bitfield, haveAny := a.Ack()
	require.True(t, haveAny)
	require.Equal(t, uint16(7), seq, "ack_sequence must be max(S)")

	// S = {3,5,6,7}; bit i <=> (7-1-i) in S.
	require.Equal(t, uint32(0b1011), bitfield)

	require.True(t, a.Acked(7))
	require.True(t, a.Acked(6))
	require.True(t, a.Acked(5))
	require.False(t, a.Acked(4))
	require.True(t, a.Acked(3))
	require.False(t, a.Acked(2))
}

func TestAckTrackerEmpty(t *testing.T) {
	var a AckTracker
	_, _, haveAny := a.Ack()
	require.False(t, haveAny)
	require.False(t, a.Acked(0))
}

// TestAckTrackerOutOfOrderDoesNotRegress confirms an older sequence arriving
// after a newer one only sets its bit, without moving ack_sequence backward.
func TestAckTrackerOutOfOrderDoesNotRegress(t *testing.T) {
	var a AckTracker
	a.RecordReceived(10)
	a.RecordReceived(9)

	seq, _, _ := a.Ack()
	require.Equal(t, uint16(10), seq)
	require.True(t, a.Acked(9))
	require.True(t, a.Acked(10))
}

// TestAckTrackerLargeGapClearsBitfield confirms a jump of more than 32
// sequences forward resets the bitfield rather than leaving stale bits set.
func TestAckTrackerLargeGapClearsBitfield(t *testing.T) {
	var a AckTracker
	a.RecordReceived(1)
	a.RecordReceived(1 + 40)

	_, bitfield, _ := a.Ack()
	require.Equal(t, uint32(0), bitfield)
	require.False(t, a.Acked(1))
}
