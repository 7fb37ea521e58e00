package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/appnet-org/netplay/pkg/common"
	"github.com/appnet-org/netplay/pkg/neterr"
)

func zeroRTT() time.Duration { return 0 }

// E1 (ordered-reliable through loss) and E2 (sequenced-unreliable reorder)
// are exercised in pkg/packetbuilder's slot_test.go instead of here: both
// scenarios only say anything about the real wire path when frames are
// actually run through EncodeSlot/DecodeSlot, which this package cannot
// import (packetbuilder imports channel, not the other way around).

// TestReliableDeliveryExactlyOnce is property 1 for an unordered-reliable
// channel: duplicates (retransmits) must be delivered
// exactly once.
func TestReliableDeliveryExactlyOnce(t *testing.T) {
	settings := DefaultSettings(UnorderedReliable)
	receiver := NewReceiver(settings, common.NewBufferPool(), 0, &neterr.Counters{})
	now := time.Now()

	var delivered int
	for _, id := range []uint16{0, 1, 1, 0, 2} {
		delivered += len(receiver.HandleFrame(IncomingFrame{MessageID: id, Payload: []byte{byte(id)}}, now))
	}
	require.Equal(t, 3, delivered, "each distinct message id delivered exactly once despite retransmit duplicates")
}

func TestSenderRetransmitsUntilAcked(t *testing.T) {
	settings := DefaultSettings(UnorderedReliable)
	settings.RetransmitAfter = 10 * time.Millisecond
	sender := NewSender(settings, 0, zeroRTT)
	now := time.Now()

	id := sender.Enqueue([]byte("hello"), now, 0)
	first := sender.CollectReady(now)
	require.Len(t, first, 1)

	// Not yet acked: retransmitted after the timeout elapses.
	now = now.Add(20 * time.Millisecond)
	second := sender.CollectReady(now)
	require.Len(t, second, 1)
	require.Equal(t, 1, sender.Pending())

	sender.NotifyPacketSent(1, second)
	sender.NotifyAck(1)
	require.Equal(t, 0, sender.Pending())

	now = now.Add(20 * time.Millisecond)
	require.Empty(t, sender.CollectReady(now), "fully acked message must not be retransmitted again")
	_ = id
}
