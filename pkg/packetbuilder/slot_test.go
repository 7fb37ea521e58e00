package packetbuilder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/appnet-org/netplay/pkg/channel"
	"github.com/appnet-org/netplay/pkg/common"
	"github.com/appnet-org/netplay/pkg/neterr"
	"github.com/appnet-org/netplay/pkg/netid"
	"github.com/appnet-org/netplay/pkg/tick"
	"github.com/appnet-org/netplay/pkg/wire"
)

func zeroRTT() time.Duration { return 0 }

// roundTripSlot encodes f through EncodeSlot and decodes it back through
// DecodeSlot for channelID, so a test exercises the actual wire format
// instead of handing a Receiver an IncomingFrame it never decoded.
func roundTripSlot(t *testing.T, channelID netid.ID, settings channel.Settings, f channel.OutgoingFrame) channel.IncomingFrame {
	t.Helper()
	w := wire.NewWriter(nil)
	EncodeSlot(w, channelID, settings.Mode.Reliable(), settings.Mode.Sequenced(), settings.Mode.TickBuffered(), f)

	lookup := func(id netid.ID) (reliable, sequenced, tickBuffered bool, ok bool) {
		if id != channelID {
			return false, false, false, false
		}
		return settings.Mode.Reliable(), settings.Mode.Sequenced(), settings.Mode.TickBuffered(), true
	}
	slot, ok, err := DecodeSlot(wire.NewReader(w.Bytes()), lookup)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, channelID, slot.ChannelID)
	return slot.Frame
}

// TestOrderedReliableThroughLossOverTheWire is E1: 100 messages on an
// ordered-reliable channel, with every third packet dropped, must all
// arrive in order within a bounded number of retransmit rounds. Unlike a
// Sender-to-Receiver test that skips the wire, every frame here is actually
// run through EncodeSlot/DecodeSlot first.
func TestOrderedReliableThroughLossOverTheWire(t *testing.T) {
	const channelID netid.ID = 1
	settings := channel.DefaultSettings(channel.OrderedReliable)
	settings.RetransmitAfter = 10 * time.Millisecond
	sender := channel.NewSender(settings, 0, zeroRTT)
	receiver := channel.NewReceiver(settings, common.NewBufferPool(), 0, &neterr.Counters{})

	now := time.Now()
	for i := 0; i < 100; i++ {
		sender.Enqueue([]byte{byte(i)}, now, tick.Tick(i))
	}

	var delivered []byte
	for round := 0; round < 40 && len(delivered) < 100; round++ {
		ready := sender.CollectReady(now)
		for i, f := range ready {
			// drop every third packet, deterministically, by enqueue index mod 3
			if (int(f.Payload[0])+i)%3 == 0 && round < 30 {
				continue
			}
			wireFrame := roundTripSlot(t, channelID, settings, f)
			for _, d := range receiver.HandleFrame(wireFrame, now) {
				delivered = append(delivered, d.Payload[0])
			}
		}
		now = now.Add(20 * time.Millisecond)
	}

	require.Len(t, delivered, 100)
	for i, b := range delivered {
		require.Equal(t, byte(i), b, "ordered-reliable delivery must be a prefix-monotonic extension of send order")
	}
}

// TestSequencedUnreliableReorderOverTheWire is E2: ids 0,1,2 arrive as
// 0,2,1; the receiver must deliver 0,2 and drop 1 as a stale sequenced
// message. Each frame is round-tripped through EncodeSlot/DecodeSlot, which
// is what makes this test catch a sequence id that never reaches the wire.
func TestSequencedUnreliableReorderOverTheWire(t *testing.T) {
	const channelID netid.ID = 1
	settings := channel.DefaultSettings(channel.SequencedUnreliable)
	counters := &neterr.Counters{}
	receiver := channel.NewReceiver(settings, common.NewBufferPool(), 0, counters)
	now := time.Now()

	var delivered []uint16
	for _, id := range []uint16{0, 2, 1} {
		f := channel.OutgoingFrame{MessageID: id, Payload: []byte{byte(id)}}
		wireFrame := roundTripSlot(t, channelID, settings, f)
		for _, d := range receiver.HandleFrame(wireFrame, now) {
			delivered = append(delivered, d.MessageID)
		}
	}

	require.Equal(t, []uint16{0, 2}, delivered)
	require.Equal(t, uint64(1), counters.Snapshot().SequencedDrop)
}
