package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/appnet-org/netplay/pkg/common"
	"github.com/appnet-org/netplay/pkg/neterr"
	"github.com/appnet-org/netplay/pkg/tick"
)

// TestTickBufferedHoldsUntilMatchingTick confirms a TickBuffered message is
// not delivered by HandleFrame itself, stays buffered while the local tick
// is still behind it, and releases exactly when ReleaseTickBuffered is
// called with the matching tick.
func TestTickBufferedHoldsUntilMatchingTick(t *testing.T) {
	settings := DefaultSettings(TickBuffered)
	receiver := NewReceiver(settings, common.NewBufferPool(), 0, &neterr.Counters{})
	now := time.Now()

	delivered := receiver.HandleFrame(IncomingFrame{MessageID: 1, Tick: tick.Tick(10), Payload: []byte("a")}, now)
	require.Empty(t, delivered, "a tick-buffered message is never delivered straight out of HandleFrame")

	require.Empty(t, receiver.ReleaseTickBuffered(tick.Tick(9)), "must not release before the local tick catches up")

	out := receiver.ReleaseTickBuffered(tick.Tick(10))
	require.Len(t, out, 1)
	require.Equal(t, []byte("a"), out[0].Payload)

	require.Empty(t, receiver.ReleaseTickBuffered(tick.Tick(10)), "already-released message must not be delivered twice")
}

// TestTickBufferedDiscardsStaleArrival confirms a tick-buffered message
// whose tick has already been passed by the local clock (it arrived too
// late) is discarded rather than delivered late.
func TestTickBufferedDiscardsStaleArrival(t *testing.T) {
	settings := DefaultSettings(TickBuffered)
	receiver := NewReceiver(settings, common.NewBufferPool(), 0, &neterr.Counters{})
	now := time.Now()

	receiver.HandleFrame(IncomingFrame{MessageID: 1, Tick: tick.Tick(5), Payload: []byte("late")}, now)

	require.Empty(t, receiver.ReleaseTickBuffered(tick.Tick(8)), "a message stamped for a tick already passed must be discarded, not delivered")
}
