package conn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestTimeoutDisconnectsAndReleasesOnce is E6: no packet received for
// 15 seconds against a connected peer transitions it to Disconnected and
// fires the release callback exactly once.
func TestTimeoutDisconnectsAndReleasesOnce(t *testing.T) {
	var releases []string
	c := New(PeerId{IsServer: true}, 5*time.Second, 15*time.Second, func(reason string) {
		releases = append(releases, reason)
	})

	start := time.Now()
	c.BeginConnecting(start)
	c.CompleteHandshake(start)
	require.Equal(t, Connected, c.State())

	require.False(t, c.CheckTimeout(start.Add(10*time.Second)))
	require.Equal(t, Connected, c.State())

	timedOut := c.CheckTimeout(start.Add(15 * time.Second))
	require.True(t, timedOut)
	require.Equal(t, Disconnected, c.State())
	require.Len(t, releases, 1, "release must fire exactly once")

	// Further timeout polls on an already-disconnected connection are
	// no-ops: no second release.
	require.False(t, c.CheckTimeout(start.Add(30*time.Second)))
	require.Len(t, releases, 1)
}

func TestReceivedPacketResetsTimeoutClock(t *testing.T) {
	c := New(PeerId{}, time.Second, 15*time.Second, func(string) {})
	start := time.Now()
	c.BeginConnecting(start)
	c.CompleteHandshake(start)

	c.OnPacketReceived(start.Add(10 * time.Second))
	require.False(t, c.CheckTimeout(start.Add(20*time.Second)))
	require.Equal(t, Connected, c.State())
}

func TestDenyHandshakeGoesStraightToDisconnected(t *testing.T) {
	var released string
	c := New(PeerId{}, time.Second, time.Second, func(reason string) { released = reason })
	c.BeginConnecting(time.Now())
	c.DenyHandshake(DenyTokenExpired)

	require.Equal(t, Disconnected, c.State())
	require.Contains(t, released, "token expired")
}

func TestShouldSendKeepAlive(t *testing.T) {
	c := New(PeerId{}, 2*time.Second, 10*time.Second, func(string) {})
	start := time.Now()
	c.BeginConnecting(start)
	c.CompleteHandshake(start)
	c.OnPacketSent(start)

	require.False(t, c.ShouldSendKeepAlive(start.Add(time.Second)))
	require.True(t, c.ShouldSendKeepAlive(start.Add(3*time.Second)))
}
