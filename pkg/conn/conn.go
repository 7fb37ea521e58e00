// Package conn implements the connection state machine: handshake,
// keepalive, disconnect detection, and the per-peer resources (channel
// state, history buffers, mirrored entities) whose lifetime is tied to one
// connection.
package conn

import (
	"time"

	"github.com/appnet-org/netplay/pkg/logging"
	"go.uber.org/zap"
)

// State is one of the four connection states from spec.md §4.10.
type State uint8

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// PeerId identifies either the server or a specific client, per spec.md §3.
// ClientID is distinct from the connect token's ClientID: the latter
// authenticates a connection attempt, this one names an established peer.
type PeerId struct {
	IsServer bool
	ClientID uint64
}

func (p PeerId) String() string {
	if p.IsServer {
		return "server"
	}
	return "client"
}

// DenialReason explains why a handshake attempt was rejected.
type DenialReason uint8

const (
	DenyTokenInvalid DenialReason = iota
	DenyTokenExpired
	DenyTokenReplayed
	DenyAlreadyConnected
	DenyServerFull
	DenyInternalError
)

func (d DenialReason) String() string {
	switch d {
	case DenyTokenInvalid:
		return "token invalid"
	case DenyTokenExpired:
		return "token expired"
	case DenyTokenReplayed:
		return "token replayed"
	case DenyAlreadyConnected:
		return "already connected"
	case DenyServerFull:
		return "server full"
	default:
		return "internal error"
	}
}

// ReleaseFunc is invoked exactly once when a Connection transitions to
// Disconnected, so the host can free channel state, history buffers, and
// despawn mirrored entities owned by this connection, per spec.md §3's
// Lifecycles.
type ReleaseFunc func(reason string)

// Connection is the state machine for one peer connection. All mutation
// happens from the single cooperative task that owns this connection (see
// spec.md §5); there is no internal locking.
type Connection struct {
	Peer  PeerId
	state State

	keepAliveInterval time.Duration
	disconnectTimeout time.Duration

	lastPacketReceived time.Time
	lastPacketSent     time.Time

	onRelease ReleaseFunc
	log       *logging.Logger
}

func New(peer PeerId, keepAliveInterval, disconnectTimeout time.Duration, onRelease ReleaseFunc) *Connection {
	return &Connection{
		Peer:              peer,
		state:             Disconnected,
		keepAliveInterval: keepAliveInterval,
		disconnectTimeout: disconnectTimeout,
		onRelease:         onRelease,
		log:               logging.With(zap.String("peer", peer.String())),
	}
}

func (c *Connection) State() State { return c.state }

// BeginConnecting transitions Disconnected -> Connecting, starting the
// handshake. now seeds the keepalive/disconnect clocks so a slow handshake
// doesn't immediately read as a timeout.
func (c *Connection) BeginConnecting(now time.Time) {
	c.state = Connecting
	c.lastPacketReceived = now
	c.lastPacketSent = now
	c.log.Debug("connection connecting")
}

// CompleteHandshake transitions Connecting -> Connected once the token's
// private section has been opened successfully and accepted.
func (c *Connection) CompleteHandshake(now time.Time) {
	if c.state != Connecting {
		return
	}
	c.state = Connected
	c.lastPacketReceived = now
	c.log.Debug("connection established")
}

// DenyHandshake rejects a Connecting attempt with reason, transitioning
// straight to Disconnected without ever having been Connected, per
// spec.md §7's Handshake error kind.
func (c *Connection) DenyHandshake(reason DenialReason) {
	c.log.Debug("handshake denied", zap.String("reason", reason.String()))
	c.transitionToDisconnected("handshake denied: " + reason.String())
}

// OnPacketReceived resets the keepalive clock. Call this for every packet
// successfully parsed from this peer, regardless of kind.
func (c *Connection) OnPacketReceived(now time.Time) {
	c.lastPacketReceived = now
}

// OnPacketSent records the last send time, used to decide when a KeepAlive
// packet is due.
func (c *Connection) OnPacketSent(now time.Time) {
	c.lastPacketSent = now
}

// ShouldSendKeepAlive reports whether it's been at least keepAliveInterval
// since the last packet was sent to this peer.
func (c *Connection) ShouldSendKeepAlive(now time.Time) bool {
	return c.state == Connected && now.Sub(c.lastPacketSent) >= c.keepAliveInterval
}

// CheckTimeout is the cooperative poll the host calls once per tick: if no
// packet has been received within disconnectTimeout, the connection is
// force-disconnected. This realizes spec.md §4.10's keepalive timeout and
// §7's "reliable retransmit with no ack for disconnect_timeout -> force
// disconnect" without any background goroutine touching connection state.
func (c *Connection) CheckTimeout(now time.Time) (timedOut bool) {
	if c.state != Connected && c.state != Connecting {
		return false
	}
	if now.Sub(c.lastPacketReceived) >= c.disconnectTimeout {
		c.transitionToDisconnected("timeout")
		return true
	}
	return false
}

// BeginDisconnect starts a graceful disconnect (host-initiated).
func (c *Connection) BeginDisconnect() {
	if c.state == Disconnected {
		return
	}
	c.state = Disconnecting
	c.log.Debug("connection disconnecting")
}

// Terminate force-closes the connection immediately, used for Transport and
// Fatal errors per spec.md §7 ("Unrecoverable errors terminate exactly one
// connection without affecting others").
func (c *Connection) Terminate(reason string) {
	c.transitionToDisconnected(reason)
}

func (c *Connection) transitionToDisconnected(reason string) {
	if c.state == Disconnected {
		return
	}
	c.state = Disconnected
	c.log.Info("connection disconnected", zap.String("reason", reason))
	if c.onRelease != nil {
		c.onRelease(reason)
	}
}
