package tick

import "time"

// Kind identifies which of the four timelines a Timeline value belongs to.
type Kind uint8

const (
	Local Kind = iota
	Remote
	Input
	Interpolation
)

func (k Kind) String() string {
	switch k {
	case Local:
		return "local"
	case Remote:
		return "remote"
	case Input:
		return "input"
	case Interpolation:
		return "interpolation"
	default:
		return "unknown"
	}
}

// Timeline is one of the four shared-period clocks: Local advances one tick
// per fixed-step invocation; Remote estimates the peer's current tick;
// Input is the tick the client stamps onto outgoing inputs; Interpolation
// trails Remote for smooth playback of non-predicted entities.
type Timeline struct {
	Kind Kind
	tick Tick
}

func NewTimeline(kind Kind, start Tick) *Timeline {
	return &Timeline{Kind: kind, tick: start}
}

func (tl *Timeline) Tick() Tick { return tl.tick }

// Advance moves the timeline forward by n ticks (used by Local each fixed
// step, and by the sync controller's speedup/slowdown on Input).
func (tl *Timeline) Advance(n int32) {
	tl.tick = tl.tick.Add(n)
}

// Set hard-sets the timeline to an absolute tick (hard resync, or Remote
// being updated directly from an observed peer tick).
func (tl *Timeline) Set(t Tick) {
	tl.tick = t
}

// Manager owns all four timelines for one connection plus the RTT/jitter
// store that estimating Remote and Input depends on.
type Manager struct {
	TickDuration time.Duration

	local         *Timeline
	remote        *Timeline
	input         *Timeline
	interpolation *Timeline

	Ping *PingStore
}

func NewManager(tickDuration time.Duration) *Manager {
	return &Manager{
		TickDuration:  tickDuration,
		local:         NewTimeline(Local, 0),
		remote:        NewTimeline(Remote, 0),
		input:         NewTimeline(Input, 0),
		interpolation: NewTimeline(Interpolation, 0),
		Ping:          NewPingStore(),
	}
}

func (m *Manager) Local() *Timeline         { return m.local }
func (m *Manager) Remote() *Timeline        { return m.remote }
func (m *Manager) Input() *Timeline         { return m.input }
func (m *Manager) Interpolation() *Timeline { return m.interpolation }

// StepLocal advances the Local timeline by one tick, called once per
// FixedUpdate.
func (m *Manager) StepLocal() {
	m.local.Advance(1)
}

// UpdateRemoteFromPacket folds a newly observed peer tick into the Remote
// timeline estimate: peer_tick + half_rtt/tick_period, per spec.
func (m *Manager) UpdateRemoteFromPacket(peerTick Tick) {
	halfRTTTicks := int32(m.Ping.RTT() / (2 * m.TickDuration))
	m.remote.Set(peerTick.Add(halfRTTTicks))
}

// RecomputeInterpolation sets the Interpolation timeline to Remote minus the
// configured interpolation delay, never smaller than
// server_replication_send_interval plus a jitter margin.
func (m *Manager) RecomputeInterpolation(delayTicks uint16, replicationSendInterval time.Duration) {
	minDelay := int32(replicationSendInterval/m.TickDuration) + m.jitterMarginTicks()
	d := int32(delayTicks)
	if d < minDelay {
		d = minDelay
	}
	m.interpolation.Set(m.remote.Tick().Add(-d))
}

func (m *Manager) jitterMarginTicks() int32 {
	margin := int32(m.Ping.Jitter() / m.TickDuration)
	if margin < 1 {
		return 1
	}
	return margin
}
