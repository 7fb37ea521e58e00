package tick

import "time"

// pingRingCapacity bounds the number of in-flight pings tracked at once so a
// late Pong can still be matched to its Ping even after several more pings
// have gone out, rather than only ever comparing against the single most
// recent one. See SPEC_FULL.md §4.6 for why this is supplemented beyond the
// distilled spec text.
const pingRingCapacity = 8

type inFlightPing struct {
	id      uint16
	sentAt  time.Time
	inUse   bool
}

// PingStore maintains RTT and jitter estimates from a ping/pong exchange:
// the client sends Ping{id} on a low-rate channel, the peer echoes
// Pong{ping_id, ping_received_time, pong_sent_time}, and RTT is recovered by
// subtracting the peer's own processing delay from the measured round trip.
type PingStore struct {
	nextID    uint16
	inFlight  [pingRingCapacity]inFlightPing
	smoothing float64

	rtt       time.Duration
	jitter    time.Duration
	haveFirst bool
}

func NewPingStore() *PingStore {
	return &PingStore{smoothing: 0.1}
}

// SetSmoothing configures the EWMA smoothing factor (rtt_estimate_smoothing
// in config), applied to both RTT and jitter updates.
func (p *PingStore) SetSmoothing(alpha float64) {
	p.smoothing = alpha
}

// SendPing allocates the next ping id, records its send time in the ring
// (evicting the oldest unmatched entry if the ring is full), and returns the
// id to stamp onto the outgoing Ping message.
func (p *PingStore) SendPing(now time.Time) uint16 {
	id := p.nextID
	p.nextID++
	slot := &p.inFlight[id%pingRingCapacity]
	slot.id = id
	slot.sentAt = now
	slot.inUse = true
	return id
}

// ReceivePong processes an incoming Pong, updating the RTT/jitter EWMA. Returns
// false if pingID doesn't match the ring's current occupant for that slot
// (already matched, or evicted by wraparound) — the Pong is then ignored.
func (p *PingStore) ReceivePong(pingID uint16, pingReceivedTime, pongSentTime, now time.Time) bool {
	slot := &p.inFlight[pingID%pingRingCapacity]
	if !slot.inUse || slot.id != pingID {
		return false
	}
	slot.inUse = false

	roundTrip := now.Sub(slot.sentAt)
	peerProcessing := pongSentTime.Sub(pingReceivedTime)
	sample := roundTrip - peerProcessing
	if sample < 0 {
		sample = 0
	}

	if !p.haveFirst {
		p.rtt = sample
		p.jitter = 0
		p.haveFirst = true
		return true
	}

	delta := sample - p.rtt
	if delta < 0 {
		delta = -delta
	}
	p.jitter = p.jitter + time.Duration(p.smoothing*float64(delta-p.jitter))
	p.rtt = p.rtt + time.Duration(p.smoothing*float64(sample-p.rtt))
	return true
}

func (p *PingStore) RTT() time.Duration    { return p.rtt }
func (p *PingStore) Jitter() time.Duration { return p.jitter }
