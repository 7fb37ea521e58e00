// Package prediction implements the per-tick history ring, misprediction
// detection, and resimulation driver from spec.md §4.8: client-side
// prediction of locally-controlled entities with rollback against
// authoritative confirmations.
package prediction

import "github.com/appnet-org/netplay/pkg/tick"

// DefaultDepth is the history ring's minimum depth in ticks, per spec.md
// §3: "fixed depth (default 20 ticks or one RTT, whichever is larger)".
const DefaultDepth = 20

// Depth picks the history ring depth for a given tick period and RTT
// estimate, per spec.md §3.
func Depth(tickPeriodSeconds, rttSeconds float64) int {
	if tickPeriodSeconds <= 0 {
		return DefaultDepth
	}
	rttTicks := int(rttSeconds/tickPeriodSeconds) + 1
	if rttTicks > DefaultDepth {
		return rttTicks
	}
	return DefaultDepth
}

type historyEntry struct {
	tick  tick.Tick
	value []byte
	set   bool
}

// History is a fixed-depth ring of (Tick, Value) pairs for one predicted
// component on one entity.
type History struct {
	entries []historyEntry
	depth   int
}

func NewHistory(depth int) *History {
	if depth < 1 {
		depth = DefaultDepth
	}
	return &History{entries: make([]historyEntry, depth), depth: depth}
}

func (h *History) slot(t tick.Tick) int {
	return int(uint16(t)) % h.depth
}

// Record overwrites the ring slot for t with value, evicting whatever tick
// previously occupied that slot. Called once per Input tick while
// predicting, and again, overwriting, while resimulating during rollback
// (spec.md §4.8: "During resimulation, the history ring is overwritten").
func (h *History) Record(t tick.Tick, value []byte) {
	h.entries[h.slot(t)] = historyEntry{tick: t, value: value, set: true}
}

// At returns the recorded value for t, if the ring slot still holds that
// exact tick (an older tick may have been evicted by wraparound or simply
// never recorded).
func (h *History) At(t tick.Tick) ([]byte, bool) {
	e := h.entries[h.slot(t)]
	if !e.set || e.tick != t {
		return nil, false
	}
	return e.value, true
}
