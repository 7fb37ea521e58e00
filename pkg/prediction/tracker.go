package prediction

import (
	"github.com/appnet-org/netplay/pkg/netid"
	"github.com/appnet-org/netplay/pkg/tick"
)

// ComponentSyncMode classifies how a predicted component behaves on
// receipt of a server update, per spec.md §4.8.
type ComponentSyncMode uint8

const (
	// Once: copied from the confirmed value once at spawn, never predicted
	// or rolled back again.
	Once ComponentSyncMode = iota
	// Simple: copied from every server update directly onto the predicted
	// twin, never rolled back.
	Simple
	// Full: recorded into the history ring every predicted tick and
	// checked for misprediction against every confirmed update.
	Full
)

// ApproxEqualFunc reports whether two serialized component values are
// close enough that no rollback is needed, per spec.md §4.8's
// per-component `approx_eq`.
type ApproxEqualFunc func(a, b []byte) bool

type componentKey struct {
	entity    uint64
	component netid.ID
}

// Tracker owns the Full-mode history rings for every predicted
// (entity, component) pair and detects mispredictions against confirmed
// updates. Once/Simple-mode components are applied directly by the host
// and never touch Tracker.
type Tracker struct {
	modes       map[netid.ID]ComponentSyncMode
	approxEqual map[netid.ID]ApproxEqualFunc
	depth       int
	histories   map[componentKey]*History
	pending     map[uint64]tick.Tick // entity -> earliest rollback tick requested this frame
}

// NewTracker builds a Tracker. modes classifies every predicted component
// kind; components absent from modes are treated as Full. approxEqual
// supplies the equality check for Full-mode components; a component with
// no entry falls back to exact byte-slice equality.
func NewTracker(depth int, modes map[netid.ID]ComponentSyncMode, approxEqual map[netid.ID]ApproxEqualFunc) *Tracker {
	if modes == nil {
		modes = make(map[netid.ID]ComponentSyncMode)
	}
	if approxEqual == nil {
		approxEqual = make(map[netid.ID]ApproxEqualFunc)
	}
	return &Tracker{
		modes:       modes,
		approxEqual: approxEqual,
		depth:       depth,
		histories:   make(map[componentKey]*History),
		pending:     make(map[uint64]tick.Tick),
	}
}

// Mode reports the sync mode for a component kind (Full if unclassified).
func (t *Tracker) Mode(component netid.ID) ComponentSyncMode {
	if m, ok := t.modes[component]; ok {
		return m
	}
	return Full
}

func (t *Tracker) history(entity uint64, component netid.ID) *History {
	key := componentKey{entity, component}
	h, ok := t.histories[key]
	if !ok {
		h = NewHistory(t.depth)
		t.histories[key] = h
	}
	return h
}

// RecordPredicted stores the predicted value computed for entity/component
// at tick t. Call this every Input tick for every Full-mode predicted
// component; it is also how the rollback driver overwrites history during
// resimulation.
func (t *Tracker) RecordPredicted(entity uint64, component netid.ID, at tick.Tick, value []byte) {
	if t.Mode(component) != Full {
		return
	}
	t.history(entity, component).Record(at, value)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CheckMisprediction compares the confirmed value received at serverTick
// against what was predicted for that tick. A miss (no recorded value, or
// a value that fails approx_eq) schedules a rollback for entity to the
// earliest such tick seen this frame, per spec.md §4.8. Returns true if a
// rollback was (newly or already) scheduled for entity at or before
// serverTick.
func (t *Tracker) CheckMisprediction(entity uint64, component netid.ID, serverTick tick.Tick, confirmedValue []byte) bool {
	if t.Mode(component) != Full {
		return false
	}
	predicted, ok := t.history(entity, component).At(serverTick)
	if ok {
		eq := t.approxEqual[component]
		if eq == nil {
			eq = bytesEqual
		}
		if eq(predicted, confirmedValue) {
			return false
		}
	}
	t.markRollback(entity, serverTick)
	return true
}

func (t *Tracker) markRollback(entity uint64, from tick.Tick) {
	existing, have := t.pending[entity]
	if !have || tick.Before(from, existing) {
		t.pending[entity] = from
	}
}

// RollbackRequest names the entity and earliest tick a rollback must
// resimulate from.
type RollbackRequest struct {
	Entity uint64
	From   tick.Tick
}

// DrainRollbacks returns and clears every rollback requested since the
// last call, for the rollback driver to execute once per frame before the
// fixed-step schedule, per spec.md §4.8.
func (t *Tracker) DrainRollbacks() []RollbackRequest {
	if len(t.pending) == 0 {
		return nil
	}
	reqs := make([]RollbackRequest, 0, len(t.pending))
	for e, from := range t.pending {
		reqs = append(reqs, RollbackRequest{Entity: e, From: from})
	}
	t.pending = make(map[uint64]tick.Tick)
	return reqs
}
