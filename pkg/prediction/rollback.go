package prediction

import (
	"github.com/appnet-org/netplay/pkg/netid"
	"github.com/appnet-org/netplay/pkg/tick"
)

// InputBuffer looks up the input an entity's deterministic systems should
// use for tick t during resimulation. The host is responsible for keeping
// at least the rollback window of inputs around (spec.md §4.8: "inputs
// replayed from the client's input buffer, kept for at least the rollback
// window").
type InputBuffer interface {
	InputAt(entity uint64, t tick.Tick) (input []byte, ok bool)
}

// CopyConfirmed writes a confirmed component value onto entity's predicted
// twin, the first step of a rollback (spec.md §4.8: "Copy confirmed values
// at tick S into the predicted entities").
type CopyConfirmedFunc func(entity uint64, component netid.ID, value []byte)

// Resimulate re-runs the deterministic fixed-step systems for entity at
// tick t using input, mutating its predicted components in place.
type ResimulateFunc func(entity uint64, t tick.Tick, input []byte)

// SnapshotPredicted reads entity's current predicted value for component,
// immediately after Resimulate has run for some tick, so it can be
// recorded back into history.
type SnapshotPredictedFunc func(entity uint64, component netid.ID) []byte

// Driver executes rollback requests drained from a Tracker: copy confirmed
// state in, replay ticks forward, and re-populate the history ring as it
// goes, per spec.md §4.8.
type Driver struct {
	tracker     *Tracker
	inputs      InputBuffer
	resimulate  ResimulateFunc
	copyConfirmed CopyConfirmedFunc
	snapshot    SnapshotPredictedFunc
	components  []netid.ID
}

func NewDriver(tracker *Tracker, inputs InputBuffer, components []netid.ID, copyConfirmed CopyConfirmedFunc, resimulate ResimulateFunc, snapshot SnapshotPredictedFunc) *Driver {
	return &Driver{
		tracker:       tracker,
		inputs:        inputs,
		resimulate:    resimulate,
		copyConfirmed: copyConfirmed,
		snapshot:      snapshot,
		components:    components,
	}
}

// Run executes one rollback: confirmedValues supplies the authoritative
// value of every Full-mode component at req.From, and currentInputTick is
// the last tick the local predictor has already simulated (the replay
// upper bound). Run must be called once per frame, before the fixed-step
// schedule advances, per spec.md §4.8.
func (d *Driver) Run(req RollbackRequest, currentInputTick tick.Tick, confirmedValues map[netid.ID][]byte) {
	for _, comp := range d.components {
		value, ok := confirmedValues[comp]
		if !ok {
			continue
		}
		d.copyConfirmed(req.Entity, comp, value)
		d.tracker.RecordPredicted(req.Entity, comp, req.From, value)
	}

	for t := req.From.Add(1); !tick.Before(currentInputTick, t); t = t.Add(1) {
		input, _ := d.inputs.InputAt(req.Entity, t)
		d.resimulate(req.Entity, t, input)
		for _, comp := range d.components {
			d.tracker.RecordPredicted(req.Entity, comp, t, d.snapshot(req.Entity, comp))
		}
	}
}

// RunAll drains every pending rollback from tracker and executes it via
// Run, in the order Tracker returns them. Callers with a single predicted
// entity per connection typically have at most one request per frame;
// this handles the general multi-entity case uniformly.
func (d *Driver) RunAll(currentInputTick tick.Tick, confirmedValuesFor func(entity uint64) map[netid.ID][]byte) {
	for _, req := range d.tracker.DrainRollbacks() {
		d.Run(req, currentInputTick, confirmedValuesFor(req.Entity))
	}
}
