package prediction

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/appnet-org/netplay/pkg/netid"
	"github.com/appnet-org/netplay/pkg/tick"
)

func encodePos(v int) []byte { return []byte{byte(v)} }
func decodePos(b []byte) int { return int(b[0]) }

type fakeInputs struct {
	deltas map[tick.Tick]int
}

func (f fakeInputs) InputAt(entity uint64, t tick.Tick) ([]byte, bool) {
	d, ok := f.deltas[t]
	if !ok {
		return nil, false
	}
	return encodePos(d), true
}

// TestRollbackConvergesToResimulatedState is E4: a predicted position of
// 100 at tick 50 disagrees with a confirmed position of 80 at tick 50;
// after the rollback the history must hold 80 at tick 50 and the
// resimulated state at tick 55 (80 plus every input from 51..55 applied).
func TestRollbackConvergesToResimulatedState(t *testing.T) {
	const comp netid.ID = 1
	const entity uint64 = 1

	tracker := NewTracker(20, nil, nil)
	tracker.RecordPredicted(entity, comp, 50, encodePos(100))

	misspredicted := tracker.CheckMisprediction(entity, comp, 50, encodePos(80))
	require.True(t, misspredicted)

	reqs := tracker.DrainRollbacks()
	require.Len(t, reqs, 1)
	require.Equal(t, RollbackRequest{Entity: entity, From: 50}, reqs[0])

	state := map[uint64]int{}
	inputs := fakeInputs{deltas: map[tick.Tick]int{51: 2, 52: 2, 53: 2, 54: 2, 55: 2}}
	driver := NewDriver(tracker, inputs, []netid.ID{comp},
		func(e uint64, c netid.ID, value []byte) { state[e] = decodePos(value) },
		func(e uint64, at tick.Tick, input []byte) { state[e] += decodePos(input) },
		func(e uint64, c netid.ID) []byte { return encodePos(state[e]) },
	)

	driver.Run(reqs[0], 55, map[netid.ID][]byte{comp: encodePos(80)})

	at50, ok := tracker.history(entity, comp).At(50)
	require.True(t, ok)
	require.Equal(t, 80, decodePos(at50))

	at55, ok := tracker.history(entity, comp).At(55)
	require.True(t, ok)
	require.Equal(t, 90, decodePos(at55), "resimulated tick 55 must equal simulate(80, inputs[51..55])")

	require.Equal(t, 90, state[entity])
	require.Empty(t, tracker.DrainRollbacks(), "rollbacks must be cleared once drained")
}

// TestNoMispredictionWhenPredictionMatches is P8's converse: when the
// predicted value at the confirmed tick already matches, no rollback is
// scheduled.
func TestNoMispredictionWhenPredictionMatches(t *testing.T) {
	const comp netid.ID = 1
	const entity uint64 = 2

	tracker := NewTracker(20, nil, nil)
	tracker.RecordPredicted(entity, comp, 10, encodePos(5))

	require.False(t, tracker.CheckMisprediction(entity, comp, 10, encodePos(5)))
	require.Empty(t, tracker.DrainRollbacks())
}

// TestApproxEqualSuppressesRollback confirms a per-component approx_eq
// override can treat a near-miss as not requiring rollback.
func TestApproxEqualSuppressesRollback(t *testing.T) {
	const comp netid.ID = 1
	const entity uint64 = 3

	approx := map[netid.ID]ApproxEqualFunc{
		comp: func(a, b []byte) bool {
			diff := decodePos(a) - decodePos(b)
			if diff < 0 {
				diff = -diff
			}
			return diff <= 1
		},
	}
	tracker := NewTracker(20, nil, approx)
	tracker.RecordPredicted(entity, comp, 10, encodePos(10))

	require.False(t, tracker.CheckMisprediction(entity, comp, 10, encodePos(11)))
}

// TestOnceAndSimpleModesNeverRollback confirms components not classified
// as Full never trigger a misprediction check, per spec.md §4.8.
func TestOnceAndSimpleModesNeverRollback(t *testing.T) {
	const comp netid.ID = 9
	modes := map[netid.ID]ComponentSyncMode{comp: Simple}
	tracker := NewTracker(20, modes, nil)

	tracker.RecordPredicted(1, comp, 1, encodePos(1))
	require.False(t, tracker.CheckMisprediction(1, comp, 1, encodePos(99)))
}
