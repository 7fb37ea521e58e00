package runtime

import (
	"fmt"

	"github.com/appnet-org/netplay/pkg/conn"
	"github.com/appnet-org/netplay/pkg/interpolation"
	"github.com/appnet-org/netplay/pkg/prediction"
	"github.com/appnet-org/netplay/pkg/tick"
)

// PredictionTracker returns id's prediction history tracker, for the host to
// call RecordPredicted every Input tick and CheckMisprediction/
// DrainRollbacks whenever a confirmed update arrives (spec.md §4.8). The
// rollback Driver itself is host-owned: it needs the host's own input
// buffer and deterministic resimulation callbacks, which this package has
// no way to supply generically.
func (p *Peer) PredictionTracker(id conn.PeerId) (*prediction.Tracker, error) {
	pc, ok := p.find(id)
	if !ok {
		return nil, fmt.Errorf("runtime: unknown peer %s", id)
	}
	return pc.predict, nil
}

// InterpolationManager returns id's interpolation snapshot manager, for the
// host to call Observe on every confirmed entity-update and Sample once per
// frame at InterpolationTick, per spec.md §4.9.
func (p *Peer) InterpolationManager(id conn.PeerId) (*interpolation.Manager, error) {
	pc, ok := p.find(id)
	if !ok {
		return nil, fmt.Errorf("runtime: unknown peer %s", id)
	}
	return pc.interp, nil
}

// InterpolationTick returns id's Interpolation timeline's current tick, the
// moment in the past Sample should reconstruct, per spec.md §4.9.
func (p *Peer) InterpolationTick(id conn.PeerId) (tick.Tick, error) {
	pc, ok := p.find(id)
	if !ok {
		return 0, fmt.Errorf("runtime: unknown peer %s", id)
	}
	return pc.timelines.Interpolation().Tick(), nil
}
