package replication

import (
	"github.com/appnet-org/netplay/pkg/conn"
	"github.com/appnet-org/netplay/pkg/netid"
	"github.com/appnet-org/netplay/pkg/tick"
)

// EntitySnapshot is one entity's current replication-relevant state, as
// observed by the host's world walk this replication tick: its group, its
// NetEntity handle, and its registered components' freshly serialized
// values. The host performs change detection (spec.md §2's "world change
// detection" box); Sender performs the diff against what each receiver has
// already been told.
type EntitySnapshot struct {
	NetEntity  uint16
	Group      GroupID
	Components map[netid.ID][]byte
}

type pendingBaseline struct {
	entity    uint64
	component netid.ID
	value     []byte
}

// receiverState is everything Sender remembers about what one receiver has
// already been told, so the next Diff call can compute the minimal set of
// actions and updates.
type receiverState struct {
	netEntity map[uint64]uint16
	group     map[uint64]GroupID
	known     map[uint64]map[netid.ID]struct{} // entity -> components already inserted there
	baseline  map[uint64]map[netid.ID][]byte   // entity -> component -> last acked value
	pending   map[uint64]pendingBaseline       // token -> tentative baseline
}

func newReceiverState() *receiverState {
	return &receiverState{
		netEntity: make(map[uint64]uint16),
		group:     make(map[uint64]GroupID),
		known:     make(map[uint64]map[netid.ID]struct{}),
		baseline:  make(map[uint64]map[netid.ID][]byte),
		pending:   make(map[uint64]pendingBaseline),
	}
}

func (rs *receiverState) getBaseline(entity uint64, comp netid.ID) ([]byte, bool) {
	comps, ok := rs.baseline[entity]
	if !ok {
		return nil, false
	}
	v, ok := comps[comp]
	return v, ok
}

func (rs *receiverState) setBaseline(entity uint64, comp netid.ID, value []byte) {
	comps, ok := rs.baseline[entity]
	if !ok {
		comps = make(map[netid.ID][]byte)
		rs.baseline[entity] = comps
	}
	comps[comp] = value
}

func (rs *receiverState) clearBaseline(entity uint64, comp netid.ID) {
	if comps, ok := rs.baseline[entity]; ok {
		delete(comps, comp)
	}
}

func (rs *receiverState) forgetEntity(entity uint64) {
	delete(rs.netEntity, entity)
	delete(rs.group, entity)
	delete(rs.known, entity)
	delete(rs.baseline, entity)
}

// Sender diffs the host's reported world state against what each receiver
// has already been told and emits entity-actions and entity-updates,
// applying interest filtering and delta compression, per spec.md §4.4.
type Sender struct {
	deltas     map[netid.ID]DeltaCodec
	visibility VisibilityOracle
	receivers  map[conn.PeerId]*receiverState
	nextToken  uint64
}

// NewSender builds a Sender. deltas maps component kinds registered for
// delta compression to their diff/apply codec; visibility may be nil, in
// which case every entity is visible to every receiver (AllVisible).
func NewSender(deltas map[netid.ID]DeltaCodec, visibility VisibilityOracle) *Sender {
	if visibility == nil {
		visibility = AllVisible{}
	}
	if deltas == nil {
		deltas = make(map[netid.ID]DeltaCodec)
	}
	return &Sender{
		deltas:     deltas,
		visibility: visibility,
		receivers:  make(map[conn.PeerId]*receiverState),
	}
}

func (s *Sender) state(receiver conn.PeerId) *receiverState {
	rs, ok := s.receivers[receiver]
	if !ok {
		rs = newReceiverState()
		s.receivers[receiver] = rs
	}
	return rs
}

// Forget releases all per-receiver state for a peer, called when its
// connection is released (spec.md §3's Lifecycles).
func (s *Sender) Forget(receiver conn.PeerId) {
	delete(s.receivers, receiver)
}

// Diff computes the entity-actions and entity-updates to send to receiver
// given the current world snapshot, keyed by local entity handle, and the
// tick to stamp onto entity-updates. Actions are returned spawn/insert
// before remove/despawn is irrelevant to ordering here: the caller packs
// all of one group's actions from one Diff call into a single reliable
// message, preserving per-group order as required by spec.md §3.
func (s *Sender) Diff(receiver conn.PeerId, world map[uint64]EntitySnapshot, currentTick tick.Tick) ([]EntityAction, []ComponentUpdate) {
	rs := s.state(receiver)
	var actions []EntityAction
	var updates []ComponentUpdate

	visibleNow := make(map[uint64]struct{}, len(world))
	for entity, snap := range world {
		if !s.visibility.Visible(receiver, entity) {
			continue
		}
		visibleNow[entity] = struct{}{}
		rs.netEntity[entity] = snap.NetEntity
		rs.group[entity] = snap.Group

		sentComps, spawned := rs.known[entity]
		if !spawned {
			actions = append(actions, EntityAction{Kind: Spawn, Group: snap.Group, NetEntity: snap.NetEntity})
			sentComps = make(map[netid.ID]struct{})
			rs.known[entity] = sentComps
		}

		for comp, value := range snap.Components {
			if _, already := sentComps[comp]; !already {
				actions = append(actions, EntityAction{
					Kind: InsertComponent, Group: snap.Group, NetEntity: snap.NetEntity,
					Component: comp, Payload: value,
				})
				sentComps[comp] = struct{}{}
				continue
			}
			updates = append(updates, s.buildUpdate(rs, entity, snap, comp, value, currentTick))
		}

		for comp := range sentComps {
			if _, present := snap.Components[comp]; !present {
				actions = append(actions, EntityAction{
					Kind: RemoveComponent, Group: snap.Group, NetEntity: snap.NetEntity, Component: comp,
				})
				delete(sentComps, comp)
				rs.clearBaseline(entity, comp)
			}
		}
	}

	for entity := range rs.known {
		if _, stillVisible := visibleNow[entity]; stillVisible {
			continue
		}
		actions = append(actions, EntityAction{
			Kind: Despawn, Group: rs.group[entity], NetEntity: rs.netEntity[entity],
		})
		rs.forgetEntity(entity)
	}

	return actions, updates
}

func (s *Sender) buildUpdate(rs *receiverState, entity uint64, snap EntitySnapshot, comp netid.ID, value []byte, t tick.Tick) ComponentUpdate {
	u := ComponentUpdate{Group: snap.Group, NetEntity: snap.NetEntity, Component: comp, Tick: t, Payload: value}

	codec, delta := s.deltas[comp]
	if !delta {
		return u
	}
	baseline, haveBaseline := rs.getBaseline(entity, comp)
	if haveBaseline {
		if d, ok := codec.Diff(baseline, value); ok {
			u.Payload = d
			u.Delta = true
		}
	}

	s.nextToken++
	token := s.nextToken
	rs.pending[token] = pendingBaseline{entity: entity, component: comp, value: value}
	u.Token = token
	return u
}

// NotifyAck advances the delta-compression baseline for the update token
// identifies, once the packet carrying it has been acknowledged. Until
// this is called, the previous baseline (or none, forcing full-value
// sends) remains in effect — exactly the "on loss of any baseline fall
// back to full state" behaviour from spec.md §4.4, with no explicit loss
// detection required.
func (s *Sender) NotifyAck(receiver conn.PeerId, token uint64) {
	if token == 0 {
		return
	}
	rs := s.state(receiver)
	pb, ok := rs.pending[token]
	if !ok {
		return
	}
	rs.setBaseline(pb.entity, pb.component, pb.value)
	delete(rs.pending, token)
}
