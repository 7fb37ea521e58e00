package replication

import (
	"fmt"

	"github.com/appnet-org/netplay/pkg/netid"
	"github.com/appnet-org/netplay/pkg/tick"
)

// Hooks are the world-mutation callbacks the host supplies; Receiver calls
// them in response to applied entity-actions and entity-updates, per
// spec.md §4.5. The world/ECS runtime is an external collaborator (spec.md
// §1): Receiver never touches it directly.
type Hooks struct {
	// SpawnConfirmed creates a local entity for a newly-spawned NetEntity
	// and returns its local handle.
	SpawnConfirmed func(netEntity uint16) uint64
	// DespawnEntity deletes a local entity and everything cross-linked to
	// it (predicted/interpolated twins).
	DespawnEntity func(local uint64)
	InsertComponent func(local uint64, component netid.ID, payload []byte) error
	RemoveComponent func(local uint64, component netid.ID)
	ApplyUpdate     func(local uint64, component netid.ID, payload []byte) error
}

// TwinPolicy decides, per spawned entity, whether a predicted and/or
// interpolated twin should be created alongside the confirmed entity, per
// spec.md §4.5's "consults prediction and interpolation policies".
type TwinPolicy interface {
	WantsPredicted(netEntity uint16) bool
	WantsInterpolated(netEntity uint16) bool
}

// NoTwins never spawns predicted or interpolated twins: every replicated
// entity is a plain Confirmed entity.
type NoTwins struct{}

func (NoTwins) WantsPredicted(uint16) bool     { return false }
func (NoTwins) WantsInterpolated(uint16) bool  { return false }

// Links cross-references a confirmed entity with its optional predicted
// and interpolated twins, per spec.md §4.5.
type Links struct {
	Confirmed        uint64
	Predicted        uint64
	HasPredicted     bool
	Interpolated     uint64
	HasInterpolated  bool
}

// updateKey tracks the newest applied tick per (entity, component), not per
// group: a group's components ride separate entity-update messages on an
// unordered-reliable channel (spec.md §4.4), so they can and do arrive out
// of order relative to each other. Gating staleness at the group level
// would let the first-arriving component's tick block every other
// component's update at that same tick.
type updateKey struct {
	netEntity uint16
	component netid.ID
}

// Receiver applies incoming entity-actions and entity-updates to the local
// world via Hooks, maintaining the NetEntity-to-local-entity mapping and
// the confirmed/predicted/interpolated cross-links, per spec.md §4.5.
type Receiver struct {
	registry *netid.Registry
	hooks    Hooks
	policy   TwinPolicy
	deltas   map[netid.ID]DeltaCodec

	localOf     map[uint16]uint64
	links       map[uint16]*Links
	lastUpdated map[updateKey]tick.Tick
	baselines   map[uint16]map[netid.ID][]byte

	// SpawnPredictedTwin and SpawnInterpolatedTwin are set by the host if
	// it wants Receiver to create twins; left nil, WantsPredicted /
	// WantsInterpolated are simply never honoured.
	SpawnPredictedTwin    func(confirmed uint64) uint64
	SpawnInterpolatedTwin func(confirmed uint64) uint64
}

// NewReceiver builds a Receiver. deltas must name the same component kinds
// and codecs the peer's Sender was constructed with, so both sides apply
// the identical diff/apply functions to a delta-compressed component.
func NewReceiver(registry *netid.Registry, hooks Hooks, policy TwinPolicy, deltas map[netid.ID]DeltaCodec) *Receiver {
	if policy == nil {
		policy = NoTwins{}
	}
	if deltas == nil {
		deltas = make(map[netid.ID]DeltaCodec)
	}
	return &Receiver{
		registry:    registry,
		hooks:       hooks,
		policy:      policy,
		deltas:      deltas,
		localOf:     make(map[uint16]uint64),
		links:       make(map[uint16]*Links),
		lastUpdated: make(map[updateKey]tick.Tick),
		baselines:   make(map[uint16]map[netid.ID][]byte),
	}
}

func (r *Receiver) deltaFor(comp netid.ID) (DeltaCodec, bool) {
	c, ok := r.deltas[comp]
	return c, ok
}

func (r *Receiver) baselineFor(netEntity uint16, comp netid.ID) ([]byte, bool) {
	comps, ok := r.baselines[netEntity]
	if !ok {
		return nil, false
	}
	v, ok := comps[comp]
	return v, ok
}

func (r *Receiver) setBaseline(netEntity uint16, comp netid.ID, value []byte) {
	comps, ok := r.baselines[netEntity]
	if !ok {
		comps = make(map[netid.ID][]byte)
		r.baselines[netEntity] = comps
	}
	comps[comp] = value
}

// ApplyAction applies one entity-action. Actions always apply regardless
// of tick ordering, per spec.md §4.5 ("entity-actions always apply");
// ordering across a group's actions is the caller's responsibility
// (guaranteed by the ordered-reliable channel they arrived on).
func (r *Receiver) ApplyAction(a EntityAction) error {
	switch a.Kind {
	case Spawn:
		return r.applySpawn(a)
	case Despawn:
		return r.applyDespawn(a)
	case InsertComponent:
		local, ok := r.localOf[a.NetEntity]
		if !ok {
			return fmt.Errorf("replication: insert_component for unknown net entity %d", a.NetEntity)
		}
		return r.hooks.InsertComponent(local, a.Component, a.Payload)
	case RemoveComponent:
		local, ok := r.localOf[a.NetEntity]
		if !ok {
			return fmt.Errorf("replication: remove_component for unknown net entity %d", a.NetEntity)
		}
		r.hooks.RemoveComponent(local, a.Component)
		if comps, ok := r.baselines[a.NetEntity]; ok {
			delete(comps, a.Component)
		}
		return nil
	default:
		return fmt.Errorf("replication: unknown action kind %d", a.Kind)
	}
}

func (r *Receiver) applySpawn(a EntityAction) error {
	if _, exists := r.localOf[a.NetEntity]; exists {
		return nil // idempotent: a retransmitted reliable Spawn is not an error
	}
	local := r.hooks.SpawnConfirmed(a.NetEntity)
	r.localOf[a.NetEntity] = local
	links := &Links{Confirmed: local}
	if r.policy.WantsPredicted(a.NetEntity) && r.SpawnPredictedTwin != nil {
		links.Predicted = r.SpawnPredictedTwin(local)
		links.HasPredicted = true
	}
	if r.policy.WantsInterpolated(a.NetEntity) && r.SpawnInterpolatedTwin != nil {
		links.Interpolated = r.SpawnInterpolatedTwin(local)
		links.HasInterpolated = true
	}
	r.links[a.NetEntity] = links
	return nil
}

func (r *Receiver) applyDespawn(a EntityAction) error {
	local, ok := r.localOf[a.NetEntity]
	if !ok {
		return nil
	}
	r.hooks.DespawnEntity(local)
	delete(r.localOf, a.NetEntity)
	delete(r.links, a.NetEntity)
	delete(r.baselines, a.NetEntity)
	for key := range r.lastUpdated {
		if key.netEntity == a.NetEntity {
			delete(r.lastUpdated, key)
		}
	}
	return nil
}

// ApplyUpdate applies an entity-update iff its tick is newer than the last
// applied update for that (entity, component), per spec.md §4.5's
// newest-tick-wins rule (superseded-tick updates are simply skipped).
func (r *Receiver) ApplyUpdate(u ComponentUpdate) error {
	key := updateKey{netEntity: u.NetEntity, component: u.Component}
	if last, ok := r.lastUpdated[key]; ok && !tick.Before(last, u.Tick) {
		return nil
	}
	local, ok := r.localOf[u.NetEntity]
	if !ok {
		return fmt.Errorf("replication: update for unknown net entity %d", u.NetEntity)
	}
	payload := u.Payload
	if u.Delta {
		codec, hasCodec := r.deltaFor(u.Component)
		if !hasCodec {
			return fmt.Errorf("replication: delta update for component %d with no registered codec", u.Component)
		}
		baseline, ok := r.baselineFor(u.NetEntity, u.Component)
		if !ok {
			return fmt.Errorf("replication: delta update for component %d with no baseline", u.Component)
		}
		full, err := codec.Apply(baseline, u.Payload)
		if err != nil {
			return err
		}
		payload = full
	}
	if err := r.hooks.ApplyUpdate(local, u.Component, payload); err != nil {
		return err
	}
	r.lastUpdated[key] = u.Tick
	r.setBaseline(u.NetEntity, u.Component, payload)
	return nil
}

// Links returns the confirmed/predicted/interpolated cross-link for a
// NetEntity, if it is currently spawned.
func (r *Receiver) Links(netEntity uint16) (*Links, bool) {
	l, ok := r.links[netEntity]
	return l, ok
}

// LocalEntity resolves a NetEntity to its local confirmed-entity handle.
func (r *Receiver) LocalEntity(netEntity uint16) (uint64, bool) {
	local, ok := r.localOf[netEntity]
	return local, ok
}
