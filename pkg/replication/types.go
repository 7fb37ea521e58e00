// Package replication implements the diff/group/apply engine that turns
// world mutations into entity-actions and entity-updates and back again:
// the replication sender and receiver from spec.md §4.4-§4.5. The world/ECS
// runtime itself is an external collaborator (spec.md §1); this package
// only ever sees entity handles, NetId-identified component kinds, and
// serialized payloads the host hands it.
package replication

import (
	"github.com/appnet-org/netplay/pkg/conn"
	"github.com/appnet-org/netplay/pkg/netid"
	"github.com/appnet-org/netplay/pkg/tick"
)

// GroupID names a replication group: the unit within which entity-actions
// are strictly ordered, per spec.md §3.
type GroupID uint64

// ActionKind is one of the four entity-action kinds from spec.md §4.4.
type ActionKind uint8

const (
	Spawn ActionKind = iota
	Despawn
	InsertComponent
	RemoveComponent
)

func (k ActionKind) String() string {
	switch k {
	case Spawn:
		return "spawn"
	case Despawn:
		return "despawn"
	case InsertComponent:
		return "insert_component"
	case RemoveComponent:
		return "remove_component"
	default:
		return "unknown"
	}
}

// EntityAction is one spawn/despawn/insert/remove event for one entity
// within one group. A tick's worth of actions for a group are packed into a
// single reliable-ordered message by the caller, per spec.md §3's group
// invariant.
type EntityAction struct {
	Kind      ActionKind
	Group     GroupID
	NetEntity uint16
	Component netid.ID // valid for Insert/RemoveComponent only
	Payload   []byte   // component value, valid for InsertComponent only
}

// ComponentUpdate is one changed-component value for an already-spawned
// entity, tagged with the tick it was observed at and whether Payload is a
// delta against the last acked baseline or a full value.
type ComponentUpdate struct {
	Group     GroupID
	NetEntity uint16
	Component netid.ID
	Tick      tick.Tick
	Payload   []byte
	Delta     bool
	// Token identifies the tentative baseline this update would establish,
	// for delta-compressed components only (zero otherwise). The caller
	// correlates it to the channel message id that carries the update and
	// calls Sender.NotifyAck once that message is acknowledged (runtime.Peer
	// does this through channel.Sender.OnAcked).
	Token uint64
}

// VisibilityOracle decides, for one (sender, receiver) pair, which entities
// are visible to receiver. Replication only emits actions/updates for
// visible entities, per spec.md §4.4's interest filtering.
type VisibilityOracle interface {
	Visible(receiver conn.PeerId, entity uint64) bool
}

// AllVisible is the trivial VisibilityOracle: every entity is visible to
// every receiver. Useful for hosts that don't need interest management.
type AllVisible struct{}

func (AllVisible) Visible(conn.PeerId, uint64) bool { return true }

// DiffFunc computes a delta of newValue relative to baseline, or reports
// ok=false if no useful delta exists (the caller then sends newValue in
// full).
type DiffFunc func(baseline, newValue []byte) (delta []byte, ok bool)

// ApplyDeltaFunc reconstructs a value by applying delta to baseline.
type ApplyDeltaFunc func(baseline, delta []byte) (value []byte, err error)

// DeltaCodec enables delta compression for one component kind, per
// spec.md §4.4: "If a component is registered for delta compression, send
// the diff relative to the last acked baseline... On loss of any baseline
// fall back to full state."
type DeltaCodec struct {
	Diff  DiffFunc
	Apply ApplyDeltaFunc
}
