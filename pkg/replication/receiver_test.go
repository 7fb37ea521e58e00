package replication

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/appnet-org/netplay/pkg/netid"
	"github.com/appnet-org/netplay/pkg/tick"
)

type recordingHooks struct {
	spawns     int
	inserts    int
	updates    int
	lastPayload []byte
}

func newRecordingHooks() (*recordingHooks, Hooks) {
	rh := &recordingHooks{}
	hooks := Hooks{
		SpawnConfirmed: func(netEntity uint16) uint64 {
			rh.spawns++
			return uint64(netEntity) + 1000
		},
		DespawnEntity:   func(local uint64) {},
		InsertComponent: func(local uint64, component netid.ID, payload []byte) error {
			rh.inserts++
			rh.lastPayload = payload
			return nil
		},
		RemoveComponent: func(local uint64, component netid.ID) {},
		ApplyUpdate: func(local uint64, component netid.ID, payload []byte) error {
			rh.updates++
			rh.lastPayload = payload
			return nil
		},
	}
	return rh, hooks
}

// TestReplicationIdempotence is P7: applying spawn+insert+update twice
// (simulating a reliable-channel retransmit the receiver already
// processed) has the same observable effect as applying it once.
func TestReplicationIdempotence(t *testing.T) {
	rh, hooks := newRecordingHooks()
	r := NewReceiver(nil, hooks, nil, nil)

	spawn := EntityAction{Kind: Spawn, Group: 1, NetEntity: 5}
	insert := EntityAction{Kind: InsertComponent, Group: 1, NetEntity: 5, Component: 1, Payload: []byte("v1")}
	update := ComponentUpdate{Group: 1, NetEntity: 5, Component: 1, Tick: tick.Tick(10), Payload: []byte("v2")}

	for i := 0; i < 2; i++ {
		require.NoError(t, r.ApplyAction(spawn))
		require.NoError(t, r.ApplyAction(insert))
		require.NoError(t, r.ApplyUpdate(update))
	}

	require.Equal(t, 1, rh.spawns, "retransmitted spawn must not create a second entity")
	require.Equal(t, 2, rh.inserts, "insert_component has no dedup rule of its own; the caller's reliable channel dedups retransmits before they reach here")
	require.Equal(t, 1, rh.updates, "an update whose tick is not newer than the last applied tick for its (entity, component) must be skipped")

	local, ok := r.LocalEntity(5)
	require.True(t, ok)
	require.Equal(t, uint64(1005), local)
}

func TestReplicationUpdateAppliesOnlyNewerTicks(t *testing.T) {
	rh, hooks := newRecordingHooks()
	r := NewReceiver(nil, hooks, nil, nil)
	require.NoError(t, r.ApplyAction(EntityAction{Kind: Spawn, Group: 1, NetEntity: 1}))

	require.NoError(t, r.ApplyUpdate(ComponentUpdate{Group: 1, NetEntity: 1, Component: 2, Tick: 5, Payload: []byte("a")}))
	require.NoError(t, r.ApplyUpdate(ComponentUpdate{Group: 1, NetEntity: 1, Component: 2, Tick: 3, Payload: []byte("stale")}))
	require.Equal(t, 1, rh.updates)
	require.Equal(t, []byte("a"), rh.lastPayload)

	require.NoError(t, r.ApplyUpdate(ComponentUpdate{Group: 1, NetEntity: 1, Component: 2, Tick: 6, Payload: []byte("b")}))
	require.Equal(t, 2, rh.updates)
	require.Equal(t, []byte("b"), rh.lastPayload)
}

// TestReplicationUpdatesForDifferentComponentsInSameGroupDontBlockEachOther
// confirms that two components on the same entity (same group), updated at
// the same tick, both apply: staleness is gated per (entity, component),
// not per group, since each component rides its own entity-update message
// and those can arrive in either order.
func TestReplicationUpdatesForDifferentComponentsInSameGroupDontBlockEachOther(t *testing.T) {
	rh, hooks := newRecordingHooks()
	r := NewReceiver(nil, hooks, nil, nil)
	require.NoError(t, r.ApplyAction(EntityAction{Kind: Spawn, Group: 1, NetEntity: 1}))

	require.NoError(t, r.ApplyUpdate(ComponentUpdate{Group: 1, NetEntity: 1, Component: 2, Tick: 10, Payload: []byte("pos")}))
	require.NoError(t, r.ApplyUpdate(ComponentUpdate{Group: 1, NetEntity: 1, Component: 3, Tick: 10, Payload: []byte("vel")}))

	require.Equal(t, 2, rh.updates, "a second component's update at the same tick as the first must still apply")
}

// TestReplicationUpdatesForDifferentEntitiesInSameGroupDontBlockEachOther
// is the same invariant across entities: a group is a set of entities
// (spec.md §3), so two entities sharing a group must each independently
// accept their tick-10 update.
func TestReplicationUpdatesForDifferentEntitiesInSameGroupDontBlockEachOther(t *testing.T) {
	rh, hooks := newRecordingHooks()
	r := NewReceiver(nil, hooks, nil, nil)
	require.NoError(t, r.ApplyAction(EntityAction{Kind: Spawn, Group: 1, NetEntity: 1}))
	require.NoError(t, r.ApplyAction(EntityAction{Kind: Spawn, Group: 1, NetEntity: 2}))

	require.NoError(t, r.ApplyUpdate(ComponentUpdate{Group: 1, NetEntity: 1, Component: 2, Tick: 10, Payload: []byte("a")}))
	require.NoError(t, r.ApplyUpdate(ComponentUpdate{Group: 1, NetEntity: 2, Component: 2, Tick: 10, Payload: []byte("b")}))

	require.Equal(t, 2, rh.updates)
}

func TestReplicationDeltaUpdateAppliesAgainstBaseline(t *testing.T) {
	rh, hooks := newRecordingHooks()
	deltas := map[netid.ID]DeltaCodec{
		2: {
			Diff: func(baseline, newValue []byte) ([]byte, bool) { return newValue, true },
			Apply: func(baseline, delta []byte) ([]byte, error) {
				return append(append([]byte{}, baseline...), delta...), nil
			},
		},
	}
	r := NewReceiver(nil, hooks, nil, deltas)
	require.NoError(t, r.ApplyAction(EntityAction{Kind: Spawn, Group: 1, NetEntity: 1}))
	require.NoError(t, r.ApplyUpdate(ComponentUpdate{Group: 1, NetEntity: 1, Component: 2, Tick: 1, Payload: []byte("base")}))

	err := r.ApplyUpdate(ComponentUpdate{Group: 1, NetEntity: 1, Component: 2, Tick: 2, Payload: []byte("+delta"), Delta: true})
	require.NoError(t, err)
	require.Equal(t, []byte("base+delta"), rh.lastPayload)
}

func TestReplicationDespawnClearsState(t *testing.T) {
	_, hooks := newRecordingHooks()
	r := NewReceiver(nil, hooks, nil, nil)
	require.NoError(t, r.ApplyAction(EntityAction{Kind: Spawn, Group: 1, NetEntity: 9}))
	require.NoError(t, r.ApplyAction(EntityAction{Kind: Despawn, Group: 1, NetEntity: 9}))

	_, ok := r.LocalEntity(9)
	require.False(t, ok)

	err := r.ApplyUpdate(ComponentUpdate{Group: 1, NetEntity: 9, Component: 1, Tick: 1, Payload: []byte("x")})
	require.Error(t, err, "update for a despawned entity must fail, not silently resurrect it")
}
