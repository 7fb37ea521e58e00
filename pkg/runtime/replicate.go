package runtime

import (
	"fmt"
	"time"

	"github.com/appnet-org/netplay/pkg/conn"
	"github.com/appnet-org/netplay/pkg/netid"
	"github.com/appnet-org/netplay/pkg/replication"
	"github.com/appnet-org/netplay/pkg/tick"
	"github.com/appnet-org/netplay/pkg/wire"
)

// ReplicateTick diffs world against what id has already been told and
// enqueues the resulting entity-actions and entity-updates onto the fixed
// replication channels, per spec.md §4.4. The host calls this once per
// connection per replication tick (typically every FixedUpdate, or at
// ServerReplicationSendInterval if it throttles independently); world is
// keyed by local entity handle.
func (p *Peer) ReplicateTick(id conn.PeerId, now time.Time, world map[uint64]replication.EntitySnapshot) error {
	pc, ok := p.find(id)
	if !ok {
		return fmt.Errorf("runtime: unknown peer %s", id)
	}
	if pc.connection.State() != conn.Connected {
		return nil
	}

	currentTick := pc.timelines.Local().Tick()
	actions, updates := pc.repSender.Diff(pc.id, world, currentTick)

	if len(actions) > 0 {
		if sender, ok := pc.chset.Sender(p.replicationActionsID); ok {
			sender.Enqueue(encodeActionBatch(actions), now, currentTick)
		}
	}
	if sender, ok := pc.chset.Sender(p.replicationUpdatesID); ok {
		for _, u := range updates {
			messageID := sender.Enqueue(encodeUpdate(u), now, u.Tick)
			if u.Token != 0 {
				pc.repPendingTokens[messageID] = u.Token
			}
		}
	}
	return nil
}

// Replicated reports whether netEntity is currently a recognized, spawned
// entity on id's receive side, and its local handle.
func (p *Peer) Replicated(id conn.PeerId, netEntity uint16) (uint64, bool) {
	pc, ok := p.find(id)
	if !ok {
		return 0, false
	}
	return pc.repRecv.LocalEntity(netEntity)
}

// ReplicationLinks returns the confirmed/predicted/interpolated cross-link
// for netEntity on id's receive side.
func (p *Peer) ReplicationLinks(id conn.PeerId, netEntity uint16) (*replication.Links, bool) {
	pc, ok := p.find(id)
	if !ok {
		return nil, false
	}
	return pc.repRecv.Links(netEntity)
}

func writeBytesLP(w *wire.Writer, b []byte) {
	w.WriteVarint(uint64(len(b)))
	w.WriteBytes(b)
}

func readBytesLP(r *wire.Reader) ([]byte, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	return r.ReadBytes(int(n))
}

// encodeActionBatch packs every entity-action from one Diff call into a
// single message body, preserving their relative order — the mechanism by
// which spec.md §3's per-group action ordering is satisfied, since every
// group's actions from one call ride the same ordered-reliable message.
func encodeActionBatch(actions []replication.EntityAction) []byte {
	w := wire.NewWriter(make([]byte, 0, 64))
	w.WriteVarint(uint64(len(actions)))
	for _, a := range actions {
		w.WriteU8(uint8(a.Kind))
		w.WriteVarint(uint64(a.Group))
		w.WriteU16(a.NetEntity)
		switch a.Kind {
		case replication.InsertComponent:
			w.WriteU16(uint16(a.Component))
			writeBytesLP(w, a.Payload)
		case replication.RemoveComponent:
			w.WriteU16(uint16(a.Component))
		}
	}
	return w.Bytes()
}

func decodeActionBatch(payload []byte) ([]replication.EntityAction, error) {
	r := wire.NewReader(payload)
	count, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	actions := make([]replication.EntityAction, 0, count)
	for i := uint64(0); i < count; i++ {
		kindByte, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		group, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		netEntity, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		a := replication.EntityAction{
			Kind:      replication.ActionKind(kindByte),
			Group:     replication.GroupID(group),
			NetEntity: netEntity,
		}
		switch a.Kind {
		case replication.InsertComponent:
			comp, err := r.ReadU16()
			if err != nil {
				return nil, err
			}
			a.Component = netid.ID(comp)
			a.Payload, err = readBytesLP(r)
			if err != nil {
				return nil, err
			}
		case replication.RemoveComponent:
			comp, err := r.ReadU16()
			if err != nil {
				return nil, err
			}
			a.Component = netid.ID(comp)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// encodeUpdate packs one entity-update. Token never rides the wire: it is
// sender-local bookkeeping resolved through the channel's ack callback, not
// something the receiver needs to know.
func encodeUpdate(u replication.ComponentUpdate) []byte {
	w := wire.NewWriter(make([]byte, 0, 32))
	w.WriteVarint(uint64(u.Group))
	w.WriteU16(u.NetEntity)
	w.WriteU16(uint16(u.Component))
	w.WriteU16(uint16(u.Tick))
	deltaByte := uint8(0)
	if u.Delta {
		deltaByte = 1
	}
	w.WriteU8(deltaByte)
	writeBytesLP(w, u.Payload)
	return w.Bytes()
}

func decodeUpdate(payload []byte) (replication.ComponentUpdate, error) {
	r := wire.NewReader(payload)
	var u replication.ComponentUpdate
	group, err := r.ReadVarint()
	if err != nil {
		return u, err
	}
	u.Group = replication.GroupID(group)
	if u.NetEntity, err = r.ReadU16(); err != nil {
		return u, err
	}
	comp, err := r.ReadU16()
	if err != nil {
		return u, err
	}
	u.Component = netid.ID(comp)
	t, err := r.ReadU16()
	if err != nil {
		return u, err
	}
	u.Tick = tick.Tick(t)
	deltaByte, err := r.ReadU8()
	if err != nil {
		return u, err
	}
	u.Delta = deltaByte != 0
	if u.Payload, err = readBytesLP(r); err != nil {
		return u, err
	}
	return u, nil
}
