package runtime

import (
	"time"

	"github.com/appnet-org/netplay/pkg/channel"
	"github.com/appnet-org/netplay/pkg/conn"
	"github.com/appnet-org/netplay/pkg/logging"
	"github.com/appnet-org/netplay/pkg/netid"
	"github.com/appnet-org/netplay/pkg/packetbuilder"
	"github.com/appnet-org/netplay/pkg/tick"
	"github.com/appnet-org/netplay/pkg/transport"
	"github.com/appnet-org/netplay/pkg/wire"
	"go.uber.org/zap"
)

// pingInterval is the rate at which a Peer samples RTT/jitter against every
// connection it owns, per spec.md §4.6.
const pingInterval = 500 * time.Millisecond

// Receive is the PreUpdate entry point: it drains every datagram the
// transport currently has buffered without blocking, per spec.md §5, and
// sweeps every connection for a keepalive timeout.
func (p *Peer) Receive(now time.Time) {
	for {
		payload, from, ok := p.xport.Poll()
		if !ok {
			break
		}
		p.handleDatagram(from, payload, now)
	}
	for addr, pc := range p.conns {
		if pc.connection.CheckTimeout(now) {
			p.log.Info("connection timed out", zap.String("addr", addr))
		}
		pc.chset.ExpireFragments(now)
	}
}

func (p *Peer) handleDatagram(from transport.Addr, payload []byte, now time.Time) {
	r := wire.NewReader(payload)
	h, err := packetbuilder.DecodeHeader(r)
	if err != nil {
		p.counters.IncSerialization()
		logging.Debug("dropped packet: header decode failed", zap.Error(err))
		return
	}

	switch h.Kind {
	case packetbuilder.KindConnectRequest:
		if p.role == RoleServer {
			p.handleConnectRequest(from, r, now)
		}
		return
	case packetbuilder.KindConnectResponse:
		if p.role == RoleClient {
			p.handleConnectResponse(from, r, now)
		}
		return
	case packetbuilder.KindConnectDenied:
		if p.role == RoleClient {
			p.handleConnectDenied(from, r)
		}
		return
	}

	pc, ok := p.connByAddr(from)
	if !ok || pc.connection.State() != conn.Connected {
		return
	}
	pc.connection.OnPacketReceived(now)

	switch h.Kind {
	case packetbuilder.KindPing:
		p.handlePing(pc, r, now)
		return
	case packetbuilder.KindPong:
		p.handlePong(pc, r, now)
		return
	case packetbuilder.KindKeepAlive:
		return
	case packetbuilder.KindData, packetbuilder.KindDataFragment:
		// fall through to message-slot decode below
	default:
		return
	}

	pc.ack.RecordReceived(h.Sequence)
	pc.builder.NotifyAck(h.AckSequence, h.AckBitfield)

	lookup := func(id netid.ID) (reliable, sequenced, tickBuffered bool, ok bool) {
		settings, ok := p.Channels.Settings(id)
		if !ok {
			return false, false, false, false
		}
		return settings.Mode.Reliable(), settings.Mode.Sequenced(), settings.Mode.TickBuffered(), true
	}
	for r.Remaining() > 0 {
		slot, ok, err := packetbuilder.DecodeSlot(r, lookup)
		if err != nil {
			p.counters.IncSerialization()
			return
		}
		if !ok {
			p.counters.IncRegistry()
			return
		}
		recv, ok := pc.chset.Receiver(slot.ChannelID)
		if !ok {
			p.counters.IncRegistry()
			continue
		}
		for _, d := range recv.HandleFrame(slot.Frame, now) {
			p.deliver(pc, slot.ChannelID, d)
		}
	}
}

func (p *Peer) deliver(pc *peerConn, channelID netid.ID, d channel.Delivered) {
	switch channelID {
	case p.replicationActionsID:
		actions, err := decodeActionBatch(d.Payload)
		if err != nil {
			p.counters.IncSerialization()
			return
		}
		for _, a := range actions {
			if err := pc.repRecv.ApplyAction(a); err != nil {
				p.log.Debug("replication action dropped", zap.Error(err))
			}
		}
		return
	case p.replicationUpdatesID:
		u, err := decodeUpdate(d.Payload)
		if err != nil {
			p.counters.IncSerialization()
			return
		}
		if err := pc.repRecv.ApplyUpdate(u); err != nil {
			p.log.Debug("replication update dropped", zap.Error(err))
		}
		return
	}
	r := wire.NewReader(d.Payload)
	rawID, err := r.ReadVarint()
	if err != nil {
		p.counters.IncSerialization()
		return
	}
	msgID := netid.ID(rawID)
	if _, ok := p.Messages.Lookup(msgID); !ok {
		p.counters.IncRegistry()
		return
	}
	body, err := r.ReadBytes(r.Remaining())
	if err != nil {
		p.counters.IncSerialization()
		return
	}
	p.inbox = append(p.inbox, InboundMessage{
		From: pc.id, Channel: channelID, Message: msgID, Payload: body,
	})
}

func (p *Peer) handlePing(pc *peerConn, r *wire.Reader, now time.Time) {
	id, err := r.ReadU16()
	if err != nil {
		return
	}
	peerTick, err := r.ReadU16()
	if err != nil {
		return
	}
	pc.timelines.UpdateRemoteFromPacket(tick.Tick(peerTick))

	w := wire.NewWriter(p.pool.GetSize(0))
	packetbuilder.Header{Kind: packetbuilder.KindPong}.Encode(w)
	w.WriteU16(id)
	w.WriteU64(uint64(now.UnixNano()))
	w.WriteU64(uint64(now.UnixNano()))
	_ = p.xport.Send(pc.addr, w.Bytes())
}

func (p *Peer) handlePong(pc *peerConn, r *wire.Reader, now time.Time) {
	id, err := r.ReadU16()
	if err != nil {
		return
	}
	receivedNanos, err := r.ReadU64()
	if err != nil {
		return
	}
	sentNanos, err := r.ReadU64()
	if err != nil {
		return
	}
	pc.timelines.Ping.ReceivePong(id, time.Unix(0, int64(receivedNanos)), time.Unix(0, int64(sentNanos)), now)
}

// Tick is the FixedUpdate entry point: for every connected peer it steps the
// Local timeline by one tick and releases the tick-buffered messages due at
// the new tick; on a client it also advances the Input timeline under the
// sync controller and recomputes the Interpolation timeline. World
// simulation/prediction driven by the host happens around this call.
func (p *Peer) Tick(now time.Time) {
	for _, pc := range p.conns {
		if pc.connection.State() != conn.Connected {
			continue
		}
		pc.timelines.StepLocal()
		localTick := pc.timelines.Local().Tick()
		pc.chset.ForEachReceiver(func(channelID netid.ID, recv *channel.Receiver) {
			for _, d := range recv.ReleaseTickBuffered(localTick) {
				p.deliver(pc, channelID, d)
			}
		})
		if p.role == RoleClient {
			target := float64(pc.timelines.Remote().Tick()) + float64(pc.rtt())/float64(2*p.cfg.TickDuration) + float64(p.cfg.InputDelayTicks)
			offset := float64(pc.timelines.Input().Tick()) - target
			result := pc.syncCtl.Update(offset)
			if result.HardResync {
				pc.timelines.Input().Set(tick.Tick(int32(target)))
				pc.inputAccum = 0
			} else {
				// Realize RelativeSpeed by accumulating fractional ticks: a
				// speed under 1.0 occasionally contributes less than a full
				// tick this step (Advance(0)), a speed over 1.0 occasionally
				// carries an extra one (Advance(2)), averaging to
				// RelativeSpeed ticks per fixed step over time.
				pc.inputAccum += result.RelativeSpeed
				advance := int32(pc.inputAccum)
				pc.inputAccum -= float64(advance)
				pc.timelines.Input().Advance(advance)
			}
			pc.timelines.RecomputeInterpolation(p.cfg.InterpolationDelayTicks, p.cfg.ServerReplicationSendInterval)
		}
	}
}

// Send is the PostUpdate entry point: emits keepalives/pings/connect
// retries and packs+sends every connection's ready channel frames, per
// spec.md §4.3 and §5.
func (p *Peer) Send(now time.Time) {
	for _, pc := range p.conns {
		switch pc.connection.State() {
		case conn.Connecting:
			p.sendConnectRequest(pc, now)
			continue
		case conn.Connected:
		default:
			continue
		}

		if now.Sub(pc.lastPingSent) >= pingInterval {
			p.sendPing(pc, now)
		}

		packets := pc.builder.Pack(now)
		for _, pkt := range packets {
			if err := p.xport.Send(pc.addr, pkt); err != nil {
				logging.Debug("send failed", zap.Error(err), zap.String("addr", pc.addr.String()))
				continue
			}
			pc.connection.OnPacketSent(now)
		}
		if len(packets) == 0 && pc.connection.ShouldSendKeepAlive(now) {
			p.sendKeepAlive(pc, now)
		}
	}
}

func (p *Peer) sendKeepAlive(pc *peerConn, now time.Time) {
	w := wire.NewWriter(p.pool.GetSize(0))
	ackSeq, ackBitfield, _ := pc.ack.Ack()
	packetbuilder.Header{Kind: packetbuilder.KindKeepAlive, AckSequence: ackSeq, AckBitfield: ackBitfield}.Encode(w)
	if err := p.xport.Send(pc.addr, w.Bytes()); err == nil {
		pc.connection.OnPacketSent(now)
	}
}

func (p *Peer) sendPing(pc *peerConn, now time.Time) {
	localTick := pc.timelines.Local().Tick()
	if p.role == RoleClient {
		localTick = pc.timelines.Input().Tick()
	}
	id := pc.timelines.Ping.SendPing(now)
	w := wire.NewWriter(p.pool.GetSize(0))
	packetbuilder.Header{Kind: packetbuilder.KindPing}.Encode(w)
	w.WriteU16(id)
	w.WriteU16(uint16(localTick))
	if err := p.xport.Send(pc.addr, w.Bytes()); err == nil {
		pc.lastPingSent = now
	}
}
