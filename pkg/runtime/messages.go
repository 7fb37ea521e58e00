package runtime

import (
	"fmt"
	"time"

	"github.com/appnet-org/netplay/pkg/conn"
	"github.com/appnet-org/netplay/pkg/netid"
	"github.com/appnet-org/netplay/pkg/wire"
)

// SendMessage serializes value with message's registered codec and enqueues
// it onto channelID's sender for delivery to id (or to the server, for a
// client Peer, when id is the zero conn.PeerId{IsServer: true}). now should
// be the same timestamp the host's current frame is using for Send, for
// consistency with Receive/Tick/Send's explicit clock.
func (p *Peer) SendMessage(id conn.PeerId, channelID netid.ID, message *netid.Kind, value any, now time.Time) error {
	pc, ok := p.find(id)
	if !ok {
		return fmt.Errorf("runtime: unknown peer %s", id)
	}
	if pc.connection.State() != conn.Connected {
		return fmt.Errorf("runtime: peer %s is not connected", id)
	}
	sender, ok := pc.chset.Sender(channelID)
	if !ok {
		return fmt.Errorf("runtime: unknown channel %d", channelID)
	}
	payload, err := message.Serialize(value)
	if err != nil {
		p.counters.IncSerialization()
		return fmt.Errorf("runtime: serialize %s: %w", message.Name, err)
	}
	// Every application message is prefixed with its own net id so a host
	// sharing one channel across several message kinds can tell them apart
	// on delivery (see deliver() in frame.go).
	w := wire.NewWriter(p.pool.GetSize(0))
	w.WriteVarint(uint64(message.ID))
	w.WriteBytes(payload)
	sender.Enqueue(w.Bytes(), now, pc.timelines.Local().Tick())
	return nil
}

// Broadcast sends a message to every currently connected peer (server use).
func (p *Peer) Broadcast(channelID netid.ID, message *netid.Kind, value any, now time.Time) {
	for _, id := range p.Connections() {
		_ = p.SendMessage(id, channelID, message, value, now)
	}
}

// PollMessages drains and returns every application message delivered since
// the last call, across every connection.
func (p *Peer) PollMessages() []InboundMessage {
	if len(p.inbox) == 0 {
		return nil
	}
	out := p.inbox
	p.inbox = nil
	return out
}
