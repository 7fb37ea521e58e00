package packetbuilder

import (
	"github.com/appnet-org/netplay/pkg/channel"
	"github.com/appnet-org/netplay/pkg/netid"
	"github.com/appnet-org/netplay/pkg/tick"
	"github.com/appnet-org/netplay/pkg/wire"
)

const (
	frameKindSingle   = 0
	frameKindFragment = 1
)

// EncodeSlot writes one MessageSlot: channel_net_id, frame_kind,
// conditional message_id/tick/fragment fields, payload_len, payload — byte
// for byte matching spec.md §6. message_id rides the wire whenever the
// receiver needs it to make a delivery decision: reliable channels dedup by
// it, fragments reassemble by it, and sequenced channels (reliable or not)
// drop stale arrivals by it — only a channel that is none of those three
// (unordered-unreliable, single-frame) omits it.
func EncodeSlot(w *wire.Writer, channelID netid.ID, reliable, sequenced, tickBuffered bool, f channel.OutgoingFrame) {
	w.WriteVarint(uint64(channelID))
	if f.IsFragment {
		w.WriteU8(frameKindFragment)
	} else {
		w.WriteU8(frameKindSingle)
	}
	if reliable || sequenced || f.IsFragment {
		w.WriteU16(f.MessageID)
	}
	if tickBuffered {
		w.WriteU16(uint16(f.Tick))
	}
	if f.IsFragment {
		w.WriteU8(f.FragmentIndex)
		w.WriteU8(f.NumFragments)
	}
	w.WriteVarint(uint64(len(f.Payload)))
	w.WriteBytes(f.Payload)
}

// SlotSettingsLookup resolves whether a channel is reliable/sequenced/
// tick-buffered by its wire id, needed before the conditional fields of a
// slot can be decoded.
type SlotSettingsLookup func(id netid.ID) (reliable, sequenced, tickBuffered bool, ok bool)

// DecodedSlot pairs the channel a MessageSlot targets with its frame.
type DecodedSlot struct {
	ChannelID netid.ID
	Frame     channel.IncomingFrame
}

// DecodeSlot reads one MessageSlot from r. Returns neterr-eligible errors:
// an unknown channel id is surfaced via ok=false so the caller can count a
// Registry error; the slots after it cannot be decoded, so the caller drops
// the rest of the packet.
func DecodeSlot(r *wire.Reader, lookup SlotSettingsLookup) (DecodedSlot, bool, error) {
	var slot DecodedSlot

	chID, err := r.ReadVarint()
	if err != nil {
		return slot, false, err
	}
	slot.ChannelID = netid.ID(chID)

	frameKind, err := r.ReadU8()
	if err != nil {
		return slot, false, err
	}
	isFragment := frameKind == frameKindFragment
	slot.Frame.IsFragment = isFragment

	reliable, sequenced, tickBuffered, ok := lookup(slot.ChannelID)
	if !ok {
		// Unknown channel: we cannot know the conditional field layout that
		// follows, so the remainder of this packet is unrecoverable. The
		// caller drops the whole packet (conservative, matches "unknown
		// channel-net-id -> drop message" generalized to the packet when
		// layout can't be resolved).
		return slot, false, nil
	}

	if reliable || sequenced || isFragment {
		if slot.Frame.MessageID, err = r.ReadU16(); err != nil {
			return slot, false, err
		}
	}
	if tickBuffered {
		t, err := r.ReadU16()
		if err != nil {
			return slot, false, err
		}
		slot.Frame.Tick = tick.Tick(t)
	}
	if isFragment {
		if slot.Frame.FragmentIndex, err = r.ReadU8(); err != nil {
			return slot, false, err
		}
		if slot.Frame.NumFragments, err = r.ReadU8(); err != nil {
			return slot, false, err
		}
	}
	payloadLen, err := r.ReadVarint()
	if err != nil {
		return slot, false, err
	}
	payload, err := r.ReadBytes(int(payloadLen))
	if err != nil {
		return slot, false, err
	}
	slot.Frame.Payload = payload
	return slot, true, nil
}
