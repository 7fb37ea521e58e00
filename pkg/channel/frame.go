package channel

import (
	"time"

	"github.com/appnet-org/netplay/pkg/tick"
)

// OutgoingFrame is one ready-to-pack unit handed from a Sender to the
// packet builder: a single message, or one fragment of an oversize message.
type OutgoingFrame struct {
	MessageID     uint16 // valid if Reliable or IsFragment
	Tick          tick.Tick
	IsFragment    bool
	FragmentIndex uint8
	NumFragments  uint8
	Payload       []byte
	Priority      float32

	QueuedAt time.Time // when this frame's message was first enqueued; used for age-weighted priority
}

// IncomingFrame is one MessageSlot decoded off the wire and handed to a
// Receiver.
type IncomingFrame struct {
	MessageID     uint16
	Tick          tick.Tick
	IsFragment    bool
	FragmentIndex uint8
	NumFragments  uint8
	Payload       []byte
}
