// Package neterr defines the typed error kinds from the error-handling
// design and the per-connection counters that surface recoverable errors to
// the observability interface instead of propagating them past the
// offending packet or message.
package neterr

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Sentinel errors for the six kinds. Use errors.Is against these after
// wrapping with fmt.Errorf("...: %w", ...).
var (
	ErrSerialization = errors.New("neterr: serialization error")
	ErrRegistry      = errors.New("neterr: unknown registry id")
	ErrTransport     = errors.New("neterr: transport failure")
	ErrHandshake     = errors.New("neterr: handshake rejected")
	ErrReplication   = errors.New("neterr: replication error")
	ErrFatal         = errors.New("neterr: fatal protocol invariant violated")
)

// Wrap annotates err with sentinel kind so callers can errors.Is against the
// kind while still seeing the underlying cause in the error string.
func Wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}

// Counters accumulates per-connection recoverable-error counts, read
// concurrently by an observability poller while being written on the
// single-threaded connection task.
type Counters struct {
	serialization atomic.Uint64
	registry      atomic.Uint64
	replication   atomic.Uint64
	fragmentDrop  atomic.Uint64
	sequencedDrop atomic.Uint64
}

func (c *Counters) IncSerialization() { c.serialization.Add(1) }
func (c *Counters) IncRegistry()      { c.registry.Add(1) }
func (c *Counters) IncReplication()   { c.replication.Add(1) }
func (c *Counters) IncFragmentDrop()  { c.fragmentDrop.Add(1) }
func (c *Counters) IncSequencedDrop() { c.sequencedDrop.Add(1) }

// Snapshot is a point-in-time copy of every counter, safe to log or export.
type Snapshot struct {
	Serialization uint64
	Registry      uint64
	Replication   uint64
	FragmentDrop  uint64
	SequencedDrop uint64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Serialization: c.serialization.Load(),
		Registry:      c.registry.Load(),
		Replication:   c.replication.Load(),
		FragmentDrop:  c.fragmentDrop.Load(),
		SequencedDrop: c.sequencedDrop.Load(),
	}
}
