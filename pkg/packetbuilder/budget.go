package packetbuilder

import "time"

// Budget is an optional leaky-bucket bandwidth cap consulted by the packer
// before admitting a low-priority frame, per spec.md §4.3's last sentence.
// Grounded on the bandwidth-estimate/token bookkeeping in
// pkg/custom/congestion/utils.go and pkg/custom/flowcontrol, generalized
// from a per-RPC-call feedback loop to a plain token bucket since this
// module has no end-to-end congestion-control requirement of its own, only
// a configured cap.
type Budget struct {
	bytesPerSecond float64
	capacity       float64
	tokens         float64
	last           time.Time
	unbounded      bool
}

// NewBudget constructs a token bucket refilling at bytesPerSecond, holding
// at most one second's worth of tokens. bytesPerSecond <= 0 disables the
// cap entirely (Admit always succeeds).
func NewBudget(bytesPerSecond float64, now time.Time) *Budget {
	if bytesPerSecond <= 0 {
		return &Budget{unbounded: true}
	}
	return &Budget{
		bytesPerSecond: bytesPerSecond,
		capacity:       bytesPerSecond,
		tokens:         bytesPerSecond,
		last:           now,
	}
}

func (b *Budget) refill(now time.Time) {
	if b.unbounded {
		return
	}
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.bytesPerSecond
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.last = now
}

// Admit reports whether n additional bytes fit within the current budget,
// and if so deducts them.
func (b *Budget) Admit(n int, now time.Time) bool {
	if b.unbounded {
		return true
	}
	b.refill(now)
	if b.tokens < float64(n) {
		return false
	}
	b.tokens -= float64(n)
	return true
}
