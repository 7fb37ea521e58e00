// Package interpolation implements the snapshot buffer and temporal
// sampling that smooth presentation of non-predicted remote entities, per
// spec.md §4.9.
package interpolation

import "github.com/appnet-org/netplay/pkg/tick"

type snapshot struct {
	tick  tick.Tick
	value []byte
}

// Buffer is a per-component ring of confirmed snapshots keyed by server
// tick, kept sorted ascending so Sample can locate the two snapshots
// surrounding any render-time tick, per spec.md §4.9.
type Buffer struct {
	capacity int
	entries  []snapshot
}

func NewBuffer(capacity int) *Buffer {
	if capacity < 2 {
		capacity = 2
	}
	return &Buffer{capacity: capacity, entries: make([]snapshot, 0, capacity)}
}

// Push records value at tick t. Entries with a tick not newer than the
// buffer's newest are ignored rather than inserted in tick order.
func (b *Buffer) Push(t tick.Tick, value []byte) {
	if n := len(b.entries); n > 0 {
		last := b.entries[n-1].tick
		if !tick.Before(last, t) {
			return
		}
	}
	b.entries = append(b.entries, snapshot{tick: t, value: value})
	if len(b.entries) > b.capacity {
		b.entries = b.entries[len(b.entries)-b.capacity:]
	}
}

// Surrounding locates the two snapshots (t0, v0), (t1, v1) such that
// t0 <= at <= t1. If at is before the oldest retained snapshot or only one
// snapshot is buffered, ok1 is false and the caller should hold v0 (the
// single available snapshot), per spec.md §4.9's "If only one snapshot is
// available the value is held." If at is after the newest snapshot, the
// newest is returned as both ends (hold-last).
func (b *Buffer) Surrounding(at tick.Tick) (t0 tick.Tick, v0 []byte, t1 tick.Tick, v1 []byte, ok0, ok1 bool) {
	n := len(b.entries)
	if n == 0 {
		return 0, nil, 0, nil, false, false
	}
	if n == 1 || tick.Before(at, b.entries[0].tick) {
		return b.entries[0].tick, b.entries[0].value, 0, nil, true, false
	}
	if !tick.Before(at, b.entries[n-1].tick) {
		last := b.entries[n-1]
		return last.tick, last.value, last.tick, last.value, true, true
	}
	for i := 0; i < n-1; i++ {
		a, c := b.entries[i], b.entries[i+1]
		if !tick.Before(at, a.tick) && !tick.Before(c.tick, at) {
			return a.tick, a.value, c.tick, c.value, true, true
		}
	}
	last := b.entries[n-1]
	return last.tick, last.value, last.tick, last.value, true, true
}

// Len reports how many snapshots are currently retained.
func (b *Buffer) Len() int { return len(b.entries) }
