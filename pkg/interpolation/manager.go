package interpolation

import (
	"github.com/appnet-org/netplay/pkg/netid"
	"github.com/appnet-org/netplay/pkg/tick"
)

// InterpFunc blends two serialized component values at fraction frac in
// [0,1], per the component's registered interpolation function (linear for
// scalars/vectors, slerp for rotations, step for discrete state), per
// spec.md §4.9.
type InterpFunc func(a, b []byte, frac float64) []byte

type componentKey struct {
	entity    uint64
	component netid.ID
}

// Manager owns one Buffer per (entity, component) for every Interpolated
// entity's components, plus the InterpFunc table used to sample them.
type Manager struct {
	capacity int
	funcs    map[netid.ID]InterpFunc
	buffers  map[componentKey]*Buffer
}

func NewManager(capacity int, funcs map[netid.ID]InterpFunc) *Manager {
	if funcs == nil {
		funcs = make(map[netid.ID]InterpFunc)
	}
	return &Manager{capacity: capacity, funcs: funcs, buffers: make(map[componentKey]*Buffer)}
}

func (m *Manager) buffer(entity uint64, component netid.ID) *Buffer {
	key := componentKey{entity, component}
	b, ok := m.buffers[key]
	if !ok {
		b = NewBuffer(m.capacity)
		m.buffers[key] = b
	}
	return b
}

// Observe appends a newly received confirmed value for an interpolated
// entity's component, to be sampled later by Sample.
func (m *Manager) Observe(entity uint64, component netid.ID, at tick.Tick, value []byte) {
	m.buffer(entity, component).Push(at, value)
}

// Sample computes the interpolated value for (entity, component) at the
// Interpolation timeline's current tick. ok is false only if no snapshot
// has ever been observed.
func (m *Manager) Sample(entity uint64, component netid.ID, at tick.Tick) ([]byte, bool) {
	b, exists := m.buffers[componentKey{entity, component}]
	if !exists || b.Len() == 0 {
		return nil, false
	}
	t0, v0, t1, v1, ok0, ok1 := b.Surrounding(at)
	if !ok0 {
		return nil, false
	}
	if !ok1 || t0 == t1 {
		return v0, true
	}
	fn := m.funcs[component]
	if fn == nil {
		return v0, true // no registered interpolation function: hold the earlier snapshot
	}
	span := float64(tick.WrappingDiff(t0, t1))
	if span <= 0 {
		return v0, true
	}
	frac := float64(tick.WrappingDiff(t0, at)) / span
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return fn(v0, v1, frac), true
}

// Forget releases every buffer belonging to entity, called when its
// interpolated twin is despawned.
func (m *Manager) Forget(entity uint64) {
	for key := range m.buffers {
		if key.entity == entity {
			delete(m.buffers, key)
		}
	}
}
