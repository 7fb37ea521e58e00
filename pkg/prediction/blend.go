package prediction

import "github.com/appnet-org/netplay/pkg/netid"

// LerpFunc blends two serialized component values at progress t in [0,1].
type LerpFunc func(from, to []byte, t float64) []byte

type blendState struct {
	from  []byte
	to    []byte
	step  int
	total int
}

// Corrector smooths the visible jump a rollback can cause by blending the
// pre-rollback (visually displayed) value toward the freshly resimulated
// value over a configurable number of ticks, per spec.md §4.8's "Optional
// correction blends the post-rollback value toward the newly computed
// value over N ticks to hide visual snap."
type Corrector struct {
	ticks int
	lerp  map[netid.ID]LerpFunc
	state map[componentKey]*blendState
}

func NewCorrector(ticks int, lerp map[netid.ID]LerpFunc) *Corrector {
	if ticks < 1 {
		ticks = 1
	}
	if lerp == nil {
		lerp = make(map[netid.ID]LerpFunc)
	}
	return &Corrector{ticks: ticks, lerp: lerp, state: make(map[componentKey]*blendState)}
}

// Begin starts (or restarts) a correction blend from the value currently
// on screen toward the rollback-corrected value.
func (c *Corrector) Begin(entity uint64, component netid.ID, displayed, corrected []byte) {
	if _, ok := c.lerp[component]; !ok {
		return // no registered blend function: caller snaps directly, no smoothing
	}
	c.state[componentKey{entity, component}] = &blendState{from: displayed, to: corrected, total: c.ticks}
}

// Step advances one tick of an in-progress correction and returns the
// blended value to display this frame. ok is false once no correction is
// active for (entity, component); the caller should then display the
// component's own current value.
func (c *Corrector) Step(entity uint64, component netid.ID) (value []byte, ok bool) {
	key := componentKey{entity, component}
	st, active := c.state[key]
	if !active {
		return nil, false
	}
	st.step++
	progress := float64(st.step) / float64(st.total)
	if progress >= 1.0 {
		delete(c.state, key)
		return st.to, true
	}
	lerp := c.lerp[component]
	return lerp(st.from, st.to, progress), true
}
