package interpolation

import (
	"encoding/binary"
	"math"
)

// LinearFloats interpolates a and b as equal-length little-endian float32
// arrays (positions, velocities, and other additive vector components),
// per spec.md §4.9's "linear for scalars/vectors". Mismatched lengths or
// odd byte counts return b unchanged.
func LinearFloats(a, b []byte, frac float64) []byte {
	if len(a) != len(b) || len(a)%4 != 0 {
		return b
	}
	out := make([]byte, len(a))
	n := len(a) / 4
	for i := 0; i < n; i++ {
		off := i * 4
		av := math.Float32frombits(binary.LittleEndian.Uint32(a[off:]))
		bv := math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
		v := av + float32(frac)*(bv-av)
		binary.LittleEndian.PutUint32(out[off:], math.Float32bits(v))
	}
	return out
}

// SlerpQuaternion spherically interpolates two little-endian
// (x,y,z,w) float32 quaternions, per spec.md §4.9's "slerp for rotations".
// Non-16-byte inputs fall back to LinearFloats.
func SlerpQuaternion(a, b []byte, frac float64) []byte {
	if len(a) != 16 || len(b) != 16 {
		return LinearFloats(a, b, frac)
	}
	read := func(buf []byte) [4]float64 {
		var q [4]float64
		for i := 0; i < 4; i++ {
			q[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:])))
		}
		return q
	}
	qa, qb := read(a), read(b)

	dot := qa[0]*qb[0] + qa[1]*qb[1] + qa[2]*qb[2] + qa[3]*qb[3]
	if dot < 0 {
		for i := range qb {
			qb[i] = -qb[i]
		}
		dot = -dot
	}

	var out [4]float64
	const epsilon = 1e-6
	if dot > 1-epsilon {
		// nearly parallel: linear blend avoids a division by ~0 in sin(theta)
		for i := range out {
			out[i] = qa[i] + frac*(qb[i]-qa[i])
		}
	} else {
		theta0 := math.Acos(dot)
		theta := theta0 * frac
		sinTheta0 := math.Sin(theta0)
		s0 := math.Cos(theta) - dot*math.Sin(theta)/sinTheta0
		s1 := math.Sin(theta) / sinTheta0
		for i := range out {
			out[i] = s0*qa[i] + s1*qb[i]
		}
	}

	norm := math.Sqrt(out[0]*out[0] + out[1]*out[1] + out[2]*out[2] + out[3]*out[3])
	if norm > epsilon {
		for i := range out {
			out[i] /= norm
		}
	}

	result := make([]byte, 16)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(result[i*4:], math.Float32bits(float32(out[i])))
	}
	return result
}

// Step holds a until frac crosses the midpoint, then snaps to b, per
// spec.md §4.9's "step for discrete state" (enums, flags, anything for
// which blending intermediate values is meaningless).
func Step(a, b []byte, frac float64) []byte {
	if frac < 0.5 {
		return a
	}
	return b
}
