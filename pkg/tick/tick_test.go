package tick

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestWrappingDiffBasic is property 6 for the non-wrapped case.
func TestWrappingDiffBasic(t *testing.T) {
	require.Equal(t, int16(5), WrappingDiff(10, 15))
	require.Equal(t, int16(-5), WrappingDiff(15, 10))
	require.Equal(t, int16(0), WrappingDiff(10, 10))
}

// TestWrappingDiffAcrossWraparound is property 6: ticks whose true distance
// is < 2^15 compare correctly even when the 16-bit counter has wrapped.
func TestWrappingDiffAcrossWraparound(t *testing.T) {
	a := Tick(math.MaxUint16 - 2) // 65533
	b := Tick(2)                 // wrapped around: true distance 5

	require.Equal(t, int16(5), WrappingDiff(a, b))
	require.Equal(t, int16(-5), WrappingDiff(b, a))
	require.True(t, Before(a, b))
	require.False(t, Before(b, a))
}

func TestAddWraps(t *testing.T) {
	t0 := Tick(math.MaxUint16)
	require.Equal(t, Tick(0), t0.Add(1))
	require.Equal(t, Tick(math.MaxUint16-1), t0.Add(-1))
}

func TestBeforeOrdersWithinHalfRange(t *testing.T) {
	require.True(t, Before(Tick(100), Tick(200)))
	require.False(t, Before(Tick(200), Tick(100)))
	require.False(t, Before(Tick(100), Tick(100)))
}
