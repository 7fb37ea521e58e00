package interpolation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/appnet-org/netplay/pkg/netid"
)

func encodeX(v int) []byte { return []byte{byte(v)} }
func decodeX(b []byte) int { return int(b[0]) }

func linear(a, b []byte, frac float64) []byte {
	av, bv := float64(decodeX(a)), float64(decodeX(b))
	return encodeX(int(av + (bv-av)*frac))
}

// TestInterpolationSamplesBetweenSnapshots is E5: snapshots at (T=10,x=0)
// and (T=20,x=100) sampled at tick=15 must render x=50.
func TestInterpolationSamplesBetweenSnapshots(t *testing.T) {
	const comp netid.ID = 1
	const entity uint64 = 1

	mgr := NewManager(8, map[netid.ID]InterpFunc{comp: linear})
	mgr.Observe(entity, comp, 10, encodeX(0))
	mgr.Observe(entity, comp, 20, encodeX(100))

	value, ok := mgr.Sample(entity, comp, 15)
	require.True(t, ok)
	require.Equal(t, 50, decodeX(value))
}

func TestInterpolationHoldsSingleSnapshot(t *testing.T) {
	const comp netid.ID = 1
	const entity uint64 = 2

	mgr := NewManager(8, map[netid.ID]InterpFunc{comp: linear})
	mgr.Observe(entity, comp, 10, encodeX(42))

	value, ok := mgr.Sample(entity, comp, 15)
	require.True(t, ok)
	require.Equal(t, 42, decodeX(value), "with only one snapshot available the value is held")
}

func TestInterpolationHoldsLastPastNewestSnapshot(t *testing.T) {
	const comp netid.ID = 1
	const entity uint64 = 3

	mgr := NewManager(8, map[netid.ID]InterpFunc{comp: linear})
	mgr.Observe(entity, comp, 10, encodeX(0))
	mgr.Observe(entity, comp, 20, encodeX(100))

	value, ok := mgr.Sample(entity, comp, 30)
	require.True(t, ok)
	require.Equal(t, 100, decodeX(value))
}

func TestInterpolationNoSnapshotYet(t *testing.T) {
	mgr := NewManager(8, nil)
	_, ok := mgr.Sample(1, 1, 5)
	require.False(t, ok)
}

func TestInterpolationForgetReleasesEntity(t *testing.T) {
	const comp netid.ID = 1
	mgr := NewManager(8, map[netid.ID]InterpFunc{comp: linear})
	mgr.Observe(1, comp, 10, encodeX(0))
	mgr.Forget(1)

	_, ok := mgr.Sample(1, comp, 10)
	require.False(t, ok)
}
