package fragment

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/appnet-org/netplay/pkg/common"
)

// split mirrors channel.Sender.fragmentPayload's chunking rule, kept local
// here so this package's tests don't need to import channel.
func split(payload []byte, fragmentSize int) [][]byte {
	if len(payload) <= fragmentSize {
		return [][]byte{payload}
	}
	n := (len(payload) + fragmentSize - 1) / fragmentSize
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		start := i * fragmentSize
		end := start + fragmentSize
		if end > len(payload) {
			end = len(payload)
		}
		out = append(out, payload[start:end])
	}
	return out
}

// TestFragmentRoundTrip is P4: a payload fragmented into
// ceil(L/FRAGMENT_SIZE) pieces and fed to the reassembler in any order
// reassembles into exactly the original bytes.
func TestFragmentRoundTrip(t *testing.T) {
	const fragmentSize = 1024
	payload := make([]byte, 3500)
	rand.New(rand.NewSource(1)).Read(payload)

	chunks := split(payload, fragmentSize)
	require.Len(t, chunks, 4, "E3: 3500 bytes at FRAGMENT_SIZE=1024 must split into exactly 4 fragments")
	require.Equal(t, 1024, len(chunks[0]))
	require.Equal(t, 1024, len(chunks[1]))
	require.Equal(t, 1024, len(chunks[2]))
	require.Equal(t, 428, len(chunks[3]))

	r := NewReassembler(common.NewBufferPool(), time.Second)
	now := time.Now()

	// Feed out of order (2, 0, 3, 1) to confirm order of arrival doesn't
	// matter, only completeness.
	order := []int{2, 0, 3, 1}
	var full []byte
	var complete bool
	for _, idx := range order {
		full, complete = r.Process(1, uint8(idx), uint8(len(chunks)), chunks[idx], now)
	}

	require.True(t, complete)
	require.True(t, bytes.Equal(payload, full), "reassembled payload must be byte-identical to the original")
	require.Equal(t, 0, r.Pending())
}

// TestFragmentSmallPayloadIsSingleFragment covers the non-fragmented case:
// a payload at or under FRAGMENT_SIZE is carried in exactly one fragment.
func TestFragmentSmallPayloadIsSingleFragment(t *testing.T) {
	payload := []byte("hello world")
	chunks := split(payload, 1024)
	require.Len(t, chunks, 1)

	r := NewReassembler(common.NewBufferPool(), time.Second)
	full, complete := r.Process(7, 0, 1, chunks[0], time.Now())
	require.True(t, complete)
	require.Equal(t, payload, full)
}

// TestFragmentExpiry confirms a partial set older than the timeout is
// dropped and reported, per the fragment-timeout failure semantics.
func TestFragmentExpiry(t *testing.T) {
	r := NewReassembler(common.NewBufferPool(), 10*time.Millisecond)
	now := time.Now()

	_, complete := r.Process(3, 0, 2, []byte("a"), now)
	require.False(t, complete)
	require.Equal(t, 1, r.Pending())

	expired := r.ExpireOlderThan(now.Add(50 * time.Millisecond))
	require.Equal(t, []uint16{3}, expired)
	require.Equal(t, 0, r.Pending())
}
