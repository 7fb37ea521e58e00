// Package fragment reassembles messages split across multiple wire frames.
// Adapted directly from the teacher's pkg/transport/fragmentation.go
// DataReassembler: fragment-count-keyed completion tracking with a bitset of
// which indices have arrived, generalized from an RPC-id key to a channel
// message-id key and from whole-UDP-packet fragments to channel frames.
package fragment

import (
	"time"

	"github.com/appnet-org/netplay/pkg/common"
)

// DefaultTimeout is how long a partial fragment set is kept before being
// considered abandoned.
const DefaultTimeout = 5 * time.Second

type partialSet struct {
	total     uint8
	chunks    [][]byte
	haveCount uint8
	have      []bool
	startedAt time.Time
}

// Reassembler collects fragments for one channel's receiver, keyed by
// message id. A given message id is only ever in flight once at a time
// (reliable channels retransmit the whole message, not surviving
// fragments), so the key space does not need a generation counter.
type Reassembler struct {
	pool    *common.BufferPool
	sets    map[uint16]*partialSet
	timeout time.Duration
}

func NewReassembler(pool *common.BufferPool, timeout time.Duration) *Reassembler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Reassembler{
		pool:    pool,
		sets:    make(map[uint16]*partialSet),
		timeout: timeout,
	}
}

// Process folds one fragment into its message's partial set. It returns the
// full reassembled payload and true once the final fragment arrives,
// otherwise (nil, false).
func (r *Reassembler) Process(messageID uint16, fragmentIndex, numFragments uint8, payload []byte, now time.Time) ([]byte, bool) {
	set, ok := r.sets[messageID]
	if !ok {
		set = &partialSet{
			total:     numFragments,
			chunks:    make([][]byte, numFragments),
			have:      make([]bool, numFragments),
			startedAt: now,
		}
		r.sets[messageID] = set
	}
	if int(fragmentIndex) >= len(set.chunks) {
		return nil, false
	}
	if !set.have[fragmentIndex] {
		buf := r.pool.GetSize(len(payload))
		copy(buf, payload)
		set.chunks[fragmentIndex] = buf
		set.have[fragmentIndex] = true
		set.haveCount++
	}
	if set.haveCount < set.total {
		return nil, false
	}

	totalLen := 0
	for _, c := range set.chunks {
		totalLen += len(c)
	}
	full := r.pool.GetSize(totalLen)
	full = full[:0]
	for _, c := range set.chunks {
		full = append(full, c...)
		r.pool.Put(c)
	}
	delete(r.sets, messageID)
	return full, true
}

// ExpireOlderThan drops every partial set that started before the
// reassembler's timeout and returns the dropped message ids, so the caller
// can count a fragment-timeout error per spec §4.10's failure semantics.
func (r *Reassembler) ExpireOlderThan(now time.Time) []uint16 {
	var expired []uint16
	for id, set := range r.sets {
		if now.Sub(set.startedAt) > r.timeout {
			for _, c := range set.chunks {
				if c != nil {
					r.pool.Put(c)
				}
			}
			delete(r.sets, id)
			expired = append(expired, id)
		}
	}
	return expired
}

// Pending returns the number of in-flight partial fragment sets.
func (r *Reassembler) Pending() int { return len(r.sets) }
