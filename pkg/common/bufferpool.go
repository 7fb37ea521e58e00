// Package common holds small allocation-avoidance helpers shared across the
// send/receive hot path: packet builder, fragment assembler and wire writer
// all pull their scratch buffers from a BufferPool instead of calling make.
package common

import "sync"

// bucketSizes are the capacity classes a BufferPool rounds requests up to.
// Packets are bounded by MTU (default 1200) and components rarely serialize
// past a few hundred bytes, so a handful of buckets covers the hot path
// without the pool fragmenting into one size per call site.
var bucketSizes = []int{64, 256, 1024, 1500, 4096, 16384}

// BufferPool is a capacity-bucketed sync.Pool of byte slices. Buffers
// returned by GetSize are length n and capacity >= n but the caller must not
// assume the backing array is zeroed.
type BufferPool struct {
	pools []sync.Pool
}

// NewBufferPool constructs a BufferPool with the default bucket sizes.
func NewBufferPool() *BufferPool {
	bp := &BufferPool{pools: make([]sync.Pool, len(bucketSizes))}
	for i, sz := range bucketSizes {
		sz := sz
		bp.pools[i].New = func() any {
			b := make([]byte, sz)
			return &b
		}
	}
	return bp
}

func bucketFor(n int) int {
	for i, sz := range bucketSizes {
		if n <= sz {
			return i
		}
	}
	return -1
}

// GetSize returns a []byte of length n. If n exceeds the largest bucket the
// pool allocates directly rather than growing its bucket table.
func (p *BufferPool) GetSize(n int) []byte {
	if p == nil {
		return make([]byte, n)
	}
	idx := bucketFor(n)
	if idx < 0 {
		return make([]byte, n)
	}
	bufp := p.pools[idx].Get().(*[]byte)
	buf := *bufp
	if cap(buf) < n {
		buf = make([]byte, bucketSizes[idx])
	}
	return buf[:n]
}

// Put returns a buffer obtained from GetSize to the pool for reuse. Buffers
// not originally obtained from this pool (oversize allocations) are dropped.
func (p *BufferPool) Put(buf []byte) {
	if p == nil || buf == nil {
		return
	}
	c := cap(buf)
	for i, sz := range bucketSizes {
		if c == sz {
			full := buf[:sz]
			p.pools[i].Put(&full)
			return
		}
	}
}
