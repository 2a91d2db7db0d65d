package pools

import (
	"sort"
	"sync"
	"sync/atomic"
)

// BytePool is a multi-tiered byte slice pool. Connection receive and
// transfer buffers are drawn from it.
type BytePool struct {
	pools []*sync.Pool
	sizes []int

	gets   atomic.Uint64
	puts   atomic.Uint64
	misses atomic.Uint64
}

// DefaultSizes cover request headers through large transfer buffers.
var DefaultSizes = []int{
	2048,
	8192,
	32768,
	131072,
}

// NewBytePool creates a pool with the given size tiers, or DefaultSizes
// when none are passed.
func NewBytePool(sizes ...int) *BytePool {
	if len(sizes) == 0 {
		sizes = DefaultSizes
	}
	sizes = append([]int(nil), sizes...)
	sort.Ints(sizes)

	bp := &BytePool{
		pools: make([]*sync.Pool, len(sizes)),
		sizes: sizes,
	}
	for i, size := range sizes {
		sz := size
		bp.pools[i] = &sync.Pool{
			New: func() any {
				buf := make([]byte, sz)
				return &buf
			},
		}
	}
	return bp
}

// Get returns a slice of length size. Sizes above the largest tier are
// allocated directly and are not retained by Put.
func (bp *BytePool) Get(size int) []byte {
	bp.gets.Add(1)
	for i, poolSize := range bp.sizes {
		if size <= poolSize {
			buf := *bp.pools[i].Get().(*[]byte)
			return buf[:size]
		}
	}
	bp.misses.Add(1)
	return make([]byte, size)
}

// Put returns buf to the tier matching its capacity.
func (bp *BytePool) Put(buf []byte) {
	if buf == nil {
		return
	}
	capacity := cap(buf)
	for i, poolSize := range bp.sizes {
		if capacity == poolSize {
			buf = buf[:capacity]
			bp.pools[i].Put(&buf)
			bp.puts.Add(1)
			return
		}
	}
}

// Stats returns pool counters.
func (bp *BytePool) Stats() BytePoolStats {
	return BytePoolStats{
		Gets:   bp.gets.Load(),
		Puts:   bp.puts.Load(),
		Misses: bp.misses.Load(),
	}
}

// BytePoolStats contains byte pool statistics
type BytePoolStats struct {
	Gets   uint64
	Puts   uint64
	Misses uint64
}
