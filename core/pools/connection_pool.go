package pools

import (
	"sync"
	"sync/atomic"
)

// Poolable is implemented by objects recycled through a ConnectionPool.
type Poolable interface {
	Reset()
	SetFD(fd int)
}

// ConnectionPool recycles per-connection records between accepts.
type ConnectionPool[T Poolable] struct {
	pool sync.Pool
	gets atomic.Uint64
	puts atomic.Uint64
}

// NewConnectionPool creates a pool that allocates with newFunc on a miss.
func NewConnectionPool[T Poolable](newFunc func() T) *ConnectionPool[T] {
	cp := &ConnectionPool[T]{}
	cp.pool.New = func() any { return newFunc() }
	return cp
}

// Get returns a reset record bound to fd.
func (cp *ConnectionPool[T]) Get(fd int) T {
	cp.gets.Add(1)
	obj := cp.pool.Get().(T)
	obj.SetFD(fd)
	return obj
}

// Put resets obj and makes it available for reuse.
func (cp *ConnectionPool[T]) Put(obj T) {
	obj.Reset()
	cp.puts.Add(1)
	cp.pool.Put(obj)
}

// Stats returns the number of Get and Put calls and the put/get ratio.
func (cp *ConnectionPool[T]) Stats() (gets, puts uint64, hitRate float64) {
	g := cp.gets.Load()
	p := cp.puts.Load()
	if g > 0 {
		hitRate = float64(p) / float64(g)
	}
	return g, p, hitRate
}
