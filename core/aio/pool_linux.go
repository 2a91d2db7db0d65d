//go:build linux

package aio

import (
	"fmt"

	"github.com/searchktools/fast-fileserver/core/pools"
	"golang.org/x/sys/unix"
)

type result struct {
	n   int
	err error
}

// poolContext performs the read with pread on a worker goroutine.
type poolContext struct {
	pool     *pools.WorkerPool
	efd      int
	results  chan result
	inflight bool
	released bool
}

func (c *poolContext) Submit(fd int, buf []byte, off int64) error {
	if c.released {
		return ErrReleased
	}
	if c.inflight {
		return ErrBusy
	}
	if len(buf) == 0 {
		return ErrEmptyBuffer
	}

	c.inflight = true
	err := c.pool.Submit(func() {
		var r result
		for {
			r.n, r.err = unix.Pread(fd, buf, off)
			if r.err != unix.EINTR {
				break
			}
		}
		if r.err != nil {
			r.n = 0
			r.err = fmt.Errorf("pread: %w", r.err)
		}
		// Signal before handing over the result: Release closes the
		// eventfd once it has received it.
		signalEventfd(c.efd)
		c.results <- r
	})
	if err != nil {
		c.inflight = false
		return err
	}
	return nil
}

func (c *poolContext) Poll() (int, error) {
	if c.released {
		return 0, ErrReleased
	}
	if !c.inflight {
		return 0, ErrIdle
	}

	select {
	case r := <-c.results:
		c.inflight = false
		drainEventfd(c.efd)
		return r.n, r.err
	default:
		return 0, ErrPending
	}
}

func (c *poolContext) Fd() int { return c.efd }

func (c *poolContext) Release() error {
	if c.released {
		return ErrReleased
	}
	c.released = true
	if c.inflight {
		<-c.results
		c.inflight = false
	}
	if err := unix.Close(c.efd); err != nil {
		return fmt.Errorf("close eventfd: %w", err)
	}
	return nil
}

// PoolProvider creates contexts that share one worker pool.
type PoolProvider struct {
	pool *pools.WorkerPool
}

// NewPoolProvider starts a worker pool with the given number of workers.
func NewPoolProvider(workers int) *PoolProvider {
	return &PoolProvider{pool: pools.NewWorkerPool(workers, 0)}
}

func (p *PoolProvider) NewContext() (Context, error) {
	efd, err := newEventfd()
	if err != nil {
		return nil, err
	}
	return &poolContext{
		pool:    p.pool,
		efd:     efd,
		results: make(chan result, 1),
	}, nil
}

func (p *PoolProvider) Backend() string { return BackendPool }

// Stats exposes the underlying worker pool counters.
func (p *PoolProvider) Stats() pools.WorkerPoolStats { return p.pool.Stats() }

// Close waits for queued reads and stops the workers.
func (p *PoolProvider) Close() { p.pool.Close() }
