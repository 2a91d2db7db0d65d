package pools

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("pools: worker pool closed")

// Task is a unit of blocking work, typically one positional disk read.
type Task func()

// WorkerPool runs blocking tasks off the event loop. Each worker owns a
// queue and steals from its neighbours when idle.
type WorkerPool struct {
	numWorkers int
	queues     []chan Task

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	next   atomic.Uint64

	stats struct {
		submitted atomic.Uint64
		completed atomic.Uint64
		inline    atomic.Uint64
		steals    atomic.Uint64
	}
}

// NewWorkerPool starts numWorkers workers, or one per CPU when numWorkers <= 0.
func NewWorkerPool(numWorkers, queueDepth int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if queueDepth <= 0 {
		queueDepth = 256
	}

	p := &WorkerPool{
		numWorkers: numWorkers,
		queues:     make([]chan Task, numWorkers),
	}
	for i := range p.queues {
		p.queues[i] = make(chan Task, queueDepth)
	}

	p.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.work(i)
	}
	return p
}

// Submit hands task to a worker. When every queue is full the task runs on
// the caller's goroutine so it is never dropped.
func (p *WorkerPool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.stats.submitted.Add(1)
	idx := int(p.next.Add(1) % uint64(p.numWorkers))
	for i := 0; i < 2; i++ {
		select {
		case p.queues[(idx+i)%p.numWorkers] <- task:
			return nil
		default:
		}
	}

	p.stats.inline.Add(1)
	p.run(task)
	return nil
}

func (p *WorkerPool) work(id int) {
	defer p.wg.Done()
	own := p.queues[id]

	for {
		select {
		case task, ok := <-own:
			if !ok {
				return
			}
			p.run(task)
			continue
		default:
		}

		if p.steal(id) {
			continue
		}

		task, ok := <-own
		if !ok {
			return
		}
		p.run(task)
	}
}

func (p *WorkerPool) steal(id int) bool {
	for i := 1; i < p.numWorkers; i++ {
		select {
		case task, ok := <-p.queues[(id+i)%p.numWorkers]:
			if !ok {
				continue
			}
			p.stats.steals.Add(1)
			p.run(task)
			return true
		default:
		}
	}
	return false
}

func (p *WorkerPool) run(task Task) {
	task()
	p.stats.completed.Add(1)
}

// Close stops accepting tasks, lets queued tasks finish and waits for the
// workers to exit. It is safe to call more than once.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats returns a point-in-time copy of the pool counters.
func (p *WorkerPool) Stats() WorkerPoolStats {
	submitted := p.stats.submitted.Load()
	completed := p.stats.completed.Load()
	return WorkerPoolStats{
		NumWorkers: p.numWorkers,
		Submitted:  submitted,
		Completed:  completed,
		Pending:    submitted - completed,
		Inline:     p.stats.inline.Load(),
		Steals:     p.stats.steals.Load(),
	}
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	NumWorkers int
	Submitted  uint64
	Completed  uint64
	Pending    uint64
	Inline     uint64
	Steals     uint64
}
