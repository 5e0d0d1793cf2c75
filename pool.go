package xevent

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// WorkerPool runs tasks on a fixed number of workers fed by a bounded queue.
// Submit never blocks: when the queue is full the task is rejected.
type WorkerPool struct {
	tasks   chan func()
	workers int
	group   errgroup.Group

	mu     sync.RWMutex // guards close(tasks) against concurrent sends
	closed atomic.Bool

	running   atomic.Int64
	rejected  atomic.Uint64
	processed atomic.Uint64
	panics    atomic.Uint64
}

// NewWorkerPool creates a pool and starts its workers.
// workers: number of goroutines (default 4)
// queueSize: capacity of the task queue (default 1024)
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers < 1 {
		workers = 4
	}
	if queueSize < 1 {
		queueSize = 1024
	}
	p := &WorkerPool{
		tasks:   make(chan func(), queueSize),
		workers: workers,
	}
	for i := 0; i < workers; i++ {
		p.group.Go(p.worker)
	}
	return p
}

// Submit queues a task for execution.
func (p *WorkerPool) Submit(task func()) error {
	if task == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed.Load() {
		return ErrExecutorClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		p.rejected.Add(1)
		return ErrExecutorSaturated
	}
}

func (p *WorkerPool) worker() error {
	for task := range p.tasks {
		p.run(task)
	}
	return nil
}

// run executes one task. A panicking task must not take the worker down.
func (p *WorkerPool) run(task func()) {
	p.running.Add(1)
	defer p.running.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
		}
		p.processed.Add(1)
	}()
	task()
}

// Pending returns queued plus running tasks.
func (p *WorkerPool) Pending() int {
	return len(p.tasks) + int(p.running.Load())
}

// Close stops accepting tasks, lets workers drain the queue and waits for them
// until ctx ends.
func (p *WorkerPool) Close(ctx context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}
	p.mu.Lock()
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ErrShutdownTimeout
	}
}

// Stats returns current pool statistics.
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Rejected:  p.rejected.Load(),
		Processed: p.processed.Load(),
		Panics:    p.panics.Load(),
		Queued:    len(p.tasks),
		Running:   int(p.running.Load()),
		Workers:   p.workers,
		QueueSize: cap(p.tasks),
	}
}
