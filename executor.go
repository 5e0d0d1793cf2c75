package xevent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Executor is the Strategy that runs asynchronous listeners.
type Executor interface {
	// Submit schedules task. It must not block; a full executor returns
	// ErrExecutorSaturated and a closed one ErrExecutorClosed.
	Submit(task func()) error
	// Pending is the number of tasks accepted but not finished.
	Pending() int
	// Close stops accepting work and waits for accepted tasks until ctx ends.
	Close(ctx context.Context) error
}

// ExecutorFactory constructs executors from the bus config.
type ExecutorFactory func(cfg Config) (Executor, error)

const (
	// ExecutorPool is a fixed set of workers fed by a bounded queue.
	ExecutorPool = "pool"
	// ExecutorGoroutine starts one goroutine per task, without bound.
	ExecutorGoroutine = "goroutine"
)

var (
	executorRegistryMu sync.RWMutex
	executorRegistry   = map[string]ExecutorFactory{
		ExecutorPool: func(cfg Config) (Executor, error) {
			return NewWorkerPool(cfg.Workers, cfg.QueueSize), nil
		},
		ExecutorGoroutine: func(Config) (Executor, error) {
			return NewGoroutineExecutor(), nil
		},
	}
)

// RegisterExecutor registers an executor factory by name.
func RegisterExecutor(name string, factory ExecutorFactory) error {
	if name == "" {
		return errors.New("executor name must not be empty")
	}
	if factory == nil {
		return errors.New("executor factory must not be nil")
	}
	executorRegistryMu.Lock()
	executorRegistry[name] = factory
	executorRegistryMu.Unlock()
	return nil
}

// NewExecutor constructs an executor by name.
func NewExecutor(name string, cfg Config) (Executor, error) {
	executorRegistryMu.RLock()
	f, ok := executorRegistry[name]
	executorRegistryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownExecutor{name: name}
	}
	return f(cfg)
}

// GoroutineExecutor runs every task on its own goroutine. It never saturates.
type GoroutineExecutor struct {
	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	pending atomic.Int64
}

// NewGoroutineExecutor returns an unbounded executor.
func NewGoroutineExecutor() *GoroutineExecutor { return &GoroutineExecutor{} }

func (g *GoroutineExecutor) Submit(task func()) error {
	if task == nil {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return ErrExecutorClosed
	}
	g.wg.Add(1)
	g.pending.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.pending.Add(-1)
		defer func() { _ = recover() }()
		task()
	}()
	return nil
}

func (g *GoroutineExecutor) Pending() int { return int(g.pending.Load()) }

func (g *GoroutineExecutor) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	return waitGroupContext(ctx, &g.wg)
}

// waitGroupContext waits for wg or ctx, whichever ends first.
func waitGroupContext(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ErrShutdownTimeout
	}
}
