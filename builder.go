package xevent

import (
	"context"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// BusBuilder constructs Bus instances (Builder pattern).
type BusBuilder struct {
	cfg Config

	executorInst Executor

	sink        ErrorSink
	middlewares []Middleware
	observers   []Observer
	listeners   []Listener
	logger      *xlog.Logger
	clock       xclock.Clock

	observerWorkers int
	observerQueue   int
}

// NewBusBuilder returns a new builder with sensible defaults.
func NewBusBuilder() *BusBuilder {
	return &BusBuilder{cfg: Defaults()}
}

// WithConfig replaces the whole config. Zero fields keep their defaults.
func (bb *BusBuilder) WithConfig(cfg Config) *BusBuilder {
	d := Defaults()
	if cfg.Executor == "" {
		cfg.Executor = d.Executor
	}
	if cfg.Workers == 0 {
		cfg.Workers = d.Workers
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = d.QueueSize
	}
	if cfg.MaxChainDepth == 0 {
		cfg.MaxChainDepth = d.MaxChainDepth
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = d.ShutdownTimeout
	}
	bb.cfg = cfg
	return bb
}

// WithExecutor selects a registered executor by name.
func (bb *BusBuilder) WithExecutor(name string) *BusBuilder {
	bb.cfg.Executor = name
	return bb
}

// WithExecutorInstance accepts a ready Executor. The bus closes it on Close.
func (bb *BusBuilder) WithExecutorInstance(e Executor) *BusBuilder {
	bb.executorInst = e
	return bb
}

// WithWorkers sizes the "pool" executor.
func (bb *BusBuilder) WithWorkers(workers, queueSize int) *BusBuilder {
	if workers > 0 {
		bb.cfg.Workers = workers
	}
	if queueSize > 0 {
		bb.cfg.QueueSize = queueSize
	}
	return bb
}

func (bb *BusBuilder) WithMaxChainDepth(n int) *BusBuilder {
	bb.cfg.MaxChainDepth = n
	return bb
}

func (bb *BusBuilder) WithAsyncTimeout(d time.Duration) *BusBuilder {
	bb.cfg.AsyncTimeout = d
	return bb
}

func (bb *BusBuilder) WithShutdownTimeout(d time.Duration) *BusBuilder {
	if d > 0 {
		bb.cfg.ShutdownTimeout = d
	}
	return bb
}

// WithErrorSink sets where async listener failures go (default: LogSink).
func (bb *BusBuilder) WithErrorSink(s ErrorSink) *BusBuilder {
	bb.sink = s
	return bb
}

func (bb *BusBuilder) WithMiddleware(mw ...Middleware) *BusBuilder {
	if len(mw) == 0 {
		return bb
	}
	bb.middlewares = append(bb.middlewares, mw...)
	return bb
}

func (bb *BusBuilder) WithObserver(obs ...Observer) *BusBuilder {
	for _, o := range obs {
		if o != nil {
			bb.observers = append(bb.observers, o)
		}
	}
	return bb
}

// WithObserverPool delivers notices from a worker pool instead of the
// publishing goroutine. Notices are dropped when its queue is full.
func (bb *BusBuilder) WithObserverPool(workers, queueSize int) *BusBuilder {
	bb.observerWorkers = workers
	bb.observerQueue = queueSize
	if bb.observerWorkers < 1 {
		bb.observerWorkers = 1
	}
	return bb
}

// WithListener registers listeners when the bus is built.
func (bb *BusBuilder) WithListener(l ...Listener) *BusBuilder {
	bb.listeners = append(bb.listeners, l...)
	return bb
}

func (bb *BusBuilder) WithLogger(l *xlog.Logger) *BusBuilder {
	bb.logger = l
	return bb
}

func (bb *BusBuilder) WithClock(c xclock.Clock) *BusBuilder {
	bb.clock = c
	return bb
}

func (bb *BusBuilder) Build() (*Bus, error) {
	if err := bb.cfg.Validate(); err != nil {
		return nil, err
	}

	ex := bb.executorInst
	if ex == nil {
		var err error
		ex, err = NewExecutor(bb.cfg.Executor, bb.cfg)
		if err != nil {
			return nil, err
		}
	}

	var clk xclock.Clock
	if bb.clock != nil {
		clk = bb.clock
	} else {
		clk = xclock.Default()
	}
	var lg *xlog.Logger
	if bb.logger != nil {
		lg = bb.logger
	} else {
		// Default to xlog default logger; Adapter pattern to platform logging.
		lg = xlog.Default()
	}
	sink := bb.sink
	if sink == nil {
		sink = LogSink(lg)
	}

	b := &Bus{
		registry:        NewRegistry(),
		executor:        ex,
		sink:            sink,
		clock:           clk,
		logger:          lg,
		middlewares:     bb.middlewares,
		maxDepth:        bb.cfg.MaxChainDepth,
		asyncTimeout:    bb.cfg.AsyncTimeout,
		shutdownTimeout: bb.cfg.ShutdownTimeout,
		metrics:         &busMetrics{},
	}
	b.matcher = NewMatcher(b.registry, b.onConditionError)
	b.preview = NewMatcher(b.registry, nil)
	if bb.observerWorkers > 0 {
		b.observerPool = NewWorkerPool(bb.observerWorkers, bb.observerQueue)
	}

	// Attach logging observer first unless one was supplied externally.
	hasLoggingObserver := false
	for _, o := range bb.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLoggingObserver = true
			break
		}
	}
	if !hasLoggingObserver {
		b.AddObserver(LoggingObserver{Logger: lg})
	}
	for _, o := range bb.observers {
		b.AddObserver(o)
	}

	for _, l := range bb.listeners {
		if _, err := b.Register(l); err != nil {
			_ = b.Close(context.Background())
			return nil, err
		}
	}

	return b, nil
}

// New constructs a Bus via Builder and returns a close func for convenience.
func New(init func(b *BusBuilder)) (*Bus, func() error, error) {
	b := NewBusBuilder()
	if init != nil {
		init(b)
	}
	bus, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return bus.Close(context.Background()) }
	return bus, closeFn, nil
}
