package xevent

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

var _ API = (*Bus)(nil)
var _ HealthChecker = (*Bus)(nil)

// Bus is the central Facade: it owns the listener registry, resolves listeners
// for each published event and runs them.
type Bus struct {
	registry        *Registry
	matcher         *Matcher
	preview         *Matcher
	executor        Executor
	sink            ErrorSink
	clock           xclock.Clock
	logger          *xlog.Logger
	middlewares     []Middleware
	maxDepth        int
	asyncTimeout    time.Duration
	shutdownTimeout time.Duration
	observerPool    *WorkerPool
	observersMu     sync.RWMutex
	observers       []Observer
	metrics         *busMetrics
	closed          atomic.Bool
	closeOnce       sync.Once

	// idle is closed and replaced whenever the last pending async task ends.
	idleMu sync.Mutex
	idle   chan struct{}
}

// busMetrics uses lock-free atomics.
type busMetrics struct {
	published       atomic.Uint64
	delivered       atomic.Uint64
	failed          atomic.Uint64
	conditionErrors atomic.Uint64
	chainsExpanded  atomic.Uint64
	chainsAborted   atomic.Uint64
	asyncRejected   atomic.Uint64
	asyncPending    atomic.Int64
	noticesDropped  atomic.Uint64
	processingNs    atomic.Int64
}

// Publish dispatches e to every matching listener and returns once all
// synchronous listeners, and the synchronous listeners of any chained events,
// have completed. Asynchronous listeners may still be running when Publish
// returns; use Drain to wait for them.
//
// Having no listeners is not an error. The only listener-related error returned
// is a *ChainTooDeepError; other listener failures are logged (sync) or sent to
// the error sink (async).
//
// Publishing from inside a listener with the listener's context continues the
// same chain and counts towards its depth. A depth overflow anywhere in the
// synchronous part of the chain is returned by the outermost Publish, even when
// the listener that hit it through a nested Publish dropped the error.
func (b *Bus) Publish(ctx context.Context, e *Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if err := checkEvent(e); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var dc *DispatchContext
	if parent, ok := DispatchContextFrom(ctx); ok {
		e = link(parent.event, e)
		child, err := parent.child(e)
		if err != nil {
			b.chainAborted(parent, e, err)
			return err
		}
		dc = child
	} else {
		dc = newDispatchContext(e, b.maxDepth)
		ctx = InjectAll(ctx, b.logger, b.clock)
	}

	b.metrics.published.Add(1)
	b.notify(Notice{Type: PublishStart, EventID: e.id, EventType: e.token.String(), CorrelationID: e.correlationID, Depth: dc.depth})

	start := b.clock.Now()
	err := b.dispatch(ctx, e, dc)
	if err == nil && dc.depth == 1 {
		err = dc.state.err()
	}

	b.notify(Notice{
		Type:          PublishDone,
		EventID:       e.id,
		EventType:     e.token.String(),
		CorrelationID: e.correlationID,
		Depth:         dc.depth,
		Duration:      b.clock.Since(start),
		Err:           err,
	})
	return err
}

// Emit wraps payload in a new event stamped by the bus clock and publishes it.
func (b *Bus) Emit(ctx context.Context, source, payload any, opts ...EventOption) error {
	if payload == nil {
		return ErrInvalidEvent
	}
	opts = append([]EventOption{WithEventClock(b.clock)}, opts...)
	return b.Publish(ctx, NewAny(source, payload, opts...))
}

// Register adds a listener. Its handler is wrapped with panic recovery and the
// configured middlewares.
func (b *Bus) Register(l Listener) (ListenerID, error) {
	if b.closed.Load() {
		return "", ErrBusClosed
	}
	if l.Handler != nil {
		// Recovery sits innermost so middlewares see panics as errors.
		base := RecoveryMiddleware()(l.Handler)
		l.Handler = Chain(base, b.middlewares...)
	}
	return b.registry.Register(l)
}

// MustRegister is Register that panics on error. Meant for startup wiring.
func (b *Bus) MustRegister(l Listener) ListenerID {
	id, err := b.Register(l)
	if err != nil {
		panic(err)
	}
	return id
}

// Unregister removes a listener. In-flight invocations are not interrupted.
func (b *Bus) Unregister(id ListenerID) error {
	return b.registry.Unregister(id)
}

// Listeners returns every registration in dispatch order.
func (b *Bus) Listeners() []Registration { return b.registry.All() }

// ListenersFor returns the registrations accepting tok, in dispatch order.
func (b *Bus) ListenersFor(tok TypeToken) []Registration { return b.registry.ListenersFor(tok) }

// Resolve returns the listeners that would receive e right now, conditions
// included. Nothing is invoked and condition failures are not reported.
func (b *Bus) Resolve(e *Event) []Registration { return b.preview.Resolve(e) }

// Drain waits until no asynchronous listener is pending or ctx ends.
func (b *Bus) Drain(ctx context.Context) error {
	for {
		idle := b.idleCh()
		if b.metrics.asyncPending.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
		}
	}
}

func (b *Bus) idleCh() chan struct{} {
	b.idleMu.Lock()
	defer b.idleMu.Unlock()
	if b.idle == nil {
		b.idle = make(chan struct{})
	}
	return b.idle
}

// asyncDone marks one async task finished and wakes Drain when none is left.
func (b *Bus) asyncDone() {
	if b.metrics.asyncPending.Add(-1) != 0 {
		return
	}
	b.idleMu.Lock()
	if b.idle != nil {
		close(b.idle)
		b.idle = nil
	}
	b.idleMu.Unlock()
}

// GetMetrics returns current bus metrics.
func (b *Bus) GetMetrics() Metrics {
	m := Metrics{
		Published:           b.metrics.published.Load(),
		Delivered:           b.metrics.delivered.Load(),
		Failed:              b.metrics.failed.Load(),
		ConditionErrors:     b.metrics.conditionErrors.Load(),
		ChainsExpanded:      b.metrics.chainsExpanded.Load(),
		ChainsAborted:       b.metrics.chainsAborted.Load(),
		AsyncRejected:       b.metrics.asyncRejected.Load(),
		AsyncPending:        b.metrics.asyncPending.Load(),
		NoticesDropped:      b.metrics.noticesDropped.Load(),
		AvgProcessingTimeMs: float64(b.metrics.processingNs.Load()) / 1e6,
	}
	return m
}

// Health checks bus health for Kubernetes probes.
func (b *Bus) Health(ctx context.Context) HealthStatus {
	if b.closed.Load() {
		return HealthStatus{
			Status:    "unhealthy",
			Timestamp: b.clock.Now(),
			Message:   "bus is closed",
		}
	}

	metrics := b.GetMetrics()
	status := "healthy"

	// Degraded if more than 5% of listener invocations fail.
	if metrics.Failed > 0 && metrics.Delivered > 0 {
		errorRate := float64(metrics.Failed) / float64(metrics.Delivered)
		if errorRate > 0.05 {
			status = "degraded"
		}
	}

	return HealthStatus{
		Status:    status,
		Metrics:   metrics,
		Timestamp: b.clock.Now(),
	}
}

// Close stops accepting events and waits up to the shutdown timeout (or ctx,
// whichever ends first) for async listeners to finish. Idempotent.
func (b *Bus) Close(ctx context.Context) error {
	var closeErr error

	b.closeOnce.Do(func() {
		b.closed.Store(true)

		cctx, cancel := context.WithTimeout(ctx, b.shutdownTimeout)
		defer cancel()

		if err := b.executor.Close(cctx); err != nil {
			b.logger.Warn().Err(err).Msg("xevent: executor shutdown timeout")
			closeErr = err
		}

		if b.observerPool != nil {
			if err := b.observerPool.Close(cctx); err != nil {
				b.logger.Warn().Err(err).Msg("xevent: observer pool shutdown timeout")
				closeErr = err
			}
		}
	})

	return closeErr
}

// AddObserver registers an observer (thread-safe).
func (b *Bus) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observersMu.Lock()
	b.observers = append(b.observers, obs)
	b.observersMu.Unlock()
}

// RemoveObserver removes an observer. Observers of a non-comparable type, such
// as ObserverFunc, cannot be removed.
func (b *Bus) RemoveObserver(obs Observer) {
	if obs == nil || !reflect.TypeOf(obs).Comparable() {
		return
	}
	b.observersMu.Lock()
	defer b.observersMu.Unlock()

	for i, o := range b.observers {
		if reflect.TypeOf(o) == reflect.TypeOf(obs) && o == obs {
			b.observers = append(b.observers[:i:i], b.observers[i+1:]...)
			break
		}
	}
}

// notify delivers a notice to observers, inline unless an observer pool is
// configured. Observer panics are swallowed.
func (b *Bus) notify(n Notice) {
	b.observersMu.RLock()
	count := len(b.observers)
	if count == 0 {
		b.observersMu.RUnlock()
		return
	}
	observers := make([]Observer, count)
	copy(observers, b.observers)
	b.observersMu.RUnlock()

	if b.observerPool == nil {
		deliver(n, observers)
		return
	}
	if err := b.observerPool.Submit(func() { deliver(n, observers) }); err != nil {
		b.metrics.noticesDropped.Add(1)
	}
}

func deliver(n Notice, observers []Observer) {
	for _, obs := range observers {
		func() {
			defer func() { _ = recover() }()
			obs.OnNotice(n)
		}()
	}
}

// recordProcessingTime records processing time using exponential moving average.
func (b *Bus) recordProcessingTime(ns int64) {
	const alpha = 0.2 // 20% weight to new sample
	current := b.metrics.processingNs.Load()
	if current == 0 {
		b.metrics.processingNs.Store(ns)
		return
	}
	// EMA: new = (alpha * sample) + (1-alpha) * old
	newAvg := int64(float64(ns)*alpha + float64(current)*(1-alpha))
	b.metrics.processingNs.Store(newAvg)
}

// checkEvent rejects events the matcher could not route.
func checkEvent(e *Event) error {
	if e == nil {
		return ErrNilEvent
	}
	if e.token.IsZero() {
		return ErrInvalidEvent
	}
	if e.payload != nil && !e.token.Accepts(TokenFor(e.payload)) {
		return ErrInvalidEvent
	}
	return nil
}
