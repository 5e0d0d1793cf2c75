// Package prometheus exports xevent dispatch metrics as Prometheus collectors.
package prometheus

import (
	"errors"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trickstertwo/xevent"
)

// DefaultNamespace prefixes every metric name when none is given.
const DefaultNamespace = "xevent"

// Observer implements xevent.Observer with Prometheus counters and a latency
// histogram.
type Observer struct {
	published       *prom.CounterVec
	invocations     *prom.CounterVec
	latency         *prom.HistogramVec
	conditionErrors *prom.CounterVec
	asyncRejected   *prom.CounterVec
	chainsAborted   prom.Counter
}

var _ xevent.Observer = (*Observer)(nil)

// NewObserver creates the collectors and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer. Collectors already registered under the
// same names are reused, so several buses may share one registry.
func NewObserver(reg prom.Registerer, namespace string) (*Observer, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	o := &Observer{
		published: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Number of published events.",
		}, []string{"event_type"}),
		invocations: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "listener_invocations_total",
			Help:      "Number of listener invocations by outcome.",
		}, []string{"listener", "mode", "outcome"}),
		latency: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "listener_duration_seconds",
			Help:      "Listener execution time.",
			Buckets:   prom.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"listener", "mode"}),
		conditionErrors: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "condition_errors_total",
			Help:      "Number of listener conditions that failed to evaluate.",
		}, []string{"listener"}),
		asyncRejected: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "async_rejected_total",
			Help:      "Number of async listeners the executor refused.",
		}, []string{"listener"}),
		chainsAborted: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "chains_aborted_total",
			Help:      "Number of event chains stopped at the depth limit.",
		}),
	}

	var err error
	if o.published, err = register(reg, o.published); err != nil {
		return nil, err
	}
	if o.invocations, err = register(reg, o.invocations); err != nil {
		return nil, err
	}
	if o.latency, err = register(reg, o.latency); err != nil {
		return nil, err
	}
	if o.conditionErrors, err = register(reg, o.conditionErrors); err != nil {
		return nil, err
	}
	if o.asyncRejected, err = register(reg, o.asyncRejected); err != nil {
		return nil, err
	}
	if o.chainsAborted, err = register(reg, o.chainsAborted); err != nil {
		return nil, err
	}
	return o, nil
}

func register[C prom.Collector](reg prom.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prom.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// OnNotice records one notice.
func (o *Observer) OnNotice(n xevent.Notice) {
	switch n.Type {
	case xevent.PublishStart:
		o.published.WithLabelValues(n.EventType).Inc()
	case xevent.ListenerDone:
		o.invocations.WithLabelValues(n.Listener, n.Mode.String(), "success").Inc()
		o.latency.WithLabelValues(n.Listener, n.Mode.String()).Observe(n.Duration.Seconds())
	case xevent.ListenerFailed:
		o.invocations.WithLabelValues(n.Listener, n.Mode.String(), "failure").Inc()
		o.latency.WithLabelValues(n.Listener, n.Mode.String()).Observe(n.Duration.Seconds())
	case xevent.ConditionFailed:
		o.conditionErrors.WithLabelValues(n.Listener).Inc()
	case xevent.AsyncRejected:
		o.asyncRejected.WithLabelValues(n.Listener).Inc()
	case xevent.ChainAborted:
		o.chainsAborted.Inc()
	}
}

// Handler serves the metrics gathered by g. A nil g uses
// prometheus.DefaultGatherer.
func Handler(g prom.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
