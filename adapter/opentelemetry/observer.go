// Package opentelemetry reports xevent dispatch through OpenTelemetry: an
// Observer records metrics from bus notices and TracingMiddleware wraps each
// listener invocation in a span.
package opentelemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/trickstertwo/xevent"
)

// ScopeName is the instrumentation scope used for the global meter and tracer.
const ScopeName = "github.com/trickstertwo/xevent"

// Observer implements xevent.Observer using OpenTelemetry metrics.
type Observer struct {
	published       metric.Int64Counter
	invocations     metric.Int64Counter
	errors          metric.Int64Counter
	conditionErrors metric.Int64Counter
	chainsAborted   metric.Int64Counter
	asyncRejected   metric.Int64Counter
	latency         metric.Float64Histogram
}

var _ xevent.Observer = (*Observer)(nil)

// NewObserver creates the instruments on meter. A nil meter uses the global
// meter provider.
func NewObserver(meter metric.Meter) (*Observer, error) {
	if meter == nil {
		meter = otel.Meter(ScopeName)
	}
	o := &Observer{}
	var err error

	if o.published, err = meter.Int64Counter("xevent.published",
		metric.WithDescription("Number of published events"),
	); err != nil {
		return nil, err
	}
	if o.invocations, err = meter.Int64Counter("xevent.listener.invocations",
		metric.WithDescription("Number of listener invocations"),
	); err != nil {
		return nil, err
	}
	if o.errors, err = meter.Int64Counter("xevent.listener.errors",
		metric.WithDescription("Number of failed listener invocations"),
	); err != nil {
		return nil, err
	}
	if o.conditionErrors, err = meter.Int64Counter("xevent.condition.errors",
		metric.WithDescription("Number of conditions that failed to evaluate"),
	); err != nil {
		return nil, err
	}
	if o.chainsAborted, err = meter.Int64Counter("xevent.chain.aborted",
		metric.WithDescription("Number of chains stopped for exceeding the depth limit"),
	); err != nil {
		return nil, err
	}
	if o.asyncRejected, err = meter.Int64Counter("xevent.async.rejected",
		metric.WithDescription("Number of async listeners the executor refused"),
	); err != nil {
		return nil, err
	}
	if o.latency, err = meter.Float64Histogram("xevent.listener.latency_ms",
		metric.WithDescription("Listener execution latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	return o, nil
}

// OnNotice records one notice.
func (o *Observer) OnNotice(n xevent.Notice) {
	ctx := context.Background()
	eventAttr := attribute.String("event_type", n.EventType)

	switch n.Type {
	case xevent.PublishStart:
		o.published.Add(ctx, 1, metric.WithAttributes(eventAttr))
	case xevent.ListenerDone, xevent.ListenerFailed:
		attrs := metric.WithAttributes(
			eventAttr,
			attribute.String("listener", n.Listener),
			attribute.String("mode", n.Mode.String()),
		)
		o.invocations.Add(ctx, 1, attrs)
		o.latency.Record(ctx, float64(n.Duration.Microseconds())/1000, attrs)
		if n.Type == xevent.ListenerFailed {
			o.errors.Add(ctx, 1, attrs)
		}
	case xevent.ConditionFailed:
		o.conditionErrors.Add(ctx, 1, metric.WithAttributes(eventAttr, attribute.String("listener", n.Listener)))
	case xevent.ChainAborted:
		o.chainsAborted.Add(ctx, 1, metric.WithAttributes(eventAttr))
	case xevent.AsyncRejected:
		o.asyncRejected.Add(ctx, 1, metric.WithAttributes(eventAttr, attribute.String("listener", n.Listener)))
	}
}
