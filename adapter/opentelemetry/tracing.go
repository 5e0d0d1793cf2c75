package opentelemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/trickstertwo/xevent"
)

// TracingMiddleware starts a span around every listener invocation. Events
// published with a listener's context nest under that listener's span. A nil
// tracer uses the global tracer provider.
func TracingMiddleware(tracer trace.Tracer) xevent.Middleware {
	return func(next xevent.HandlerFunc) xevent.HandlerFunc {
		return func(ctx context.Context, e *xevent.Event) (any, error) {
			tr := tracer
			if tr == nil {
				tr = otel.Tracer(ScopeName)
			}

			attrs := []attribute.KeyValue{
				attribute.String("event.id", e.ID()),
				attribute.String("event.type", e.Type().String()),
				attribute.String("event.correlation_id", e.CorrelationID()),
			}
			name := "xevent.listener"
			if reg, ok := xevent.ListenerFromContext(ctx); ok {
				name += "." + reg.Name
				attrs = append(attrs,
					attribute.String("listener.id", string(reg.ID)),
					attribute.String("listener.name", reg.Name),
					attribute.String("listener.mode", reg.Mode.String()),
				)
			}
			if dc, ok := xevent.DispatchContextFrom(ctx); ok {
				attrs = append(attrs, attribute.Int("chain.depth", dc.Depth()))
			}

			ctx, span := tr.Start(ctx, name,
				trace.WithAttributes(attrs...),
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			res, err := next(ctx, e)
			endSpanWithError(span, err)
			return res, err
		}
	}
}

func endSpanWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
