package xevent

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// ctxKey is the base for all context keys in xevent (prevents collisions).
type ctxKey string

const (
	loggerCtxKey   ctxKey = "xevent:logger"
	clockCtxKey    ctxKey = "xevent:clock"
	dispatchCtxKey ctxKey = "xevent:dispatch"
	listenerCtxKey ctxKey = "xevent:listener"
)

func injectLogger(ctx context.Context, l *xlog.Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerCtxKey, l)
}

// LoggerFromContext returns the bus logger inside a listener.
func LoggerFromContext(ctx context.Context) (*xlog.Logger, bool) {
	if v := ctx.Value(loggerCtxKey); v != nil {
		if l, ok := v.(*xlog.Logger); ok && l != nil {
			return l, true
		}
	}
	return nil, false
}

func injectClock(ctx context.Context, c xclock.Clock) context.Context {
	if c == nil {
		return ctx
	}
	return context.WithValue(ctx, clockCtxKey, c)
}

// ClockFromContext returns the bus clock inside a listener.
func ClockFromContext(ctx context.Context) (xclock.Clock, bool) {
	if v := ctx.Value(clockCtxKey); v != nil {
		if c, ok := v.(xclock.Clock); ok && c != nil {
			return c, true
		}
	}
	return nil, false
}

func withDispatchContext(ctx context.Context, dc *DispatchContext) context.Context {
	if dc == nil {
		return ctx
	}
	return context.WithValue(ctx, dispatchCtxKey, dc)
}

// DispatchContextFrom returns the chain a listener is running in. Publishing
// with such a context continues that chain instead of starting a new one.
func DispatchContextFrom(ctx context.Context) (*DispatchContext, bool) {
	if ctx == nil {
		return nil, false
	}
	dc, ok := ctx.Value(dispatchCtxKey).(*DispatchContext)
	return dc, ok && dc != nil
}

// Detach returns ctx without its dispatch chain, so that a publish from it
// starts a new chain. Other values are kept.
func Detach(ctx context.Context) context.Context {
	if _, ok := DispatchContextFrom(ctx); !ok {
		return ctx
	}
	return context.WithValue(ctx, dispatchCtxKey, (*DispatchContext)(nil))
}

func withListener(ctx context.Context, r Registration) context.Context {
	return context.WithValue(ctx, listenerCtxKey, r)
}

// ListenerFromContext returns the registration of the running listener.
func ListenerFromContext(ctx context.Context) (Registration, bool) {
	r, ok := ctx.Value(listenerCtxKey).(Registration)
	return r, ok
}

// InjectAll is a convenience helper to inject the logger and clock.
func InjectAll(ctx context.Context, logger *xlog.Logger, clock xclock.Clock) context.Context {
	ctx = injectLogger(ctx, logger)
	ctx = injectClock(ctx, clock)
	return ctx
}
