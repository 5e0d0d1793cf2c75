package xevent

import (
	"strconv"

	"github.com/trickstertwo/xlog"
)

// Observer receives dispatch lifecycle notices. Implementations should be
// non-blocking; by default they run on the publishing goroutine.
type Observer interface {
	OnNotice(n Notice)
}

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(n Notice)

func (f ObserverFunc) OnNotice(n Notice) { f(n) }

// LoggingObserver is an Adapter that emits notices via xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnNotice(n Notice) {
	if o.Logger == nil {
		return
	}
	ev := o.Logger.With(
		xlog.Str("type", string(n.Type)),
		xlog.Str("event_id", n.EventID),
		xlog.Str("event_type", n.EventType),
	)
	if n.ListenerID != "" {
		ev = ev.With(
			xlog.Str("listener_id", string(n.ListenerID)),
			xlog.Str("listener", n.Listener),
			xlog.Str("mode", n.Mode.String()),
		)
	}
	if n.Depth > 0 {
		ev = ev.With(xlog.Str("depth", strconv.Itoa(n.Depth)))
	}
	switch n.Type {
	case ListenerFailed, ChainAborted, AsyncRejected:
		ev.Warn().Err(n.Err).Msg("xevent notice")
	case ConditionFailed:
		ev.Debug().Err(n.Err).Msg("xevent notice")
	default:
		if n.Duration > 0 {
			ev = ev.With(xlog.Dur("duration", n.Duration))
		}
		ev.Debug().Msg("xevent notice")
	}
}
