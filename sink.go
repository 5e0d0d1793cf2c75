package xevent

import (
	"errors"
	"fmt"
	"time"

	"github.com/trickstertwo/xlog"
)

// ErrorSink receives failures of asynchronous listeners. It is called once per
// failure, from the executor goroutine, and must be safe for concurrent use.
type ErrorSink func(err error, id ListenerID, e *Event)

// LogSink writes async failures to logger. It is the default sink.
func LogSink(logger *xlog.Logger) ErrorSink {
	return func(err error, id ListenerID, e *Event) {
		if logger == nil {
			return
		}
		var eventID, eventType string
		if e != nil {
			eventID, eventType = e.ID(), e.Type().String()
		}
		logger.Error().
			Err(err).
			Str("listener_id", string(id)).
			Str("event_id", eventID).
			Str("event_type", eventType).
			Msg("xevent: async listener failed")
	}
}

// MultiSink fans a failure out to several sinks, in order.
func MultiSink(sinks ...ErrorSink) ErrorSink {
	return func(err error, id ListenerID, e *Event) {
		for _, s := range sinks {
			if s != nil {
				s(err, id, e)
			}
		}
	}
}

// FailureRecord is the persisted form of one async listener failure.
type FailureRecord struct {
	ListenerID    string            `json:"listener_id"`
	Listener      string            `json:"listener,omitempty"`
	EventID       string            `json:"event_id,omitempty"`
	EventType     string            `json:"event_type,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	CausationID   string            `json:"causation_id,omitempty"`
	Source        string            `json:"source,omitempty"`
	Codec         string            `json:"codec,omitempty"`
	Payload       []byte            `json:"payload,omitempty"`
	PayloadError  string            `json:"payload_error,omitempty"`
	Error         string            `json:"error"`
	Panic         bool              `json:"panic,omitempty"`
	Stack         string            `json:"stack,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	FailedAt      time.Time         `json:"failed_at"`
}

// NewFailureRecord flattens a failure for storage. The payload is encoded with
// c (JSON when nil); an encoding failure is kept in PayloadError.
func NewFailureRecord(c Codec, err error, id ListenerID, e *Event, at time.Time) FailureRecord {
	if c == nil {
		c = JSONCodec{}
	}
	rec := FailureRecord{
		ListenerID: string(id),
		Codec:      c.Name(),
		FailedAt:   at,
	}
	if err != nil {
		rec.Error = err.Error()
	}

	var le *ListenerError
	if errors.As(err, &le) {
		rec.Listener = le.Listener
		if le.Panic != nil {
			rec.Panic = true
			rec.Stack = string(le.Stack)
		}
	}

	if e == nil {
		return rec
	}
	rec.EventID = e.ID()
	rec.EventType = e.Type().String()
	rec.CorrelationID = e.CorrelationID()
	rec.CausationID = e.CausationID()
	rec.Metadata = e.Metadata()
	if src := e.Source(); src != nil {
		rec.Source = fmt.Sprint(src)
	}
	if e.Payload() != nil {
		data, perr := c.Marshal(e.Payload())
		if perr != nil {
			rec.PayloadError = perr.Error()
		} else {
			rec.Payload = data
		}
	}
	return rec
}
