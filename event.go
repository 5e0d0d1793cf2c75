package xevent

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xclock"
)

// Event is the immutable envelope traveling through the bus.
// All fields are set at construction; accessors never expose mutable state.
type Event struct {
	id            string
	payload       any
	token         TypeToken
	source        any
	createdAt     time.Time
	correlationID string
	causationID   string
	meta          map[string]string
}

// EventOption configures event creation.
type EventOption func(*eventConfig)

type eventConfig struct {
	id            string
	correlationID string
	causationID   string
	createdAt     time.Time
	clock         xclock.Clock
	token         TypeToken
	meta          map[string]string
}

// WithEventID sets a specific event ID (default: random UUID).
func WithEventID(id string) EventOption {
	return func(c *eventConfig) { c.id = id }
}

// WithCorrelationID groups the event with related events.
func WithCorrelationID(id string) EventOption {
	return func(c *eventConfig) { c.correlationID = id }
}

// WithCausationID records the ID of the event that caused this one.
func WithCausationID(id string) EventOption {
	return func(c *eventConfig) { c.causationID = id }
}

// WithTimestamp pins the creation time.
func WithTimestamp(t time.Time) EventOption {
	return func(c *eventConfig) { c.createdAt = t }
}

// WithEventClock stamps the event from the given clock.
func WithEventClock(clk xclock.Clock) EventOption {
	return func(c *eventConfig) { c.clock = clk }
}

// WithToken overrides the payload token. The payload must be compatible with it.
func WithToken(t TypeToken) EventOption {
	return func(c *eventConfig) { c.token = t }
}

// WithMeta attaches a metadata header.
func WithMeta(key, value string) EventOption {
	return func(c *eventConfig) {
		if c.meta == nil {
			c.meta = make(map[string]string)
		}
		c.meta[key] = value
	}
}

// New creates an event whose payload is tagged with the static type T.
// When T is an interface the dynamic payload type is used instead, so that
// New[any](src, Order{}) is still routed as an Order.
func New[T any](source any, payload T, opts ...EventOption) *Event {
	tok := TokenOf[T]()
	if tok.IsInterface() {
		tok = TokenFor(payload)
	}
	return newEvent(source, payload, tok, opts...)
}

// NewAny creates an event tagged with the dynamic type of payload.
func NewAny(source any, payload any, opts ...EventOption) *Event {
	return newEvent(source, payload, TokenFor(payload), opts...)
}

func newEvent(source, payload any, tok TypeToken, opts ...EventOption) *Event {
	cfg := eventConfig{token: tok}
	for _, o := range opts {
		if o != nil {
			o(&cfg)
		}
	}
	if cfg.id == "" {
		cfg.id = uuid.NewString()
	}
	if cfg.createdAt.IsZero() {
		clk := cfg.clock
		if clk == nil {
			clk = xclock.Default()
		}
		cfg.createdAt = clk.Now()
	}
	// The event roots its own correlation chain unless told otherwise.
	if cfg.correlationID == "" {
		cfg.correlationID = cfg.id
	}
	return &Event{
		id:            cfg.id,
		payload:       payload,
		token:         cfg.token,
		source:        source,
		createdAt:     cfg.createdAt,
		correlationID: cfg.correlationID,
		causationID:   cfg.causationID,
		meta:          cfg.meta,
	}
}

// derive returns a copy of e linked to parent. Used for follow-up events that
// were built without lineage.
func (e *Event) derive(parent *Event) *Event {
	cp := *e
	cp.correlationID = parent.correlationID
	cp.causationID = parent.id
	cp.meta = maps.Clone(e.meta)
	return &cp
}

func (e *Event) ID() string           { return e.id }
func (e *Event) Payload() any         { return e.payload }
func (e *Event) Type() TypeToken      { return e.token }
func (e *Event) Source() any          { return e.source }
func (e *Event) CreatedAt() time.Time { return e.createdAt }

// CorrelationID groups every event produced by one logical publish.
func (e *Event) CorrelationID() string { return e.correlationID }

// CausationID is the ID of the event whose listener produced this one.
func (e *Event) CausationID() string { return e.causationID }

// Meta returns a single metadata value.
func (e *Event) Meta(key string) (string, bool) {
	v, ok := e.meta[key]
	return v, ok
}

// Metadata returns a copy of all metadata headers.
func (e *Event) Metadata() map[string]string {
	return maps.Clone(e.meta)
}

func (e *Event) String() string {
	return fmt.Sprintf("%s{id=%s, payload=%+v}", e.token, e.id, e.payload)
}

// PayloadAs returns the payload as T. The boolean is false when the payload
// does not hold a T.
func PayloadAs[T any](e *Event) (T, bool) {
	var zero T
	if e == nil {
		return zero, false
	}
	v, ok := e.payload.(T)
	return v, ok
}
