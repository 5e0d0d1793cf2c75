package xevent

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"runtime"
)

// ListenerID identifies a registration. IDs are assigned by the registry.
type ListenerID string

// Mode selects whether a listener runs inline or on the executor.
type Mode int

const (
	// Sync runs the listener on the publisher's goroutine, in order.
	Sync Mode = iota
	// Async hands the listener to the executor; ordering among async
	// listeners of the same event is not guaranteed.
	Async
)

func (m Mode) String() string {
	switch m {
	case Sync:
		return "sync"
	case Async:
		return "async"
	default:
		return "unknown"
	}
}

const (
	// OrderHighest runs before everything else.
	OrderHighest = math.MinInt32
	// OrderLowest is the default order of a listener.
	OrderLowest = math.MaxInt32
)

// HandlerFunc handles one event. A non-nil result is published as a follow-up:
// an *Event or []*Event is dispatched as is, any other value is wrapped in a
// new event.
type HandlerFunc func(ctx context.Context, e *Event) (any, error)

// Listener declares what a handler receives and how it runs.
// Build one with On, OnEvent, Func or NewListener; a zero Order in a
// hand-built Listener is a real order, not the default.
type Listener struct {
	Name      string
	Accepts   []TypeToken
	Order     int
	Condition Condition
	Mode      Mode
	Handler   HandlerFunc
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithOrder sets the rank; lower runs first.
func WithOrder(order int) ListenerOption {
	return func(l *Listener) { l.Order = order }
}

// WithCondition gates delivery on a predicate.
func WithCondition(c Condition) ListenerOption {
	return func(l *Listener) { l.Condition = c }
}

// WithMode sets the execution mode.
func WithMode(m Mode) ListenerOption {
	return func(l *Listener) { l.Mode = m }
}

// AsAsync is shorthand for WithMode(Async).
func AsAsync() ListenerOption { return WithMode(Async) }

// Named sets a human readable name used in logs and errors.
func Named(name string) ListenerOption {
	return func(l *Listener) { l.Name = name }
}

// Accepting adds event tokens the listener receives.
func Accepting(tokens ...TypeToken) ListenerOption {
	return func(l *Listener) { l.Accepts = append(l.Accepts, tokens...) }
}

// NewListener builds a listener around a raw handler. At least one Accepting
// option is required for registration to succeed.
func NewListener(h HandlerFunc, opts ...ListenerOption) Listener {
	return build(h, funcName(h), opts)
}

func build(h HandlerFunc, fallbackName string, opts []ListenerOption) Listener {
	l := Listener{Order: OrderLowest, Handler: h}
	for _, o := range opts {
		if o != nil {
			o(&l)
		}
	}
	if l.Name == "" {
		l.Name = fallbackName
	}
	return l
}

// On builds a listener for payloads of type T that produces no follow-up.
func On[T any](fn func(ctx context.Context, payload T) error, opts ...ListenerOption) Listener {
	var h HandlerFunc
	if fn != nil {
		h = func(ctx context.Context, e *Event) (any, error) {
			p, ok := e.payload.(T)
			if !ok {
				return nil, fmt.Errorf("payload %s is not %s", e.token, TokenOf[T]())
			}
			return nil, fn(ctx, p)
		}
	}
	return build(h, funcName(fn), append([]ListenerOption{Accepting(TokenOf[T]())}, opts...))
}

// OnEvent builds a listener for payloads of type T that sees the full envelope
// and may return a follow-up.
func OnEvent[T any](fn func(ctx context.Context, e *Event, payload T) (any, error), opts ...ListenerOption) Listener {
	var h HandlerFunc
	if fn != nil {
		h = func(ctx context.Context, e *Event) (any, error) {
			p, ok := e.payload.(T)
			if !ok {
				return nil, fmt.Errorf("payload %s is not %s", e.token, TokenOf[T]())
			}
			return fn(ctx, e, p)
		}
	}
	return build(h, funcName(fn), append([]ListenerOption{Accepting(TokenOf[T]())}, opts...))
}

var (
	ctxType   = reflect.TypeFor[context.Context]()
	errType   = reflect.TypeFor[error]()
	eventType = reflect.TypeFor[*Event]()
)

// Func builds a listener from a plain function of the shape
//
//	func([context.Context,] E) [R] [error]
//
// The single event parameter E decides the accepted token. E may be *Event when
// Accepting tokens are supplied, which is how one function listens to several
// event types. Any other shape fails with ErrInvalidRegistration.
func Func(fn any, opts ...ListenerOption) (Listener, error) {
	probe := Listener{}
	for _, o := range opts {
		if o != nil {
			o(&probe)
		}
	}

	v := reflect.ValueOf(fn)
	if fn == nil || v.Kind() != reflect.Func {
		return Listener{}, invalidRegistration(probe.Name, "listener must be a function, got %T", fn)
	}
	name := probe.Name
	if name == "" {
		name = runtimeName(v)
	}
	ft := v.Type()

	var params []reflect.Type
	withCtx := false
	for i := 0; i < ft.NumIn(); i++ {
		p := ft.In(i)
		if i == 0 && p == ctxType {
			withCtx = true
			continue
		}
		params = append(params, p)
	}
	if ft.IsVariadic() || len(params) != 1 {
		return Listener{}, invalidRegistration(name, "handler %s must take exactly one event parameter", ft)
	}
	evt := params[0]

	returnsErr, returnsValue := false, false
	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errType {
			returnsErr = true
		} else {
			returnsValue = true
		}
	case 2:
		if ft.Out(1) != errType {
			return Listener{}, invalidRegistration(name, "second result of %s must be error", ft)
		}
		returnsValue, returnsErr = true, true
	default:
		return Listener{}, invalidRegistration(name, "handler %s returns too many values", ft)
	}

	wholeEvent := evt == eventType
	if wholeEvent && len(probe.Accepts) == 0 {
		return Listener{}, invalidRegistration(name, "handler %s takes *Event, so Accepting tokens are required", ft)
	}

	h := func(ctx context.Context, e *Event) (any, error) {
		var arg reflect.Value
		if wholeEvent {
			arg = reflect.ValueOf(e)
		} else {
			if e.payload == nil {
				arg = reflect.Zero(evt)
			} else {
				pv := reflect.ValueOf(e.payload)
				if !pv.Type().AssignableTo(evt) {
					return nil, fmt.Errorf("payload %s is not assignable to %s", pv.Type(), evt)
				}
				arg = pv
			}
		}
		in := []reflect.Value{arg}
		if withCtx {
			in = []reflect.Value{reflect.ValueOf(ctx), arg}
		}
		out := v.Call(in)

		var res any
		var err error
		if returnsValue {
			if rv := out[0]; isNonNil(rv) {
				res = rv.Interface()
			}
		}
		if returnsErr {
			if ev := out[len(out)-1]; !ev.IsNil() {
				err = ev.Interface().(error)
			}
		}
		return res, err
	}

	all := opts
	if !wholeEvent {
		all = append([]ListenerOption{Accepting(tokenOfType(evt))}, opts...)
	}
	return build(h, name, all), nil
}

// MustFunc is Func that panics on error. Meant for static wiring at startup.
func MustFunc(fn any, opts ...ListenerOption) Listener {
	l, err := Func(fn, opts...)
	if err != nil {
		panic(err)
	}
	return l
}

func (l Listener) validate() error {
	if l.Handler == nil {
		return invalidRegistration(l.Name, "handler must not be nil")
	}
	if len(l.Accepts) == 0 {
		return invalidRegistration(l.Name, "listener accepts no event type")
	}
	for _, t := range l.Accepts {
		if t.IsZero() {
			return invalidRegistration(l.Name, "accepted event type is unresolved")
		}
	}
	if l.Mode != Sync && l.Mode != Async {
		return invalidRegistration(l.Name, "unknown mode %d", int(l.Mode))
	}
	return nil
}

func isNonNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return !v.IsNil()
	default:
		return v.IsValid()
	}
}

func funcName(fn any) string {
	return runtimeName(reflect.ValueOf(fn))
}

func runtimeName(v reflect.Value) string {
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return ""
}
