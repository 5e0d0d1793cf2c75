package xevent

import (
	"errors"
	"fmt"
)

var (
	ErrBusClosed           = errors.New("xevent: bus is closed")
	ErrNilEvent            = errors.New("xevent: nil event")
	ErrInvalidEvent        = errors.New("xevent: event payload does not match its type token")
	ErrInvalidRegistration = errors.New("xevent: invalid listener registration")
	ErrListenerNotFound    = errors.New("xevent: listener not found")
	ErrListenerExecution   = errors.New("xevent: listener execution failed")
	ErrConditionEvaluation = errors.New("xevent: condition evaluation failed")
	ErrChainTooDeep        = errors.New("xevent: event chain too deep")
	ErrFieldNotFound       = errors.New("xevent: field not found")
	ErrExecutorSaturated   = errors.New("xevent: executor queue is full")
	ErrExecutorClosed      = errors.New("xevent: executor is closed")
	ErrShutdownTimeout     = errors.New("xevent: executor shutdown timed out")
	ErrInvalidConfig       = errors.New("xevent: invalid config")
	ErrUnknownCodec        = errors.New("xevent: unknown codec")
)

type ErrUnknownExecutor struct{ name string }

func (e ErrUnknownExecutor) Error() string { return fmt.Sprintf("xevent: unknown executor: %s", e.name) }

// InvalidRegistrationError explains why a listener was rejected.
type InvalidRegistrationError struct {
	Listener string
	Reason   string
}

func (e *InvalidRegistrationError) Error() string {
	if e.Listener == "" {
		return "xevent: invalid listener registration: " + e.Reason
	}
	return fmt.Sprintf("xevent: invalid listener registration %q: %s", e.Listener, e.Reason)
}

func (e *InvalidRegistrationError) Unwrap() error { return ErrInvalidRegistration }

func invalidRegistration(name, format string, args ...any) error {
	return &InvalidRegistrationError{Listener: name, Reason: fmt.Sprintf(format, args...)}
}

// ListenerError wraps a failure raised by one listener for one event.
// Panic is set when the handler panicked instead of returning an error.
type ListenerError struct {
	ListenerID ListenerID
	Listener   string
	Mode       Mode
	Event      *Event
	Err        error
	Panic      any
	Stack      []byte
}

func (e *ListenerError) Error() string {
	evt := "<nil>"
	if e.Event != nil {
		evt = e.Event.Type().String()
	}
	if e.Panic != nil {
		return fmt.Sprintf("xevent: listener %q (%s) panicked on %s: %v", e.Listener, e.Mode, evt, e.Panic)
	}
	return fmt.Sprintf("xevent: listener %q (%s) failed on %s: %v", e.Listener, e.Mode, evt, e.Err)
}

func (e *ListenerError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrListenerExecution}
	}
	return []error{ErrListenerExecution, e.Err}
}

// PanicError carries a recovered panic value and the stack at recovery.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic recovered: %v", e.Value) }

// ConditionError reports a condition that could not be evaluated. It is never
// returned to publishers; the listener is simply skipped.
type ConditionError struct {
	ListenerID ListenerID
	Listener   string
	Err        error
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("xevent: condition of listener %q: %v", e.Listener, e.Err)
}

func (e *ConditionError) Unwrap() []error { return []error{ErrConditionEvaluation, e.Err} }

// ChainTooDeepError is returned when follow-up events exceed the configured depth.
type ChainTooDeepError struct {
	Limit     int
	Depth     int
	EventType string
	RootID    string
}

func (e *ChainTooDeepError) Error() string {
	return fmt.Sprintf("xevent: event chain too deep: depth %d exceeds limit %d at %s (root %s)",
		e.Depth, e.Limit, e.EventType, e.RootID)
}

func (e *ChainTooDeepError) Unwrap() error { return ErrChainTooDeep }
