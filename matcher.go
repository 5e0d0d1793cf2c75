package xevent

import (
	"fmt"
)

// ConditionErrorHandler receives conditions that failed to evaluate.
type ConditionErrorHandler func(err *ConditionError, e *Event)

// Matcher resolves the ordered set of listeners eligible for an event.
type Matcher struct {
	registry *Registry
	onError  ConditionErrorHandler
}

// NewMatcher returns a Matcher over r. onError may be nil.
func NewMatcher(r *Registry, onError ConditionErrorHandler) *Matcher {
	return &Matcher{registry: r, onError: onError}
}

// Resolve returns the listeners that accept e's token and whose conditions
// match, ordered by (Order, Seq). An empty result is not an error.
func (m *Matcher) Resolve(e *Event) []Registration {
	if e == nil {
		return nil
	}
	return registrations(m.resolve(e))
}

func (m *Matcher) resolve(e *Event) []*entry {
	cands := m.registry.candidates(e.token)
	if len(cands) == 0 {
		return nil
	}
	out := make([]*entry, 0, len(cands))
	for _, en := range cands {
		if en.cond == nil {
			out = append(out, en)
			continue
		}
		ok, err := evaluate(en.cond, e)
		if err != nil {
			if m.onError != nil {
				m.onError(&ConditionError{ListenerID: en.reg.ID, Listener: en.reg.Name, Err: err}, e)
			}
			continue
		}
		if ok {
			out = append(out, en)
		}
	}
	return out
}

// evaluate runs a condition, turning a panic into an error.
func evaluate(c Condition, e *Event) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("condition panicked: %v", r)
		}
	}()
	return c(e)
}
