package xevent

import (
	"fmt"
	"reflect"
)

// Condition gates delivery of an event to a listener. It must not mutate the
// event. A returned error is treated as "does not match".
type Condition func(e *Event) (bool, error)

// When adapts a predicate over the typed payload. Payloads that are not a T
// do not match.
func When[T any](pred func(payload T) bool) Condition {
	return func(e *Event) (bool, error) {
		p, ok := e.payload.(T)
		if !ok {
			return false, nil
		}
		return pred(p), nil
	}
}

// NotNil matches events that carry a non-nil payload.
func NotNil() Condition {
	return func(e *Event) (bool, error) {
		if e == nil || e.payload == nil {
			return false, nil
		}
		v := reflect.ValueOf(e.payload)
		switch v.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
			return !v.IsNil(), nil
		}
		return true, nil
	}
}

// Field matches when the named exported field (or zero-argument value-receiver
// method) of the payload is truthy: true, non-zero, non-empty. Pointer-receiver
// methods are never called. A payload without that field fails with
// ErrFieldNotFound, which the matcher treats as a non-match.
func Field(name string) Condition {
	return func(e *Event) (bool, error) {
		v, err := lookupField(e.payload, name)
		if err != nil {
			return false, err
		}
		return truthy(v), nil
	}
}

// FieldEquals matches when the named field of the payload equals want.
func FieldEquals(name string, want any) Condition {
	return func(e *Event) (bool, error) {
		v, err := lookupField(e.payload, name)
		if err != nil {
			return false, err
		}
		if !v.CanInterface() {
			return false, fmt.Errorf("%w: %s is not accessible", ErrFieldNotFound, name)
		}
		return reflect.DeepEqual(v.Interface(), want), nil
	}
}

// All matches when every condition matches. The first error stops evaluation.
func All(conds ...Condition) Condition {
	return func(e *Event) (bool, error) {
		for _, c := range conds {
			if c == nil {
				continue
			}
			ok, err := c(e)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

// Any matches when at least one condition matches. Errors from earlier
// conditions are ignored if a later one matches.
func Any(conds ...Condition) Condition {
	return func(e *Event) (bool, error) {
		var firstErr error
		for _, c := range conds {
			if c == nil {
				continue
			}
			ok, err := c(e)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if ok {
				return true, nil
			}
		}
		return false, firstErr
	}
}

// Not inverts a condition. Errors pass through unchanged.
func Not(c Condition) Condition {
	return func(e *Event) (bool, error) {
		ok, err := c(e)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}

func lookupField(payload any, name string) (reflect.Value, error) {
	if payload == nil {
		return reflect.Value{}, fmt.Errorf("%w: %s on nil payload", ErrFieldNotFound, name)
	}
	v := reflect.ValueOf(payload)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: %s on nil payload", ErrFieldNotFound, name)
		}
		v = v.Elem()
	}

	// Only value-receiver getters: they run on a copy and cannot change the payload.
	if m := v.MethodByName(name); m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() == 1 {
		return m.Call(nil)[0], nil
	}
	switch v.Kind() {
	case reflect.Struct:
		sf, ok := v.Type().FieldByName(name)
		if !ok || !sf.IsExported() {
			return reflect.Value{}, fmt.Errorf("%w: %s on %s", ErrFieldNotFound, name, v.Type())
		}
		return v.FieldByIndex(sf.Index), nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			break
		}
		mv := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
		if !mv.IsValid() {
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrFieldNotFound, name)
		}
		return mv, nil
	}
	return reflect.Value{}, fmt.Errorf("%w: %s on %s", ErrFieldNotFound, name, v.Type())
}

func truthy(v reflect.Value) bool {
	if !v.IsValid() {
		return false
	}
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return false
		}
		return truthy(v.Elem())
	case reflect.Map, reflect.Slice, reflect.Chan:
		return !v.IsNil() && v.Len() > 0
	case reflect.String, reflect.Array:
		return v.Len() > 0
	case reflect.Func:
		return !v.IsNil()
	default:
		return !v.IsZero()
	}
}
