package xevent

import (
	"reflect"
)

// TypeToken is an explicit runtime tag for a payload type.
//
// Generic instantiations are distinct tokens: TokenOf[Created[Order]]() never
// equals TokenOf[Created[Invoice]](), even though both share the Created shape.
type TypeToken struct {
	t reflect.Type
}

// TokenOf returns the token for the static type T. Interface types are allowed
// and match every payload implementing them.
func TokenOf[T any]() TypeToken {
	return TypeToken{t: reflect.TypeFor[T]()}
}

// TokenFor returns the token for the dynamic type of v. A nil v yields the zero token.
func TokenFor(v any) TypeToken {
	if v == nil {
		return TypeToken{}
	}
	return TypeToken{t: reflect.TypeOf(v)}
}

// tokenOfType wraps an already resolved reflect.Type.
func tokenOfType(t reflect.Type) TypeToken {
	return TypeToken{t: t}
}

// IsZero reports whether the token carries no type.
func (tt TypeToken) IsZero() bool { return tt.t == nil }

// IsInterface reports whether the token names an interface type.
func (tt TypeToken) IsInterface() bool {
	return tt.t != nil && tt.t.Kind() == reflect.Interface
}

// Type exposes the underlying reflect.Type.
func (tt TypeToken) Type() reflect.Type { return tt.t }

func (tt TypeToken) String() string {
	if tt.t == nil {
		return "<none>"
	}
	return tt.t.String()
}

// Accepts reports whether a listener declared for tt may receive a payload tagged
// with payload. Concrete tokens match by identity only; interface tokens match
// any payload type implementing them.
func (tt TypeToken) Accepts(payload TypeToken) bool {
	if tt.t == nil || payload.t == nil {
		return false
	}
	if tt.t == payload.t {
		return true
	}
	if tt.t.Kind() == reflect.Interface {
		return payload.t.Implements(tt.t)
	}
	return false
}
