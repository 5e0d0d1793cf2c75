package xevent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StampsIdentity(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := New("checkout", Order{ID: "o-1"}, WithTimestamp(at), WithMeta("tenant", "acme"))

	assert.NotEmpty(t, e.ID())
	assert.Equal(t, e.ID(), e.CorrelationID(), "a root event correlates with itself")
	assert.Empty(t, e.CausationID())
	assert.Equal(t, "checkout", e.Source())
	assert.Equal(t, at, e.CreatedAt())
	assert.Equal(t, TokenOf[Order](), e.Type())

	v, ok := e.Meta("tenant")
	assert.True(t, ok)
	assert.Equal(t, "acme", v)

	md := e.Metadata()
	md["tenant"] = "mutated"
	v, _ = e.Meta("tenant")
	assert.Equal(t, "acme", v, "Metadata returns a copy")
}

func TestNew_InterfaceTypeUsesDynamicToken(t *testing.T) {
	var s Shape = Square{Side: 2}
	e := New[Shape]("geo", s)
	assert.Equal(t, TokenOf[Square](), e.Type())

	e = New[any]("geo", Order{})
	assert.Equal(t, TokenOf[Order](), e.Type())
}

func TestEvent_DeriveLinksLineage(t *testing.T) {
	parent := New("src", Order{ID: "o-1"}, WithCorrelationID("corr-1"))
	child := NewAny("src", Invoice{Number: "i-1"}, WithMeta("k", "v"))

	linked := child.derive(parent)
	assert.Equal(t, "corr-1", linked.CorrelationID())
	assert.Equal(t, parent.ID(), linked.CausationID())
	assert.Equal(t, child.ID(), linked.ID())
	assert.Equal(t, child.CorrelationID(), child.ID(), "original is untouched")
}

func TestPayloadAs(t *testing.T) {
	e := New("src", Order{ID: "o-9"})

	o, ok := PayloadAs[Order](e)
	require.True(t, ok)
	assert.Equal(t, "o-9", o.ID)

	_, ok = PayloadAs[Invoice](e)
	assert.False(t, ok)

	_, ok = PayloadAs[Order](nil)
	assert.False(t, ok)
}
