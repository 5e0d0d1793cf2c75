package xevent

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context, e *Event) (any, error) { return nil, nil }

func names(regs []Registration) []string {
	out := make([]string, len(regs))
	for i, r := range regs {
		out[i] = r.Name
	}
	return out
}

func TestRegistry_OrdersByRankThenRegistration(t *testing.T) {
	r := NewRegistry()
	order := Accepting(TokenOf[Order]())

	for _, l := range []Listener{
		NewListener(noop, order, Named("default-a")),
		NewListener(noop, order, Named("late"), WithOrder(5)),
		NewListener(noop, order, Named("first"), WithOrder(-10)),
		NewListener(noop, order, Named("early-a"), WithOrder(1)),
		NewListener(noop, order, Named("early-b"), WithOrder(1)),
		NewListener(noop, order, Named("default-b")),
		NewListener(noop, Accepting(TokenOf[Invoice]()), Named("invoice"), WithOrder(1)),
	} {
		_, err := r.Register(l)
		require.NoError(t, err)
	}

	assert.Equal(t,
		[]string{"first", "early-a", "early-b", "late", "default-a", "default-b"},
		names(r.ListenersFor(TokenOf[Order]())),
	)
	assert.Equal(t, []string{"invoice"}, names(r.ListenersFor(TokenOf[Invoice]())))
	assert.Empty(t, r.ListenersFor(TokenOf[Square]()))
	assert.Equal(t, 7, r.Len())
}

func TestRegistry_InterfaceListenersSeeImplementers(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(NewListener(noop, Accepting(TokenOf[Shape]()), Named("shapes"), WithOrder(2)))
	require.NoError(t, err)
	_, err = r.Register(NewListener(noop, Accepting(TokenOf[Square]()), Named("squares"), WithOrder(1)))
	require.NoError(t, err)

	assert.Equal(t, []string{"squares", "shapes"}, names(r.ListenersFor(TokenOf[Square]())))
	assert.Empty(t, r.ListenersFor(TokenOf[Order]()))
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	id, err := r.Register(NewListener(noop, Accepting(TokenOf[Order]()), Named("gone")))
	require.NoError(t, err)

	// Warm the per-type cache before removal.
	require.Len(t, r.ListenersFor(TokenOf[Order]()), 1)

	require.NoError(t, r.Unregister(id))
	assert.Empty(t, r.ListenersFor(TokenOf[Order]()))
	assert.ErrorIs(t, r.Unregister(id), ErrListenerNotFound)

	_, ok := r.Get(id)
	assert.False(t, ok)
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	r := NewRegistry()
	id, err := r.Register(NewListener(noop, Accepting(TokenOf[Order]())))
	require.NoError(t, err)

	reg, ok := r.Get(id)
	require.True(t, ok)
	reg.Accepts[0] = TokenOf[Invoice]()

	again, _ := r.Get(id)
	assert.Equal(t, TokenOf[Order](), again.Accepts[0])
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(NewListener(noop))
	assert.ErrorIs(t, err, ErrInvalidRegistration)
	assert.Zero(t, r.Len())
}

func TestRegistry_ConcurrentRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := r.Register(NewListener(noop, Accepting(TokenOf[Order]()),
					Named(fmt.Sprintf("l-%d-%d", i, j)), WithOrder(j%3)))
				assert.NoError(t, err)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				regs := r.ListenersFor(TokenOf[Order]())
				for k := 1; k < len(regs); k++ {
					prev, cur := regs[k-1], regs[k]
					ordered := prev.Order < cur.Order || (prev.Order == cur.Order && prev.Seq < cur.Seq)
					assert.True(t, ordered)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 400, r.Len())
}
