package xevent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacade_UseInstallsDefault(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	bus := Use(Config{Executor: ExecutorGoroutine})
	t.Cleanup(func() { _ = bus.Close(context.Background()) })
	assert.Same(t, bus, Default())

	var got []string
	id, err := Register(On(func(ctx context.Context, o Order) error {
		got = append(got, o.ID)
		return nil
	}))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, Publish(ctx, New("facade", Order{ID: "1"})))
	require.NoError(t, Emit(ctx, "facade", Order{ID: "2"}))
	require.NoError(t, Unregister(id))
	require.NoError(t, Emit(ctx, "facade", Order{ID: "3"}))

	assert.Equal(t, []string{"1", "2"}, got)
}

func TestFacade_UsePanicsOnInvalidConfig(t *testing.T) {
	assert.Panics(t, func() { Use(Config{Executor: "nope"}) })
}

func TestFacade_SetDefaultNil(t *testing.T) {
	assert.Panics(t, func() { SetDefault(nil) })
}
