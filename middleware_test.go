package xevent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryMiddleware(t *testing.T) {
	e := New("t", Order{})
	errTransient := errors.New("transient")
	errFatal := errors.New("fatal")

	t.Run("succeeds after retries", func(t *testing.T) {
		attempts := 0
		h := RetryMiddleware(RetryConfig{MaxAttempts: 3, Backoff: func(int) time.Duration { return time.Millisecond }})(
			func(ctx context.Context, e *Event) (any, error) {
				attempts++
				if attempts < 3 {
					return nil, errTransient
				}
				return "ok", nil
			})
		res, err := h(context.Background(), e)
		require.NoError(t, err)
		assert.Equal(t, "ok", res)
		assert.Equal(t, 3, attempts)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		attempts := 0
		h := RetryMiddleware(RetryConfig{MaxAttempts: 2})(func(ctx context.Context, e *Event) (any, error) {
			attempts++
			return nil, errTransient
		})
		_, err := h(context.Background(), e)
		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 2, attempts)
	})

	t.Run("RetryIf filters", func(t *testing.T) {
		attempts := 0
		h := RetryMiddleware(RetryConfig{
			MaxAttempts: 5,
			RetryIf:     func(err error) bool { return errors.Is(err, errTransient) },
		})(func(ctx context.Context, e *Event) (any, error) {
			attempts++
			return nil, errFatal
		})
		_, err := h(context.Background(), e)
		assert.ErrorIs(t, err, errFatal)
		assert.Equal(t, 1, attempts)
	})

	t.Run("chain overflow is not retried", func(t *testing.T) {
		attempts := 0
		h := RetryMiddleware(RetryConfig{MaxAttempts: 5})(func(ctx context.Context, e *Event) (any, error) {
			attempts++
			return nil, &ChainTooDeepError{Limit: 10, Depth: 11}
		})
		_, err := h(context.Background(), e)
		assert.ErrorIs(t, err, ErrChainTooDeep)
		assert.Equal(t, 1, attempts)
	})
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff(10*time.Millisecond, 50*time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, b(1))
	assert.Equal(t, 20*time.Millisecond, b(2))
	assert.Equal(t, 40*time.Millisecond, b(3))
	assert.Equal(t, 50*time.Millisecond, b(4))
	assert.Equal(t, 50*time.Millisecond, b(10))
}

func TestTimeoutMiddleware(t *testing.T) {
	e := New("t", Order{})

	slow := TimeoutMiddleware(10 * time.Millisecond)(func(ctx context.Context, e *Event) (any, error) {
		<-ctx.Done()
		return nil, nil
	})
	_, err := slow(context.Background(), e)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	fast := TimeoutMiddleware(time.Second)(func(ctx context.Context, e *Event) (any, error) {
		return 1, nil
	})
	res, err := fast(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, 1, res)

	panicky := TimeoutMiddleware(time.Second)(func(ctx context.Context, e *Event) (any, error) {
		panic("inside")
	})
	_, err = panicky(context.Background(), e)
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "inside", pe.Value)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware()(func(ctx context.Context, e *Event) (any, error) {
		panic(errors.New("bad"))
	})
	_, err := h(context.Background(), New("t", Order{}))

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.NotEmpty(t, pe.Stack)
	assert.Contains(t, err.Error(), "bad")
}

func TestBus_RetryMiddlewareOnListener(t *testing.T) {
	bus := newTestBus(t, func(b *BusBuilder) {
		b.WithMiddleware(RetryMiddleware(RetryConfig{MaxAttempts: 3}))
	})

	attempts := 0
	bus.MustRegister(On(func(ctx context.Context, o Order) error {
		attempts++
		if attempts == 1 {
			panic("first try")
		}
		return nil
	}))

	require.NoError(t, bus.Emit(context.Background(), "test", Order{}))
	assert.Equal(t, 2, attempts)
	assert.Zero(t, bus.GetMetrics().Failed)
}
