package xevent

import (
	"context"
	"errors"
	"math/rand"
	"runtime/debug"
	"time"
)

// Middleware composes processing concerns around a listener handler.
type Middleware func(next HandlerFunc) HandlerFunc

// RetryConfig controls retry behavior for listener middleware.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first execution.
	MaxAttempts int
	// Backoff computes the base wait before the next attempt.
	Backoff func(attempt int) time.Duration
	// RetryIf, when provided, returns true if the error should be retried.
	// If nil, all errors except chain overflow are retried.
	RetryIf func(err error) bool
	// Jitter adds up to [0, Jitter] random delay to the base backoff.
	Jitter time.Duration
}

// RetryMiddleware provides bounded, selective retries around a handler.
// Chain overflow is never retried; a retry would overflow again.
func RetryMiddleware(cfg RetryConfig) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, e *Event) (any, error) {
			attempts := cfg.MaxAttempts
			if attempts < 1 {
				attempts = 1
			}
			shouldRetry := cfg.RetryIf
			if shouldRetry == nil {
				shouldRetry = func(error) bool { return true }
			}
			var (
				res     any
				lastErr error
			)
			for i := 1; i <= attempts; i++ {
				res, lastErr = next(ctx, e)
				if lastErr == nil {
					return res, nil
				}
				if ctx.Err() != nil || errors.Is(lastErr, ErrChainTooDeep) {
					return res, lastErr
				}
				if i == attempts || !shouldRetry(lastErr) {
					return res, lastErr
				}
				if cfg.Backoff != nil {
					wait := cfg.Backoff(i)
					if cfg.Jitter > 0 {
						wait += time.Duration(rand.Int63n(int64(cfg.Jitter)))
					}
					select {
					case <-ctx.Done():
						return res, lastErr
					case <-time.After(wait):
					}
				}
			}
			return res, lastErr
		}
	}
}

// ExponentialBackoff doubles base per attempt, capped at ceiling.
func ExponentialBackoff(base, ceiling time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if ceiling > 0 && d >= ceiling {
				return ceiling
			}
		}
		return d
	}
}

// TimeoutMiddleware bounds a handler's run time. On expiry it returns
// context.DeadlineExceeded; the handler keeps running in the background with a
// cancelled context and its result is discarded.
func TimeoutMiddleware(d time.Duration) Middleware {
	if d <= 0 {
		return func(next HandlerFunc) HandlerFunc { return next }
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, e *Event) (any, error) {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			type result struct {
				v   any
				err error
			}
			ch := make(chan result, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						ch <- result{err: &PanicError{Value: r, Stack: debug.Stack()}}
					}
				}()
				v, err := next(tctx, e)
				ch <- result{v: v, err: err}
			}()

			select {
			case <-tctx.Done():
				return nil, tctx.Err()
			case r := <-ch:
				return r.v, r.err
			}
		}
	}
}

// RecoveryMiddleware turns a handler panic into a *PanicError.
func RecoveryMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, e *Event) (res any, err error) {
			defer func() {
				if r := recover(); r != nil {
					res, err = nil, &PanicError{Value: r, Stack: debug.Stack()}
				}
			}()
			return next(ctx, e)
		}
	}
}

// Chain composes middlewares around a handler in order.
func Chain(h HandlerFunc, mws ...Middleware) HandlerFunc {
	if len(mws) == 0 {
		return h
	}
	wrapped := h
	// Apply in reverse so that first middleware wraps last.
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}
	return wrapped
}
