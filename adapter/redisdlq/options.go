package redisdlq

import (
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xevent"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock injects a custom xclock clock used for failure timestamps.
func WithClock(c xclock.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithCodec overrides the codec named by Config.Codec.
func WithCodec(c xevent.Codec) Option {
	return func(s *Store) {
		if c != nil {
			s.codec = c
		}
	}
}

// Use returns a builder option that sends async failures to the store and to
// the bus log, for xevent.Use and xevent.New.
func Use(s *Store) func(*xevent.BusBuilder) {
	return func(bb *xevent.BusBuilder) {
		bb.WithErrorSink(xevent.MultiSink(xevent.LogSink(s.logger), s.Sink()))
	}
}
