package xevent

import (
	"context"
)

// HealthChecker provides health status for production monitoring.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// Publisher is the minimal surface listeners and application code need.
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
	Emit(ctx context.Context, source, payload any, opts ...EventOption) error
}

// API represents the complete xevent surface for extensibility.
type API interface {
	Publisher
	Register(l Listener) (ListenerID, error)
	Unregister(id ListenerID) error
	Listeners() []Registration
	Drain(ctx context.Context) error
	Close(ctx context.Context) error
	GetMetrics() Metrics
	Health(ctx context.Context) HealthStatus
	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
}
