package xevent

import (
	"context"
	"fmt"
	"sync"
)

var (
	defaultBus   *Bus
	defaultBusMu sync.Mutex
)

// Default returns the process-wide singleton Bus, building one with defaults on
// first use.
func Default() *Bus {
	defaultBusMu.Lock()
	defer defaultBusMu.Unlock()

	if defaultBus != nil {
		return defaultBus
	}

	bus, err := NewBusBuilder().Build()
	if err != nil {
		panic(fmt.Sprintf("xevent: failed to initialize default bus: %v", err))
	}
	defaultBus = bus
	return defaultBus
}

// SetDefault replaces the process-wide default Bus. The previous bus is not closed.
func SetDefault(b *Bus) {
	if b == nil {
		panic("xevent: SetDefault called with nil Bus")
	}
	defaultBusMu.Lock()
	defaultBus = b
	defaultBusMu.Unlock()
}

// Use builds a Bus from cfg, installs it as the default and returns it.
// Mirrors xlog/xclock "Use" behavior: explicit construction and global install.
func Use(cfg Config, opts ...func(*BusBuilder)) *Bus {
	bb := NewBusBuilder().WithConfig(cfg)
	for _, o := range opts {
		if o != nil {
			o(bb)
		}
	}
	bus, err := bb.Build()
	if err != nil {
		panic(fmt.Errorf("xevent.Use: %w", err))
	}
	SetDefault(bus)
	return bus
}

// Publish is the Facade using the default bus.
func Publish(ctx context.Context, e *Event) error {
	return Default().Publish(ctx, e)
}

// Emit is the Facade using the default bus.
func Emit(ctx context.Context, source, payload any, opts ...EventOption) error {
	return Default().Emit(ctx, source, payload, opts...)
}

// Register is the Facade using the default bus.
func Register(l Listener) (ListenerID, error) {
	return Default().Register(l)
}

// Unregister is the Facade using the default bus.
func Unregister(id ListenerID) error {
	return Default().Unregister(id)
}
