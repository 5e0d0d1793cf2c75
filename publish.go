package xevent

import "context"

// PublishAll publishes events one after another with the same context. It stops
// at the first error; events before it have been fully dispatched.
func (b *Bus) PublishAll(ctx context.Context, events ...*Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	// Validate everything up front so that a bad event does not leave the
	// batch half published.
	for _, e := range events {
		if err := checkEvent(e); err != nil {
			return err
		}
	}
	for _, e := range events {
		if err := b.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
