package events

import (
	"context"
	"errors"
)

// LifecyclePublisher broadcasts lifecycle events.
type LifecyclePublisher interface {
	PublishLifecycle(ctx context.Context, event *LifecycleEvent) error
}

// NoOpPublisher is a LifecyclePublisher that does nothing (for in-process usage without events).
type NoOpPublisher struct{}

// PublishLifecycle is a no-op.
func (p *NoOpPublisher) PublishLifecycle(_ context.Context, _ *LifecycleEvent) error {
	return nil
}

// CallbackPublisher is a LifecyclePublisher that calls a callback function.
type CallbackPublisher struct {
	callback func(ctx context.Context, event *LifecycleEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *LifecycleEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishLifecycle calls the callback.
func (p *CallbackPublisher) PublishLifecycle(ctx context.Context, event *LifecycleEvent) error {
	return p.callback(ctx, event)
}

// MultiPublisher publishes to every wrapped publisher, even when some fail.
type MultiPublisher []LifecyclePublisher

// PublishLifecycle returns the joined errors of the failing publishers.
func (m MultiPublisher) PublishLifecycle(ctx context.Context, event *LifecycleEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishLifecycle(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
