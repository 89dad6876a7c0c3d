package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/pkgservice-client/pkg/commsutil"
	"github.com/morezero/pkgservice-client/pkg/wire"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// EventsSubject overrides the broadcast subject (PKGSVC_EVENTS_SUBJECT).
	EventsSubject string
}

// CommsPublisher broadcasts lifecycle events as push envelopes on the
// events subject every client subscribes to.
type CommsPublisher struct {
	nc            *comms.Conn
	eventsSubject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	subject := commsutil.SubjectEvents
	if opts != nil && opts.EventsSubject != "" {
		subject = opts.EventsSubject
	}
	return &CommsPublisher{nc: nc, eventsSubject: subject}
}

// PublishLifecycle publishes event and flushes so it is on the wire before
// the caller proceeds, which matters for service_stopping during shutdown.
func (p *CommsPublisher) PublishLifecycle(ctx context.Context, event *LifecycleEvent) error {
	data, err := wire.EncodePush(event.Method, event.Params())
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	if err := p.nc.Publish(p.eventsSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, p.eventsSubject, err))
		return err
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		slog.Warn(fmt.Sprintf("%s - flush after %s failed: %v", commsPublisherLogPrefix, event.Method, err))
	}

	slog.Debug(fmt.Sprintf("%s - Published %s to %s", commsPublisherLogPrefix, event.Method, p.eventsSubject))
	return nil
}
