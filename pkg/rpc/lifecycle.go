package rpc

import (
	"fmt"
	"log/slog"
	"sync"
)

const lifecycleLogPrefix = "rpc:lifecycle"

// LifecycleEvent is a service-level broadcast, not correlated to any call.
type LifecycleEvent int

const (
	ServiceStopping LifecycleEvent = iota + 1
	RebootRequired
	RepositorySetChanged
)

// Reserved push methods carrying lifecycle events.
const (
	MethodServiceStopping     = "service_stopping"
	MethodRebootRequired      = "reboot_required"
	MethodRepositoriesChanged = "repositories_changed"
)

var lifecycleMethods = map[string]LifecycleEvent{
	MethodServiceStopping:     ServiceStopping,
	MethodRebootRequired:      RebootRequired,
	MethodRepositoriesChanged: RepositorySetChanged,
}

// LifecycleEventForMethod maps a reserved push method to its event.
func LifecycleEventForMethod(method string) (LifecycleEvent, bool) {
	ev, ok := lifecycleMethods[method]
	return ev, ok
}

// Method returns the push method that carries e.
func (e LifecycleEvent) Method() string {
	switch e {
	case ServiceStopping:
		return MethodServiceStopping
	case RebootRequired:
		return MethodRebootRequired
	case RepositorySetChanged:
		return MethodRepositoriesChanged
	default:
		return ""
	}
}

func (e LifecycleEvent) String() string {
	switch e {
	case ServiceStopping:
		return "ServiceStopping"
	case RebootRequired:
		return "RebootRequired"
	case RepositorySetChanged:
		return "RepositorySetChanged"
	default:
		return fmt.Sprintf("LifecycleEvent(%d)", int(e))
	}
}

// LifecycleBus fans lifecycle events out to observers. Observers only see
// events published after they attach.
type LifecycleBus struct {
	mu        sync.Mutex
	observers map[*LifecycleObserver]struct{}
	closed    bool
}

// LifecycleObserver receives lifecycle events until Close or until the bus
// is torn down with its client.
type LifecycleObserver struct {
	bus    *LifecycleBus
	events *sink[LifecycleEvent]
}

func newLifecycleBus() *LifecycleBus {
	return &LifecycleBus{observers: make(map[*LifecycleObserver]struct{})}
}

// Observe attaches an observer with the given channel buffer.
func (b *LifecycleBus) Observe(buffer int) *LifecycleObserver {
	o := &LifecycleObserver{bus: b, events: newSink[LifecycleEvent](buffer)}

	b.mu.Lock()
	closed := b.closed
	if !closed {
		b.observers[o] = struct{}{}
	}
	b.mu.Unlock()

	if closed {
		o.events.close()
	}
	return o
}

func (b *LifecycleBus) publish(ev LifecycleEvent) int {
	b.mu.Lock()
	targets := make([]*LifecycleObserver, 0, len(b.observers))
	for o := range b.observers {
		targets = append(targets, o)
	}
	b.mu.Unlock()

	delivered := 0
	for _, o := range targets {
		if o.events.send(ev) {
			delivered++
		}
	}
	slog.Info(fmt.Sprintf("%s - %s delivered to %d observers", lifecycleLogPrefix, ev, delivered))
	return delivered
}

func (b *LifecycleBus) close() {
	b.mu.Lock()
	b.closed = true
	observers := b.observers
	b.observers = make(map[*LifecycleObserver]struct{})
	b.mu.Unlock()

	for o := range observers {
		o.events.close()
	}
}

// Events yields lifecycle events. It is closed by Close or client shutdown.
func (o *LifecycleObserver) Events() <-chan LifecycleEvent {
	return o.events.ch
}

// Close detaches the observer and closes Events.
func (o *LifecycleObserver) Close() {
	o.bus.mu.Lock()
	delete(o.bus.observers, o)
	o.bus.mu.Unlock()
	o.events.close()
}
