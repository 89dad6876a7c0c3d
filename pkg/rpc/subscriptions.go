package rpc

import (
	"encoding/json"
	"sync"
)

// subscriber is the untyped view of a Subscription held by the registry.
type subscriber interface {
	deliver(payload json.RawMessage)
	resubscribe()
	terminate(err error)
}

type activeSubscription struct {
	id                uint64
	pushMethod        string
	unsubscribeMethod string
	// routing is false until the subscribe call is acknowledged.
	routing bool
	sub     subscriber
}

// subscriptionRegistry indexes subscriptions by correlation id and by push
// method. Pushes are broadcast to every routing subscription of a method.
type subscriptionRegistry struct {
	mu       sync.Mutex
	byID     map[uint64]*activeSubscription
	byMethod map[string]map[uint64]*activeSubscription
	closed   bool
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{
		byID:     make(map[uint64]*activeSubscription),
		byMethod: make(map[string]map[uint64]*activeSubscription),
	}
}

// add registers a subscription awaiting acknowledgment.
func (r *subscriptionRegistry) add(id uint64, pushMethod, unsubscribeMethod string, sub subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClientClosed
	}
	entry := &activeSubscription{id: id, pushMethod: pushMethod, unsubscribeMethod: unsubscribeMethod, sub: sub}
	r.byID[id] = entry
	methods, ok := r.byMethod[pushMethod]
	if !ok {
		methods = make(map[uint64]*activeSubscription)
		r.byMethod[pushMethod] = methods
	}
	methods[id] = entry
	return nil
}

// activate starts routing pushes to subscription id. It reports false when
// the subscription was removed before its acknowledgment arrived.
func (r *subscriptionRegistry) activate(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byID[id]
	if !ok {
		return false
	}
	entry.routing = true
	return true
}

// remove stops routing to id. Pushes already handed to the subscriber
// finish; none start afterwards.
func (r *subscriptionRegistry) remove(id uint64) *activeSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

func (r *subscriptionRegistry) removeLocked(id uint64) *activeSubscription {
	entry, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	if methods, ok := r.byMethod[entry.pushMethod]; ok {
		delete(methods, id)
		if len(methods) == 0 {
			delete(r.byMethod, entry.pushMethod)
		}
	}
	entry.routing = false
	return entry
}

// routePush delivers payload to every routing subscription of method and
// returns how many received it.
func (r *subscriptionRegistry) routePush(method string, payload json.RawMessage) int {
	r.mu.Lock()
	targets := make([]subscriber, 0, len(r.byMethod[method]))
	for _, entry := range r.byMethod[method] {
		if entry.routing {
			targets = append(targets, entry.sub)
		}
	}
	r.mu.Unlock()

	for _, sub := range targets {
		sub.deliver(payload)
	}
	return len(targets)
}

// hasMethod reports whether any subscription, acknowledged or not, listens
// for method.
func (r *subscriptionRegistry) hasMethod(method string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byMethod[method]) > 0
}

func (r *subscriptionRegistry) has(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byID[id]
	return ok
}

// suspendAll removes every acknowledged subscription and returns their
// subscribers so they can resubscribe under new ids. Subscriptions still
// awaiting acknowledgment are left to their failing subscribe call.
func (r *subscriptionRegistry) suspendAll() []subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	var suspended []subscriber
	for id, entry := range r.byID {
		if !entry.routing {
			continue
		}
		r.removeLocked(id)
		suspended = append(suspended, entry.sub)
	}
	return suspended
}

// closeAll terminates every subscription with err and rejects later adds.
func (r *subscriptionRegistry) closeAll(err error) {
	r.mu.Lock()
	r.closed = true
	subs := make([]subscriber, 0, len(r.byID))
	for _, entry := range r.byID {
		subs = append(subs, entry.sub)
	}
	r.byID = make(map[uint64]*activeSubscription)
	r.byMethod = make(map[string]map[uint64]*activeSubscription)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.terminate(err)
	}
}

func (r *subscriptionRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
