package rpc

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Request describes a call whose result decodes into R. It is immutable:
// params are copied on construction and WithTimeout returns a copy.
type Request[R any] struct {
	method  string
	params  []any
	timeout time.Duration
}

// NewRequest builds a call descriptor for method with positional params.
func NewRequest[R any](method string, params ...any) Request[R] {
	return Request[R]{method: method, params: slices.Clone(params)}
}

// Method returns the wire method name.
func (r Request[R]) Method() string { return r.method }

// Params returns a copy of the positional params.
func (r Request[R]) Params() []any { return slices.Clone(r.params) }

// Timeout returns the per-call deadline, zero meaning the client default.
func (r Request[R]) Timeout() time.Duration { return r.timeout }

// WithTimeout returns a copy with a per-call deadline.
func (r Request[R]) WithTimeout(d time.Duration) Request[R] {
	r.params = slices.Clone(r.params)
	r.timeout = d
	return r
}

// SubscriptionRequest describes a subscription: the subscribe call whose
// acknowledgment decodes into A, the call that stops it, and the push method
// whose params decode into E.
type SubscriptionRequest[A, E any] struct {
	Request[A]
	unsubscribeMethod string
	pushMethod        string
}

// NewSubscription builds a subscription descriptor.
func NewSubscription[A, E any](method, unsubscribeMethod, pushMethod string, params ...any) SubscriptionRequest[A, E] {
	return SubscriptionRequest[A, E]{
		Request:           NewRequest[A](method, params...),
		unsubscribeMethod: unsubscribeMethod,
		pushMethod:        pushMethod,
	}
}

// UnsubscribeMethod returns the method that stops the subscription.
func (r SubscriptionRequest[A, E]) UnsubscribeMethod() string { return r.unsubscribeMethod }

// PushMethod returns the push method carrying events.
func (r SubscriptionRequest[A, E]) PushMethod() string { return r.pushMethod }

// WithTimeout returns a copy whose subscribe and unsubscribe calls use d.
func (r SubscriptionRequest[A, E]) WithTimeout(d time.Duration) SubscriptionRequest[A, E] {
	r.Request = r.Request.WithTimeout(d)
	return r
}

// decodeFunc turns a raw result into the caller's expected type. id is the
// correlation id the result arrived under.
type decodeFunc func(id uint64, raw json.RawMessage) (any, error)

func decodeAs[R any](raw json.RawMessage) (R, error) {
	var v R
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrResponseTypeMismatch, err)
	}
	return v, nil
}

func decoderFor[R any]() decodeFunc {
	return func(_ uint64, raw json.RawMessage) (any, error) {
		return decodeAs[R](raw)
	}
}
