package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const subscriptionLogPrefix = "rpc:subscription"

// Subscription is a live push stream. The handle survives reconnects: after
// the connection is restored it is resubscribed with its original request
// under a new correlation id, and Events keeps yielding.
//
// Events is closed when the subscription ends. Err then reports why, and is
// nil after Unsubscribe.
type Subscription[A, E any] struct {
	client  *Client
	req     SubscriptionRequest[A, E]
	events  *sink[E]
	// renewed holds a signal after each successful resubscribe.
	renewed chan struct{}

	mu    sync.Mutex
	id    uint64
	ack   A
	ended bool
	err   error

	resubscribing   atomic.Bool
	unsubscribeOnce sync.Once
}

func newSubscription[A, E any](c *Client, req SubscriptionRequest[A, E]) *Subscription[A, E] {
	return &Subscription[A, E]{
		client:  c,
		req:     req,
		events:  newSink[E](c.opts.subscriptionBuffer),
		renewed: make(chan struct{}, 1),
	}
}

// Events yields decoded push payloads. Consumers must drain it or
// unsubscribe: a full buffer holds up the client's read loop.
func (s *Subscription[A, E]) Events() <-chan E {
	return s.events.ch
}

// Done is closed when the subscription ends.
func (s *Subscription[A, E]) Done() <-chan struct{} {
	return s.events.done
}

// Renewed receives a value after the subscription is renewed following a
// reconnect. Ack then reports the new acknowledgment. Signals coalesce.
func (s *Subscription[A, E]) Renewed() <-chan struct{} {
	return s.renewed
}

// Ack returns the most recent subscribe acknowledgment.
func (s *Subscription[A, E]) Ack() A {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ack
}

// ID returns the current correlation id.
func (s *Subscription[A, E]) ID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Err returns the reason the subscription ended, if any.
func (s *Subscription[A, E]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Unsubscribe stops routing immediately, closes Events, and then asks the
// service to stop. A failed remote unsubscribe is logged and otherwise
// ignored. Safe to call more than once.
func (s *Subscription[A, E]) Unsubscribe(ctx context.Context) {
	s.unsubscribeOnce.Do(func() {
		s.client.subs.remove(s.ID())
		wasOpen := !s.events.isClosed()
		s.terminate(nil)
		if wasOpen {
			s.remoteUnsubscribe(ctx)
		}
	})
}

func (s *Subscription[A, E]) remoteUnsubscribe(ctx context.Context) {
	req := NewRequest[json.RawMessage](s.req.unsubscribeMethod, s.req.params...).WithTimeout(s.req.timeout)
	if _, err := Call(ctx, s.client, req); err != nil {
		slog.Warn(fmt.Sprintf("%s - %s failed, subscription already removed locally: %v", subscriptionLogPrefix, s.req.unsubscribeMethod, err))
	}
}

// abandon asks the service to drop a subscription whose acknowledgment the
// caller stopped waiting for.
func (s *Subscription[A, E]) abandon() {
	ctx, cancel := context.WithTimeout(context.Background(), s.client.timeoutFor(s.req.timeout))
	defer cancel()
	s.remoteUnsubscribe(ctx)
}

// start issues the subscribe call. Routing begins inside the decode step,
// which runs on the read loop, so no push that follows the acknowledgment
// on the wire can be missed.
func (s *Subscription[A, E]) start(ctx context.Context) error {
	c := s.client
	decode := func(id uint64, raw json.RawMessage) (any, error) {
		ack, err := decodeAs[A](raw)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.id = id
		s.ack = ack
		s.mu.Unlock()
		c.subs.activate(id)
		return ack, nil
	}

	pc, err := c.calls.register(s.req.method, decode, c.timeoutFor(s.req.timeout))
	if err != nil {
		return err
	}
	if err := c.subs.add(pc.id, s.req.pushMethod, s.req.unsubscribeMethod, s); err != nil {
		c.calls.cancel(pc.id)
		return err
	}
	if _, err := c.roundTrip(ctx, pc, s.req.params); err != nil {
		c.subs.remove(pc.id)
		if errors.Is(err, ErrCanceled) {
			// The service may have registered the subscription already.
			go s.abandon()
		}
		return err
	}

	if s.events.isClosed() && c.subs.remove(pc.id) != nil {
		s.remoteUnsubscribe(ctx)
	}
	return nil
}

func (s *Subscription[A, E]) deliver(payload json.RawMessage) {
	ev, err := decodeAs[E](payload)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - skipping %s push: %v", subscriptionLogPrefix, s.req.pushMethod, err))
		return
	}
	s.events.send(ev)
}

func (s *Subscription[A, E]) terminate(err error) {
	s.mu.Lock()
	if !s.ended {
		s.ended = true
		s.err = err
	}
	s.mu.Unlock()
	s.events.close()
}

// resubscribe retries the original subscribe call until it is acknowledged,
// fails permanently, or the subscription or client ends.
func (s *Subscription[A, E]) resubscribe() {
	if !s.resubscribing.CompareAndSwap(false, true) {
		return
	}
	defer s.resubscribing.Store(false)

	c := s.client
	for attempt := 0; ; attempt++ {
		if s.events.isClosed() {
			return
		}
		err := s.start(context.Background())
		if err == nil {
			slog.Info(fmt.Sprintf("%s - resubscribed %s as id %d", subscriptionLogPrefix, s.req.method, s.ID()))
			select {
			case s.renewed <- struct{}{}:
			default:
			}
			return
		}
		if !transient(err) {
			slog.Warn(fmt.Sprintf("%s - failed to resubscribe %s: %v", subscriptionLogPrefix, s.req.method, err))
			s.terminate(fmt.Errorf("%s - failed to resubscribe: %w", subscriptionLogPrefix, err))
			return
		}

		delay := c.opts.resubscribeBackoff.Delay(attempt)
		slog.Debug(fmt.Sprintf("%s - resubscribe %s attempt %d failed, retrying in %v: %v", subscriptionLogPrefix, s.req.method, attempt+1, delay, err))
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-s.events.done:
			timer.Stop()
			return
		case <-c.done:
			timer.Stop()
			s.terminate(ErrClientClosed)
			return
		}
	}
}

func transient(err error) bool {
	return errors.Is(err, ErrConnectionReset) || errors.Is(err, ErrNotConnected) || errors.Is(err, ErrTimeout)
}
