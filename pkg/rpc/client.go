// Package rpc is the client side of the package-service protocol: it
// multiplexes typed calls and push subscriptions over one transport
// session, correlates responses by id, and survives reconnects.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/pkgservice-client/pkg/transport"
	"github.com/morezero/pkgservice-client/pkg/wire"
)

const logPrefix = "rpc:client"

// DefaultTimeout applies to calls whose request sets none.
const DefaultTimeout = 25 * time.Second

type options struct {
	timeout            time.Duration
	subscriptionBuffer int
	resubscribeBackoff transport.Backoff
}

// Option configures a Client.
type Option func(*options)

// WithDefaultTimeout sets the deadline for requests that carry none.
// Non-positive values keep DefaultTimeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithSubscriptionBuffer sets the channel buffer of subscriptions and
// lifecycle observers created without an explicit size.
func WithSubscriptionBuffer(n int) Option {
	return func(o *options) { o.subscriptionBuffer = n }
}

// WithResubscribeBackoff sets the retry policy for resubscribing after a
// reconnect when the service is not yet answering.
func WithResubscribeBackoff(b transport.Backoff) Option {
	return func(o *options) { o.resubscribeBackoff = b }
}

// Client owns a session and the read loop that serves it. Create one per
// connection with NewClient and release it with Close.
type Client struct {
	session   transport.Session
	opts      options
	calls     *callRegistry
	subs      *subscriptionRegistry
	lifecycle *LifecycleBus

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewClient starts serving session. The client takes ownership of it.
func NewClient(session transport.Session, opts ...Option) *Client {
	o := options{
		timeout:            DefaultTimeout,
		subscriptionBuffer: 64,
		resubscribeBackoff: transport.DefaultBackoff(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	subs := newSubscriptionRegistry()
	c := &Client{
		session:   session,
		opts:      o,
		calls:     newCallRegistry(subs.has, session.Generation),
		subs:      subs,
		lifecycle: newLifecycleBus(),
		done:      make(chan struct{}),
	}

	c.wg.Add(1)
	go c.readLoop()
	return c
}

// Lifecycle returns the client's lifecycle bus.
func (c *Client) Lifecycle() *LifecycleBus {
	return c.lifecycle
}

// ObserveLifecycle attaches a lifecycle observer with the client's default buffer.
func (c *Client) ObserveLifecycle() *LifecycleObserver {
	return c.lifecycle.Observe(c.opts.subscriptionBuffer)
}

// Close fails outstanding calls with ErrClientClosed, ends every
// subscription and lifecycle observer, and closes the session.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if n := c.calls.close(); n > 0 {
			slog.Info(fmt.Sprintf("%s - failed %d outstanding calls on close", logPrefix, n))
		}
		c.subs.closeAll(ErrClientClosed)
		c.lifecycle.close()
		c.wg.Wait()
		if cerr := c.session.Close(); cerr != nil {
			err = fmt.Errorf("%s - failed to close session: %w", logPrefix, cerr)
		}
	})
	return err
}

// Call issues req and waits for its typed result.
func Call[R any](ctx context.Context, c *Client, req Request[R]) (R, error) {
	var zero R
	pc, err := c.calls.register(req.method, decoderFor[R](), c.timeoutFor(req.timeout))
	if err != nil {
		return zero, err
	}
	v, err := c.roundTrip(ctx, pc, req.params)
	if err != nil {
		return zero, err
	}
	r, ok := v.(R)
	if !ok {
		return zero, fmt.Errorf("%w: got %T", ErrResponseTypeMismatch, v)
	}
	return r, nil
}

// Subscribe issues the subscribe call and returns once it is acknowledged.
func Subscribe[A, E any](ctx context.Context, c *Client, req SubscriptionRequest[A, E]) (*Subscription[A, E], error) {
	s := newSubscription(c, req)
	if err := s.start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (c *Client) timeoutFor(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return c.opts.timeout
}

// roundTrip sends a registered call and waits for its completion.
func (c *Client) roundTrip(ctx context.Context, pc *pendingCall, params []any) (any, error) {
	frame, err := wire.Encode(pc.method, params, pc.id)
	if err != nil {
		c.calls.cancel(pc.id)
		return nil, fmt.Errorf("%s - failed to encode %s: %w", logPrefix, pc.method, err)
	}

	if err := c.session.Send(ctx, frame); err != nil {
		c.calls.cancel(pc.id)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCanceled, pc.method, ctxErr)
		}
		if errors.Is(err, transport.ErrClosed) {
			err = fmt.Errorf("%w: %w", ErrClientClosed, err)
		}
		return nil, fmt.Errorf("%s - failed to send %s: %w", logPrefix, pc.method, err)
	}

	select {
	case res := <-pc.done:
		return res.value, res.err
	case <-ctx.Done():
		if !c.calls.cancel(pc.id) {
			res := <-pc.done
			return res.value, res.err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrCanceled, pc.method, ctx.Err())
	}
}

func (c *Client) readLoop() {
	defer c.wg.Done()

	frames := c.session.Frames()
	states := c.session.States()
	for {
		select {
		case <-c.done:
			return
		case frame := <-frames:
			c.dispatch(frame)
		case state := <-states:
			c.handleState(state)
		}
	}
}

func (c *Client) knownPush(method string) bool {
	if _, ok := lifecycleMethods[method]; ok {
		return true
	}
	return c.subs.hasMethod(method)
}

// dispatch routes one inbound frame. Bad frames are logged and dropped.
func (c *Client) dispatch(frame []byte) {
	env, err := wire.Decode(frame, c.knownPush)
	if err != nil {
		if errors.Is(err, wire.ErrUnknownMethod) {
			slog.Debug(fmt.Sprintf("%s - dropping push: %v", logPrefix, err))
			return
		}
		slog.Warn(fmt.Sprintf("%s - dropping frame: %v", logPrefix, err))
		return
	}

	switch env.Kind {
	case wire.KindResponse:
		c.calls.resolve(env.ID, env.Payload)
	case wire.KindError:
		remote := &RemoteError{Code: env.Error.Code, Message: env.Error.Message}
		if !env.HasID {
			slog.Warn(fmt.Sprintf("%s - service error not tied to a call: %v", logPrefix, remote))
			return
		}
		c.calls.reject(env.ID, remote)
	case wire.KindPush:
		if ev, ok := lifecycleMethods[env.Method]; ok {
			c.lifecycle.publish(ev)
			return
		}
		if n := c.subs.routePush(env.Method, env.Payload); n == 0 {
			slog.Debug(fmt.Sprintf("%s - %s push had no active subscribers", logPrefix, env.Method))
		}
	default:
		slog.Warn(fmt.Sprintf("%s - unhandled envelope kind %v", logPrefix, env.Kind))
	}
}

func (c *Client) handleState(state transport.State) {
	switch state {
	case transport.StateDisconnected:
		if n := c.calls.cancelBefore(c.session.Generation(), ErrConnectionReset); n > 0 {
			slog.Warn(fmt.Sprintf("%s - connection lost, failed %d calls", logPrefix, n))
		}
	case transport.StateReconnected:
		if n := c.calls.cancelBefore(c.session.Generation(), ErrConnectionReset); n > 0 {
			slog.Warn(fmt.Sprintf("%s - reconnected, failed %d stale calls", logPrefix, n))
		}
		suspended := c.subs.suspendAll()
		slog.Info(fmt.Sprintf("%s - reconnected, resubscribing %d subscriptions", logPrefix, len(suspended)))
		for _, sub := range suspended {
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				sub.resubscribe()
			}()
		}
	default:
		slog.Warn(fmt.Sprintf("%s - unhandled transport state %v", logPrefix, state))
	}
}
