package rpc

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/morezero/pkgservice-client/pkg/transport"
	"github.com/morezero/pkgservice-client/pkg/wire"
)

// replyFunc answers a request. Returning ok=false leaves it unanswered.
type replyFunc func(req wire.Request) (result any, detail *wire.ErrorDetail, ok bool)

// fakeService is the far end of a transport.Pipe speaking the wire protocol.
type fakeService struct {
	t    *testing.T
	peer *transport.PipePeer

	mu       sync.Mutex
	handlers map[string]replyFunc
	requests chan wire.Request
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeService) {
	t.Helper()

	pipe, peer := transport.NewPipe(64)
	f := &fakeService{
		t:        t,
		peer:     peer,
		handlers: make(map[string]replyFunc),
		requests: make(chan wire.Request, 1024),
	}
	c := NewClient(pipe, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		c.Close()
		<-done
	})
	return c, f
}

func (f *fakeService) handle(method string, h replyFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
}

func (f *fakeService) reply(result any) replyFunc {
	return func(wire.Request) (any, *wire.ErrorDetail, bool) { return result, nil, true }
}

func (f *fakeService) serve(ctx context.Context) {
	for {
		frame, err := f.peer.Recv(ctx)
		if err != nil {
			return
		}
		var req wire.Request
		if err := json.Unmarshal(frame, &req); err != nil {
			f.t.Errorf("rpc:helpers_test - undecodable request %s: %v", frame, err)
			continue
		}
		f.requests <- req

		f.mu.Lock()
		h := f.handlers[req.Method]
		f.mu.Unlock()
		if h == nil {
			continue
		}
		result, detail, ok := h(req)
		if !ok {
			continue
		}
		data, err := wire.EncodeResponse(req.ID, result, detail)
		if err != nil {
			f.t.Errorf("rpc:helpers_test - encode response: %v", err)
			continue
		}
		if err := f.peer.Deliver(ctx, data); err != nil {
			return
		}
	}
}

func (f *fakeService) deliver(frame string) {
	f.t.Helper()
	if err := f.peer.Deliver(context.Background(), []byte(frame)); err != nil {
		f.t.Fatalf("rpc:helpers_test - deliver: %v", err)
	}
}

func (f *fakeService) push(method string, params any) {
	f.t.Helper()
	data, err := wire.EncodePush(method, params)
	if err != nil {
		f.t.Fatalf("rpc:helpers_test - encode push: %v", err)
	}
	f.deliver(string(data))
}

// expectRequest waits for the next request with the given method.
func (f *fakeService) expectRequest(method string) wire.Request {
	f.t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case req := <-f.requests:
			if req.Method == method {
				return req
			}
		case <-deadline:
			f.t.Fatalf("rpc:helpers_test - no %s request received", method)
			return wire.Request{}
		}
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("rpc:helpers_test - condition not met: %s", what)
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("rpc:helpers_test - channel closed")
		}
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("rpc:helpers_test - timed out waiting for value")
	}
	var zero T
	return zero
}

func expectNothing[T any](t *testing.T, ch <-chan T, within time.Duration) {
	t.Helper()
	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("rpc:helpers_test - unexpected value %v", v)
		}
	case <-time.After(within):
	}
}

func expectClosed[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("rpc:helpers_test - channel not closed")
		}
	}
}

// progress mirrors the positional [id, current, total] download push.
type progress [3]int64
