package rpc

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/morezero/pkgservice-client/pkg/wire"
)

const clientTestPrefix = "rpc:client_test"

func TestCall_Success(t *testing.T) {
	c, svc := newTestClient(t)
	svc.handle("status", svc.reply("notInstalled"))

	got, err := Call(context.Background(), c, NewRequest[string]("status", "https://repo.example/main", "P1", "system"))
	if err != nil {
		t.Fatalf("%s - Call: %v", clientTestPrefix, err)
	}
	if got != "notInstalled" {
		t.Errorf("%s - got %q, want notInstalled", clientTestPrefix, got)
	}

	req := svc.expectRequest("status")
	if len(req.Params) != 3 || req.Params[1] != "P1" {
		t.Errorf("%s - params = %v", clientTestPrefix, req.Params)
	}
}

func TestCall_RemoteError(t *testing.T) {
	c, svc := newTestClient(t)
	svc.handle("install", func(wire.Request) (any, *wire.ErrorDetail, bool) {
		return nil, &wire.ErrorDetail{Code: "NOT_FOUND", Message: "no such package"}, true
	})

	_, err := Call(context.Background(), c, NewRequest[string]("install", "https://repo.example/main", "missing", "system"))
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("%s - err = %v, want RemoteError", clientTestPrefix, err)
	}
	if remote.Code != "NOT_FOUND" || remote.Message != "no such package" {
		t.Errorf("%s - remote = %+v", clientTestPrefix, remote)
	}
}

func TestCall_StringRemoteError(t *testing.T) {
	c, svc := newTestClient(t)
	go func() {
		req := svc.expectRequest("uninstall")
		svc.deliver(`{"id":` + strconv.FormatUint(req.ID, 10) + `,"error":"permission denied"}`)
	}()

	_, err := Call(context.Background(), c, NewRequest[string]("uninstall", "u", "P1", "user"))
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Message != "permission denied" {
		t.Fatalf("%s - err = %v, want permission denied", clientTestPrefix, err)
	}
}

func TestCall_TimeoutWithinDeadline(t *testing.T) {
	c, _ := newTestClient(t)

	start := time.Now()
	_, err := Call(context.Background(), c, NewRequest[string]("status", "u", "P1", "system").WithTimeout(2*time.Second))
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("%s - err = %v, want ErrTimeout", clientTestPrefix, err)
	}
	if elapsed < 1900*time.Millisecond || elapsed > 3*time.Second {
		t.Errorf("%s - resolved after %v, want about 2s", clientTestPrefix, elapsed)
	}
	if n := c.calls.count(); n != 0 {
		t.Errorf("%s - %d calls still pending", clientTestPrefix, n)
	}
}

func TestCall_DefaultTimeoutOption(t *testing.T) {
	c, _ := newTestClient(t, WithDefaultTimeout(50*time.Millisecond))

	_, err := Call(context.Background(), c, NewRequest[string]("status"))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("%s - err = %v, want ErrTimeout", clientTestPrefix, err)
	}
}

func TestCall_ResponseTypeMismatch(t *testing.T) {
	c, svc := newTestClient(t)
	svc.handle("repository_statuses", svc.reply("not a map"))

	_, err := Call(context.Background(), c, NewRequest[map[string]string]("repository_statuses", "u"))
	if !errors.Is(err, ErrResponseTypeMismatch) {
		t.Fatalf("%s - err = %v, want ErrResponseTypeMismatch", clientTestPrefix, err)
	}
}

func TestCall_CancelDiscardsLateResponse(t *testing.T) {
	c, svc := newTestClient(t)
	svc.handle("repository", svc.reply(map[string]string{"name": "main"}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := Call(ctx, c, NewRequest[string]("status", "u", "P1", "system"))
		errCh <- err
	}()

	req := svc.expectRequest("status")
	cancel()
	err := receive(t, errCh)
	if !errors.Is(err, ErrCanceled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("%s - err = %v, want ErrCanceled wrapping context.Canceled", clientTestPrefix, err)
	}

	svc.deliver(`{"id":` + strconv.FormatUint(req.ID, 10) + `,"result":"upToDate"}`)

	got, err := Call(context.Background(), c, NewRequest[map[string]string]("repository", "u"))
	if err != nil {
		t.Fatalf("%s - follow-up call: %v", clientTestPrefix, err)
	}
	if got["name"] != "main" {
		t.Errorf("%s - follow-up result = %v", clientTestPrefix, got)
	}
	if n := c.calls.count(); n != 0 {
		t.Errorf("%s - %d calls still pending", clientTestPrefix, n)
	}
}

func TestCall_NotConnected(t *testing.T) {
	c, svc := newTestClient(t)
	svc.peer.Disconnect()

	_, err := Call(context.Background(), c, NewRequest[string]("status"))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("%s - err = %v, want ErrNotConnected", clientTestPrefix, err)
	}
	if n := c.calls.count(); n != 0 {
		t.Errorf("%s - %d calls still pending", clientTestPrefix, n)
	}
}

func TestDisconnect_FailsPendingCalls(t *testing.T) {
	c, svc := newTestClient(t)

	const n = 5
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := Call(context.Background(), c, NewRequest[string]("install", "u", "P1", "system"))
			errCh <- err
		}()
	}
	for i := 0; i < n; i++ {
		svc.expectRequest("install")
	}

	svc.peer.Disconnect()
	for i := 0; i < n; i++ {
		if err := receive(t, errCh); !errors.Is(err, ErrConnectionReset) {
			t.Errorf("%s - err = %v, want ErrConnectionReset", clientTestPrefix, err)
		}
	}
}

func TestReconnect_KeepsCallsSentOnRestoredConnection(t *testing.T) {
	c, svc := newTestClient(t, WithSubscriptionBuffer(0))
	svc.handle("download_subscribe", svc.reply([]uint64{1}))
	svc.handle("status", svc.reply("upToDate"))

	sub, err := Subscribe(context.Background(), c, NewSubscription[[]uint64, progress]("download_subscribe", "download_unsubscribe", "download", "P1"))
	if err != nil {
		t.Fatalf("%s - Subscribe: %v", clientTestPrefix, err)
	}

	// Nobody reads Events yet, so the read loop stays busy on this push and
	// sees the state changes only after the next call is on the wire.
	svc.push("download", []int64{1, 1, 2})
	eventually(t, "push taken by the read loop", func() bool { return len(c.session.Frames()) == 0 })

	svc.peer.Disconnect()
	svc.peer.Reconnect()

	type outcome struct {
		status string
		err    error
	}
	results := make(chan outcome, 1)
	go func() {
		status, err := Call(context.Background(), c, NewRequest[string]("status"))
		results <- outcome{status, err}
	}()
	svc.expectRequest("status")

	if got := receive(t, sub.Events()); got != (progress{1, 1, 2}) {
		t.Errorf("%s - event = %v", clientTestPrefix, got)
	}
	res := receive(t, results)
	if res.err != nil || res.status != "upToDate" {
		t.Fatalf("%s - call on restored connection = %q, %v; want upToDate", clientTestPrefix, res.status, res.err)
	}
}

func TestWithDefaultTimeout_IgnoresNonPositive(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		c, _ := newTestClient(t, WithDefaultTimeout(d))
		if c.opts.timeout != DefaultTimeout {
			t.Errorf("%s - WithDefaultTimeout(%v) set %v, want %v", clientTestPrefix, d, c.opts.timeout, DefaultTimeout)
		}
	}
}

func TestUniqueCorrelationIDs(t *testing.T) {
	c, svc := newTestClient(t)
	svc.handle("status", func(req wire.Request) (any, *wire.ErrorDetail, bool) {
		return req.ID, nil, true
	})

	const n = 200
	var wg sync.WaitGroup
	ids := make(chan uint64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := Call(context.Background(), c, NewRequest[uint64]("status"))
			if err != nil {
				t.Errorf("%s - Call: %v", clientTestPrefix, err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("%s - id %d assigned twice", clientTestPrefix, id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("%s - got %d results, want %d", clientTestPrefix, len(seen), n)
	}
}

func TestReadLoop_SurvivesBadFrames(t *testing.T) {
	c, svc := newTestClient(t)
	svc.handle("status", svc.reply("upToDate"))

	svc.deliver(`not json`)
	svc.deliver(`{"id":1,"result":1,"error":"both"}`)
	svc.deliver(`{"method":"telemetry","params":{}}`)
	svc.deliver(`{"error":"unattributed"}`)
	svc.deliver(`{"id":999999999,"result":"orphan"}`)

	got, err := Call(context.Background(), c, NewRequest[string]("status"))
	if err != nil || got != "upToDate" {
		t.Fatalf("%s - got %q, %v after bad frames", clientTestPrefix, got, err)
	}
}

func TestClose_FailsEverything(t *testing.T) {
	c, svc := newTestClient(t)
	svc.handle("download_subscribe", svc.reply([]uint64{1}))

	sub, err := Subscribe(context.Background(), c, NewSubscription[[]uint64, progress]("download_subscribe", "download_unsubscribe", "download", "P1"))
	if err != nil {
		t.Fatalf("%s - Subscribe: %v", clientTestPrefix, err)
	}
	obs := c.ObserveLifecycle()

	errCh := make(chan error, 1)
	go func() {
		_, err := Call(context.Background(), c, NewRequest[string]("install"))
		errCh <- err
	}()
	svc.expectRequest("install")

	if err := c.Close(); err != nil {
		t.Fatalf("%s - Close: %v", clientTestPrefix, err)
	}
	if err := receive(t, errCh); !errors.Is(err, ErrClientClosed) {
		t.Errorf("%s - pending call err = %v, want ErrClientClosed", clientTestPrefix, err)
	}
	expectClosed(t, sub.Events())
	if !errors.Is(sub.Err(), ErrClientClosed) {
		t.Errorf("%s - sub.Err() = %v, want ErrClientClosed", clientTestPrefix, sub.Err())
	}
	expectClosed(t, obs.Events())

	if _, err := Call(context.Background(), c, NewRequest[string]("status")); !errors.Is(err, ErrClientClosed) {
		t.Errorf("%s - call after close err = %v, want ErrClientClosed", clientTestPrefix, err)
	}
	sub.Unsubscribe(context.Background())
}
