package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

const memoryTestPrefix = "transport:memory_test"

func TestPipe_SendRecv(t *testing.T) {
	p, peer := NewPipe(4)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := p.Send(ctx, []byte(`{"id":1}`)); err != nil {
		t.Fatalf("%s - Send: %v", memoryTestPrefix, err)
	}
	got, err := peer.Recv(ctx)
	if err != nil {
		t.Fatalf("%s - Recv: %v", memoryTestPrefix, err)
	}
	if string(got) != `{"id":1}` {
		t.Errorf("%s - Recv = %s", memoryTestPrefix, got)
	}

	if err := peer.Deliver(ctx, []byte(`{"id":1,"result":true}`)); err != nil {
		t.Fatalf("%s - Deliver: %v", memoryTestPrefix, err)
	}
	select {
	case frame := <-p.Frames():
		if string(frame) != `{"id":1,"result":true}` {
			t.Errorf("%s - frame = %s", memoryTestPrefix, frame)
		}
	case <-ctx.Done():
		t.Fatalf("%s - no frame delivered", memoryTestPrefix)
	}
}

func TestPipe_SendCopiesFrame(t *testing.T) {
	p, peer := NewPipe(1)
	defer p.Close()

	frame := []byte("abc")
	if err := p.Send(context.Background(), frame); err != nil {
		t.Fatalf("%s - Send: %v", memoryTestPrefix, err)
	}
	frame[0] = 'x'
	got, _ := peer.Recv(context.Background())
	if string(got) != "abc" {
		t.Errorf("%s - Recv = %s, want abc", memoryTestPrefix, got)
	}
}

func TestPipe_DisconnectReconnect(t *testing.T) {
	p, peer := NewPipe(1)
	defer p.Close()

	peer.Disconnect()
	if state := <-p.States(); state != StateDisconnected {
		t.Fatalf("%s - state = %v, want disconnected", memoryTestPrefix, state)
	}
	if err := p.Send(context.Background(), []byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("%s - Send err = %v, want ErrNotConnected", memoryTestPrefix, err)
	}

	peer.Disconnect()
	peer.Reconnect()
	if state := <-p.States(); state != StateReconnected {
		t.Fatalf("%s - state = %v, want reconnected (duplicate disconnect must not emit)", memoryTestPrefix, state)
	}
	if err := p.Send(context.Background(), []byte("x")); err != nil {
		t.Errorf("%s - Send after reconnect: %v", memoryTestPrefix, err)
	}
}

func TestPipe_Close(t *testing.T) {
	p, peer := NewPipe(1)
	p.Close()
	p.Close()

	if err := p.Send(context.Background(), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("%s - Send err = %v, want ErrClosed", memoryTestPrefix, err)
	}
	if _, err := peer.Recv(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("%s - Recv err = %v, want ErrClosed", memoryTestPrefix, err)
	}
}

func TestPipe_SendHonoursContext(t *testing.T) {
	p, _ := NewPipe(1)
	defer p.Close()

	if err := p.Send(context.Background(), []byte("fill")); err != nil {
		t.Fatalf("%s - Send: %v", memoryTestPrefix, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Send(ctx, []byte("blocked")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("%s - Send err = %v, want deadline exceeded", memoryTestPrefix, err)
	}
}

func TestPipe_GenerationCountsTransitions(t *testing.T) {
	p, peer := NewPipe(1)
	defer p.Close()

	if g := p.Generation(); g != 0 {
		t.Fatalf("%s - initial generation = %d, want 0", memoryTestPrefix, g)
	}
	peer.Disconnect()
	peer.Disconnect()
	if g := p.Generation(); g != 1 {
		t.Errorf("%s - generation after disconnect = %d, want 1", memoryTestPrefix, g)
	}
	peer.Reconnect()
	if g := p.Generation(); g != 2 {
		t.Errorf("%s - generation after reconnect = %d, want 2", memoryTestPrefix, g)
	}
}
