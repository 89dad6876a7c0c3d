package transport

import (
	"context"
	"sync"
)

// Pipe is an in-process Session whose far end is driven by a PipePeer.
// Tests and embedded services use it in place of a network connection.
type Pipe struct {
	generation

	mu        sync.RWMutex
	connected bool

	outbound chan []byte
	frames   chan []byte
	states   chan State

	done      chan struct{}
	closeOnce sync.Once
}

var _ Session = (*Pipe)(nil)

// PipePeer is the service side of a Pipe.
type PipePeer struct {
	pipe *Pipe
}

// NewPipe returns a connected Pipe and its peer. buffer sizes both
// directions.
func NewPipe(buffer int) (*Pipe, *PipePeer) {
	if buffer <= 0 {
		buffer = defaultFrameBuffer
	}
	p := &Pipe{
		connected: true,
		outbound:  make(chan []byte, buffer),
		frames:    make(chan []byte, buffer),
		states:    make(chan State, defaultStateBuffer),
		done:      make(chan struct{}),
	}
	return p, &PipePeer{pipe: p}
}

// Send hands frame to the peer.
func (p *Pipe) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	if !connected {
		return ErrNotConnected
	}

	buf := append([]byte(nil), frame...)
	select {
	case p.outbound <- buf:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrClosed
	}
}

// Frames returns frames delivered by the peer.
func (p *Pipe) Frames() <-chan []byte {
	return p.frames
}

// States returns transitions triggered by PipePeer.Disconnect and Reconnect.
func (p *Pipe) States() <-chan State {
	return p.states
}

// Close stops the pipe. Pending peer operations return ErrClosed.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	return nil
}

// Recv returns the next frame sent by the session.
func (pp *PipePeer) Recv(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-pp.pipe.outbound:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-pp.pipe.done:
		return nil, ErrClosed
	}
}

// Outbound exposes frames sent by the session for select loops.
func (pp *PipePeer) Outbound() <-chan []byte {
	return pp.pipe.outbound
}

// Deliver pushes frame to the session's inbound stream.
func (pp *PipePeer) Deliver(ctx context.Context, frame []byte) error {
	select {
	case pp.pipe.frames <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-pp.pipe.done:
		return ErrClosed
	}
}

// Disconnect simulates losing the connection. Sends fail with
// ErrNotConnected until Reconnect.
func (pp *PipePeer) Disconnect() {
	pp.setConnected(false, StateDisconnected)
}

// Reconnect restores the connection and reports StateReconnected.
func (pp *PipePeer) Reconnect() {
	pp.setConnected(true, StateReconnected)
}

func (pp *PipePeer) setConnected(connected bool, state State) {
	p := pp.pipe
	p.mu.Lock()
	changed := p.connected != connected
	p.connected = connected
	if changed {
		p.bump()
	}
	p.mu.Unlock()
	if !changed {
		return
	}
	select {
	case p.states <- state:
	case <-p.done:
	}
}
