// Package transport owns the physical connection to the package service:
// framing, write serialization, and reconnect with capped exponential
// backoff. Each Session delivers whole inbound frames and reports
// connection state changes so the RPC layer can fail or replay work.
package transport

import (
	"context"
	"errors"
	"sync/atomic"
)

var (
	// ErrNotConnected is returned by Send while there is no live connection.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("transport: session closed")
)

// State is a connection state transition reported by a Session.
type State int

const (
	// StateDisconnected is reported when a live connection is lost.
	StateDisconnected State = iota + 1
	// StateReconnected is reported when a lost connection is restored.
	StateReconnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateReconnected:
		return "reconnected"
	default:
		return "unknown"
	}
}

// Session is a single logical connection to the service.
//
// Send is safe for concurrent use; frames are written one at a time.
// Frames and States are never closed: consumers stop reading when they stop
// using the session.
//
// Generation increases on every transition, before the transition is
// reported on States. A frame sent after Generation returned n went out on
// connection n or a later one.
type Session interface {
	Send(ctx context.Context, frame []byte) error
	Frames() <-chan []byte
	States() <-chan State
	Generation() uint64
	Close() error
}

// generation counts connection transitions for a Session.
type generation struct {
	n atomic.Uint64
}

// Generation returns the number of transitions seen so far.
func (g *generation) Generation() uint64 {
	return g.n.Load()
}

func (g *generation) bump() {
	g.n.Add(1)
}

const (
	defaultFrameBuffer = 256
	defaultStateBuffer = 16
)
