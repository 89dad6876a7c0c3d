package rpc

import (
	"errors"
	"fmt"

	"github.com/morezero/pkgservice-client/pkg/transport"
)

var (
	// ErrNotConnected is returned when a call is issued with no live connection.
	ErrNotConnected = transport.ErrNotConnected
	// ErrConnectionReset fails calls that were in flight when the connection dropped.
	ErrConnectionReset = errors.New("rpc: connection reset")
	// ErrTimeout fails calls whose deadline elapsed with no response.
	ErrTimeout = errors.New("rpc: timeout")
	// ErrResponseTypeMismatch is returned when a result cannot be decoded into the expected type.
	ErrResponseTypeMismatch = errors.New("rpc: response type mismatch")
	// ErrClientClosed fails calls and subscriptions outstanding when the client is closed.
	ErrClientClosed = errors.New("rpc: client closed")
	// ErrCanceled is returned when the caller's context ends first. It wraps ctx.Err().
	ErrCanceled = errors.New("rpc: call canceled")
)

// RemoteError is an explicit error payload returned by the service.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code == "" || e.Code == e.Message {
		return fmt.Sprintf("rpc: remote error: %s", e.Message)
	}
	return fmt.Sprintf("rpc: remote error %s: %s", e.Code, e.Message)
}
