// Package wire encodes outbound calls and classifies inbound frames of the
// package-service JSON-RPC protocol.
package wire

import (
	"encoding/json"
	"errors"
)

var (
	// ErrMalformedEnvelope is returned when a frame is not a response, error or push.
	ErrMalformedEnvelope = errors.New("wire: malformed envelope")
	// ErrUnknownMethod is returned for a push whose method nobody listens for.
	ErrUnknownMethod = errors.New("wire: unknown push method")
)

// Kind tags the variant held by an Envelope.
type Kind int

const (
	KindResponse Kind = iota + 1
	KindError
	KindPush
)

func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindError:
		return "error"
	case KindPush:
		return "push"
	default:
		return "unknown"
	}
}

// Request is the outbound call envelope.
type Request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// ErrorDetail is the error payload returned by the service.
type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Response is the outbound shape of a result or error reply. Only the
// reference service writes these.
type Response struct {
	ID     uint64       `json:"id"`
	Result any          `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// Push is the outbound shape of a server-initiated notification.
type Push struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

// Envelope is a decoded inbound frame.
//
// For KindResponse, Payload holds the raw result. For KindPush, Method and
// Payload hold the notification method and raw params. For KindError, Error
// is set and HasID reports whether the error is attributable to a call.
type Envelope struct {
	Kind    Kind
	ID      uint64
	HasID   bool
	Method  string
	Payload json.RawMessage
	Error   *ErrorDetail
}

// inbound is the union of every field an inbound frame may carry.
type inbound struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// IncomingRequest is a call as seen by the service, with positional params
// left raw for the handler to decode.
type IncomingRequest struct {
	ID     uint64
	Method string
	Params []json.RawMessage
}
