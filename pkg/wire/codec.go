package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var nullPayload = json.RawMessage("null")

// Encode serializes a call into its wire envelope.
func Encode(method string, params []any, id uint64) ([]byte, error) {
	if params == nil {
		params = []any{}
	}
	data, err := json.Marshal(Request{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", method, err)
	}
	return data, nil
}

// EncodeResponse serializes a result or error reply for call id.
func EncodeResponse(id uint64, result any, detail *ErrorDetail) ([]byte, error) {
	resp := Response{ID: id, Error: detail}
	if detail == nil {
		if result == nil {
			result = nullPayload
		}
		resp.Result = result
	}
	return json.Marshal(resp)
}

// EncodePush serializes a push notification.
func EncodePush(method string, params any) ([]byte, error) {
	if params == nil {
		params = nullPayload
	}
	return json.Marshal(Push{Method: method, Params: params})
}

// Decode classifies a frame. known reports whether a push method has a
// listener; a nil known accepts every method. When the error is
// ErrUnknownMethod the returned envelope still carries the method name.
func Decode(frame []byte, known func(method string) bool) (Envelope, error) {
	var in inbound
	if err := json.Unmarshal(frame, &in); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	hasResult := len(in.Result) > 0
	hasError := present(in.Error)

	switch {
	case hasError:
		if hasResult {
			return Envelope{}, fmt.Errorf("%w: both result and error set", ErrMalformedEnvelope)
		}
		detail, err := decodeError(in.Error)
		if err != nil {
			return Envelope{}, err
		}
		env := Envelope{Kind: KindError, Error: detail}
		if in.ID != nil {
			env.ID, env.HasID = *in.ID, true
		}
		return env, nil

	case in.ID != nil:
		if !hasResult || in.Method != "" {
			return Envelope{}, fmt.Errorf("%w: id %d without result", ErrMalformedEnvelope, *in.ID)
		}
		return Envelope{Kind: KindResponse, ID: *in.ID, HasID: true, Payload: in.Result}, nil

	case in.Method != "":
		params := in.Params
		if len(params) == 0 {
			params = nullPayload
		}
		env := Envelope{Kind: KindPush, Method: in.Method, Payload: params}
		if known != nil && !known(in.Method) {
			return env, fmt.Errorf("%w: %q", ErrUnknownMethod, in.Method)
		}
		return env, nil

	default:
		return Envelope{}, fmt.Errorf("%w: no id or method", ErrMalformedEnvelope)
	}
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, nullPayload)
}

// decodeError accepts either a bare message string or an ErrorDetail object.
func decodeError(raw json.RawMessage) (*ErrorDetail, error) {
	if raw[0] == '"' {
		var msg string
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("%w: error: %v", ErrMalformedEnvelope, err)
		}
		return &ErrorDetail{Message: msg}, nil
	}
	var detail ErrorDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil, fmt.Errorf("%w: error: %v", ErrMalformedEnvelope, err)
	}
	if detail.Message == "" {
		detail.Message = detail.Code
	}
	return &detail, nil
}

// DecodeRequest parses a call envelope on the service side.
func DecodeRequest(frame []byte) (IncomingRequest, error) {
	var in struct {
		ID     *uint64           `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(frame, &in); err != nil {
		return IncomingRequest{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if in.ID == nil || in.Method == "" {
		return IncomingRequest{}, fmt.Errorf("%w: request needs id and method", ErrMalformedEnvelope)
	}
	return IncomingRequest{ID: *in.ID, Method: in.Method, Params: in.Params}, nil
}
