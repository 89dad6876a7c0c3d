package wire

import (
	"encoding/json"
	"errors"
	"testing"
)

const codecTestPrefix = "wire:codec_test"

func TestEncode(t *testing.T) {
	tests := []struct {
		name   string
		method string
		params []any
		id     uint64
		want   string
	}{
		{
			name:   "positional params",
			method: "status",
			params: []any{"https://repo.example/main", "P1", "system"},
			id:     7,
			want:   `{"id":7,"method":"status","params":["https://repo.example/main","P1","system"]}`,
		},
		{
			name:   "nil params become empty array",
			method: "repository_statuses",
			id:     1,
			want:   `{"id":1,"method":"repository_statuses","params":[]}`,
		},
		{
			name:   "numeric params",
			method: "download_unsubscribe",
			params: []any{42},
			id:     99,
			want:   `{"id":99,"method":"download_unsubscribe","params":[42]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.method, tt.params, tt.id)
			if err != nil {
				t.Fatalf("%s - unexpected error: %v", codecTestPrefix, err)
			}
			if string(data) != tt.want {
				t.Errorf("%s - Encode() = %s, want %s", codecTestPrefix, data, tt.want)
			}
		})
	}
}

func TestEncode_Unencodable(t *testing.T) {
	if _, err := Encode("status", []any{make(chan int)}, 1); err == nil {
		t.Fatalf("%s - expected error for channel param", codecTestPrefix)
	}
}

func TestDecode_Response(t *testing.T) {
	env, err := Decode([]byte(`{"id":12,"result":"notInstalled"}`), nil)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", codecTestPrefix, err)
	}
	if env.Kind != KindResponse {
		t.Fatalf("%s - Kind = %v, want response", codecTestPrefix, env.Kind)
	}
	if env.ID != 12 || !env.HasID {
		t.Errorf("%s - ID = %d (HasID=%v), want 12", codecTestPrefix, env.ID, env.HasID)
	}
	if string(env.Payload) != `"notInstalled"` {
		t.Errorf("%s - Payload = %s", codecTestPrefix, env.Payload)
	}
}

func TestDecode_NullResult(t *testing.T) {
	env, err := Decode([]byte(`{"id":3,"result":null}`), nil)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", codecTestPrefix, err)
	}
	if env.Kind != KindResponse {
		t.Errorf("%s - Kind = %v, want response", codecTestPrefix, env.Kind)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		wantID    bool
		wantCode  string
		wantMsg   string
		wantIDVal uint64
	}{
		{
			name:      "object error with id",
			frame:     `{"id":5,"error":{"code":"NOT_FOUND","message":"no such package"}}`,
			wantID:    true,
			wantIDVal: 5,
			wantCode:  "NOT_FOUND",
			wantMsg:   "no such package",
		},
		{
			name:      "string error with id",
			frame:     `{"id":6,"error":"permission denied"}`,
			wantID:    true,
			wantIDVal: 6,
			wantMsg:   "permission denied",
		},
		{
			name:    "error without id",
			frame:   `{"error":"service overloaded"}`,
			wantMsg: "service overloaded",
		},
		{
			name:      "code only",
			frame:     `{"id":8,"error":{"code":"INTERNAL_ERROR"}}`,
			wantID:    true,
			wantIDVal: 8,
			wantCode:  "INTERNAL_ERROR",
			wantMsg:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Decode([]byte(tt.frame), nil)
			if err != nil {
				t.Fatalf("%s - unexpected error: %v", codecTestPrefix, err)
			}
			if env.Kind != KindError {
				t.Fatalf("%s - Kind = %v, want error", codecTestPrefix, env.Kind)
			}
			if env.HasID != tt.wantID || env.ID != tt.wantIDVal {
				t.Errorf("%s - id = %d/%v, want %d/%v", codecTestPrefix, env.ID, env.HasID, tt.wantIDVal, tt.wantID)
			}
			if env.Error.Code != tt.wantCode {
				t.Errorf("%s - Code = %q, want %q", codecTestPrefix, env.Error.Code, tt.wantCode)
			}
			if env.Error.Message != tt.wantMsg {
				t.Errorf("%s - Message = %q, want %q", codecTestPrefix, env.Error.Message, tt.wantMsg)
			}
		})
	}
}

func TestDecode_Push(t *testing.T) {
	known := func(m string) bool { return m == "download" }

	env, err := Decode([]byte(`{"method":"download","params":[42,1024,2048]}`), known)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", codecTestPrefix, err)
	}
	if env.Kind != KindPush || env.Method != "download" {
		t.Fatalf("%s - got %v %q, want push download", codecTestPrefix, env.Kind, env.Method)
	}
	var params []int
	if err := json.Unmarshal(env.Payload, &params); err != nil {
		t.Fatalf("%s - params: %v", codecTestPrefix, err)
	}
	if len(params) != 3 || params[0] != 42 {
		t.Errorf("%s - params = %v", codecTestPrefix, params)
	}
}

func TestDecode_PushWithoutParams(t *testing.T) {
	env, err := Decode([]byte(`{"method":"service_stopping"}`), nil)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", codecTestPrefix, err)
	}
	if string(env.Payload) != "null" {
		t.Errorf("%s - Payload = %s, want null", codecTestPrefix, env.Payload)
	}
}

func TestDecode_UnknownMethod(t *testing.T) {
	known := func(m string) bool { return m == "download" }

	env, err := Decode([]byte(`{"method":"telemetry","params":{}}`), known)
	if !errors.Is(err, ErrUnknownMethod) {
		t.Fatalf("%s - err = %v, want ErrUnknownMethod", codecTestPrefix, err)
	}
	if env.Method != "telemetry" {
		t.Errorf("%s - Method = %q, want telemetry", codecTestPrefix, env.Method)
	}
}

func TestDecode_Malformed(t *testing.T) {
	frames := map[string]string{
		"invalid json":         `{"id":`,
		"array":                `[1,2,3]`,
		"empty object":         `{}`,
		"id without result":    `{"id":4}`,
		"result and error":     `{"id":4,"result":1,"error":"boom"}`,
		"bad error shape":      `{"id":4,"error":42}`,
		"negative id":          `{"id":-1,"result":true}`,
		"id and method no res": `{"id":4,"method":"status","params":[]}`,
	}

	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(frame), nil)
			if !errors.Is(err, ErrMalformedEnvelope) {
				t.Errorf("%s - err = %v, want ErrMalformedEnvelope", codecTestPrefix, err)
			}
		})
	}
}

func TestEncodeResponse_RoundTrip(t *testing.T) {
	data, err := EncodeResponse(9, []uint64{42}, nil)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", codecTestPrefix, err)
	}
	env, err := Decode(data, nil)
	if err != nil {
		t.Fatalf("%s - decode: %v", codecTestPrefix, err)
	}
	if env.Kind != KindResponse || env.ID != 9 || string(env.Payload) != "[42]" {
		t.Errorf("%s - got %+v", codecTestPrefix, env)
	}

	data, err = EncodeResponse(10, nil, &ErrorDetail{Code: "NOT_FOUND", Message: "gone"})
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", codecTestPrefix, err)
	}
	env, err = Decode(data, nil)
	if err != nil {
		t.Fatalf("%s - decode: %v", codecTestPrefix, err)
	}
	if env.Kind != KindError || env.Error.Code != "NOT_FOUND" {
		t.Errorf("%s - got %+v", codecTestPrefix, env)
	}

	data, err = EncodeResponse(11, nil, nil)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", codecTestPrefix, err)
	}
	if string(data) != `{"id":11,"result":null}` {
		t.Errorf("%s - void response = %s", codecTestPrefix, data)
	}
}

func TestDecodeRequest(t *testing.T) {
	frame, err := Encode("status", []any{"https://r", "P1", "system"}, 7)
	if err != nil {
		t.Fatalf("%s - encode: %v", codecTestPrefix, err)
	}
	req, err := DecodeRequest(frame)
	if err != nil {
		t.Fatalf("%s - DecodeRequest: %v", codecTestPrefix, err)
	}
	if req.ID != 7 || req.Method != "status" || len(req.Params) != 3 || string(req.Params[1]) != `"P1"` {
		t.Errorf("%s - got %+v", codecTestPrefix, req)
	}

	for _, bad := range []string{`nope`, `{"method":"status"}`, `{"id":1}`, `{"id":1,"method":"x","params":{}}`} {
		if _, err := DecodeRequest([]byte(bad)); !errors.Is(err, ErrMalformedEnvelope) {
			t.Errorf("%s - DecodeRequest(%s) err = %v", codecTestPrefix, bad, err)
		}
	}
}
