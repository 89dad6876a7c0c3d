package dispatcher

import (
	"encoding/json"
	"fmt"

	"github.com/morezero/pkgservice-client/pkg/pkgservice"
	"github.com/morezero/pkgservice-client/pkg/simulator"
	"github.com/morezero/pkgservice-client/pkg/wire"
)

func invalid(format string, args ...any) *wire.ErrorDetail {
	return &wire.ErrorDetail{Code: simulator.CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func expectParams(req wire.IncomingRequest, n int) *wire.ErrorDetail {
	if len(req.Params) != n {
		return invalid("%s expects %d params, got %d", req.Method, n, len(req.Params))
	}
	return nil
}

func stringParam(req wire.IncomingRequest, i int, name string) (string, *wire.ErrorDetail) {
	var s string
	if err := json.Unmarshal(req.Params[i], &s); err != nil || s == "" {
		return "", invalid("Failed to parse %s %s param", req.Method, name)
	}
	return s, nil
}

func targetParam(req wire.IncomingRequest, i int) (pkgservice.Target, *wire.ErrorDetail) {
	var t pkgservice.Target
	if err := json.Unmarshal(req.Params[i], &t); err != nil {
		return "", invalid("Failed to parse %s target param: %v", req.Method, err)
	}
	return t, nil
}
