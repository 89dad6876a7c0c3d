package transport

import (
	"context"
	"fmt"
)

const dialLogPrefix = "transport:dial"

// Kinds accepted by Dial.
const (
	KindNATS      = "nats"
	KindWebSocket = "ws"
)

// Options selects and configures a session.
type Options struct {
	Kind string
	NATS NATSOptions
	WS   WSOptions
}

// Dial opens the session named by opts.Kind.
func Dial(ctx context.Context, opts Options) (Session, error) {
	switch opts.Kind {
	case KindNATS, "":
		return DialNATS(ctx, opts.NATS)
	case KindWebSocket:
		return DialWS(ctx, opts.WS)
	default:
		return nil, fmt.Errorf("%s - unknown transport %q", dialLogPrefix, opts.Kind)
	}
}
