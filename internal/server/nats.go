package server

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/pkgservice-client/pkg/commsutil"
	"github.com/morezero/pkgservice-client/pkg/wire"
)

const natsLogPrefix = "server:nats"

// natsPeer pushes to one client inbox.
type natsPeer struct {
	inbox string
	nc    *comms.Conn
}

func (p *natsPeer) ID() string {
	return p.inbox
}

func (p *natsPeer) Push(_ context.Context, method string, params any) error {
	data, err := wire.EncodePush(method, params)
	if err != nil {
		return fmt.Errorf("%s - failed to encode %s push: %w", natsLogPrefix, method, err)
	}
	return p.nc.Publish(p.inbox, data)
}

// handleRequest answers one request on the reply subject, which is the
// caller's inbox. Requests on one subscription are handled in order.
func (s *Server) handleRequest(msg *comms.Msg) {
	if !commsutil.IsClientInbox(msg.Reply) {
		slog.Warn(fmt.Sprintf("%s - dropping request without a client inbox (reply %q)", natsLogPrefix, msg.Reply))
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RequestTimeout)
	defer cancel()

	resp := s.disp.HandleFrame(ctx, &natsPeer{inbox: msg.Reply, nc: s.nc}, msg.Data)
	if resp == nil {
		return
	}
	if err := msg.Respond(resp); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to respond to %s: %v", natsLogPrefix, msg.Reply, err))
	}
}
