package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/morezero/pkgservice-client/pkg/transport"
	"github.com/morezero/pkgservice-client/pkg/wire"
)

const pipeLogPrefix = "dispatcher:pipe"

// pipePeer pushes to the client end of an in-process pipe.
type pipePeer struct {
	id   string
	peer *transport.PipePeer
}

func (p *pipePeer) ID() string {
	return p.id
}

func (p *pipePeer) Push(ctx context.Context, method string, params any) error {
	data, err := wire.EncodePush(method, params)
	if err != nil {
		return fmt.Errorf("%s - failed to encode %s push: %w", pipeLogPrefix, method, err)
	}
	return p.peer.Deliver(ctx, data)
}

// ServePipe answers requests arriving on the service end of an in-process
// pipe until ctx is done. Requests are handled in arrival order.
func ServePipe(ctx context.Context, d *Dispatcher, peer *transport.PipePeer) {
	p := &pipePeer{id: "pipe-" + uuid.NewString(), peer: peer}
	defer d.service.DropPeer(p.id)

	slog.Debug(fmt.Sprintf("%s - serving %s", pipeLogPrefix, p.id))
	for {
		frame, err := peer.Recv(ctx)
		if err != nil {
			return
		}
		resp := d.HandleFrame(ctx, p, frame)
		if resp == nil {
			continue
		}
		if err := peer.Deliver(ctx, resp); err != nil {
			slog.Debug(fmt.Sprintf("%s - %s closed: %v", pipeLogPrefix, p.id, err))
			return
		}
	}
}
