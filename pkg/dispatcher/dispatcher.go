// Package dispatcher routes package-service requests to the simulator.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/pkgservice-client/pkg/pkgservice"
	"github.com/morezero/pkgservice-client/pkg/simulator"
	"github.com/morezero/pkgservice-client/pkg/wire"
)

const logPrefix = "dispatcher:dispatch"

// Dispatcher routes requests to simulator methods.
type Dispatcher struct {
	service *simulator.Service
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(svc *simulator.Service) *Dispatcher {
	return &Dispatcher{service: svc}
}

// HandleFrame decodes one request frame, dispatches it and encodes the
// reply. It returns nil when the frame is not a request, since there is no
// id to answer.
func (d *Dispatcher) HandleFrame(ctx context.Context, peer simulator.Peer, frame []byte) []byte {
	req, err := wire.DecodeRequest(frame)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping frame from %s: %v", logPrefix, peer.ID(), err))
		return nil
	}

	result, detail := d.Dispatch(ctx, peer, req)
	data, err := wire.EncodeResponse(req.ID, result, detail)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode %s response: %v", logPrefix, req.Method, err))
		data, _ = wire.EncodeResponse(req.ID, nil, &wire.ErrorDetail{Code: simulator.CodeInternal, Message: "failed to encode result"})
	}
	return data
}

// Dispatch routes a request to the appropriate simulator method.
func (d *Dispatcher) Dispatch(ctx context.Context, peer simulator.Peer, req wire.IncomingRequest) (any, *wire.ErrorDetail) {
	slog.Debug(fmt.Sprintf("%s - method=%s id=%d peer=%s", logPrefix, req.Method, req.ID, peer.ID()))

	switch req.Method {
	case pkgservice.MethodStatus:
		return d.handleInstallCall(ctx, req, d.service.Status)
	case pkgservice.MethodInstall:
		return d.handleInstallCall(ctx, req, d.service.Install)
	case pkgservice.MethodUninstall:
		return d.handleInstallCall(ctx, req, d.service.Uninstall)
	case pkgservice.MethodRepository:
		return d.handleRepository(ctx, req)
	case pkgservice.MethodRepositoryStatuses:
		return d.handleRepositoryStatuses(ctx, req)
	case pkgservice.MethodDownloadSubscribe:
		return d.handleDownloadSubscribe(peer, req)
	case pkgservice.MethodDownloadUnsubscribe:
		return d.handleDownloadUnsubscribe(peer, req)
	case pkgservice.MethodHealth:
		return d.service.Health(ctx), nil
	default:
		return nil, &wire.ErrorDetail{
			Code:    simulator.CodeMethodNotFound,
			Message: fmt.Sprintf("Unknown method: %s", req.Method),
		}
	}
}

type installFunc func(ctx context.Context, repoURL, packageID string, target pkgservice.Target) (pkgservice.InstallStatus, error)

func (d *Dispatcher) handleInstallCall(ctx context.Context, req wire.IncomingRequest, call installFunc) (any, *wire.ErrorDetail) {
	if detail := expectParams(req, 3); detail != nil {
		return nil, detail
	}
	repoURL, detail := stringParam(req, 0, "repository")
	if detail != nil {
		return nil, detail
	}
	packageID, detail := stringParam(req, 1, "package")
	if detail != nil {
		return nil, detail
	}
	target, detail := targetParam(req, 2)
	if detail != nil {
		return nil, detail
	}

	status, err := call(ctx, repoURL, packageID, target)
	if err != nil {
		return nil, errorDetail(err)
	}
	return status, nil
}

func (d *Dispatcher) handleRepository(ctx context.Context, req wire.IncomingRequest) (any, *wire.ErrorDetail) {
	if detail := expectParams(req, 1); detail != nil {
		return nil, detail
	}
	repoURL, detail := stringParam(req, 0, "repository")
	if detail != nil {
		return nil, detail
	}

	repo, err := d.service.Repository(ctx, repoURL)
	if err != nil {
		return nil, errorDetail(err)
	}
	return repo, nil
}

func (d *Dispatcher) handleRepositoryStatuses(ctx context.Context, req wire.IncomingRequest) (any, *wire.ErrorDetail) {
	if detail := expectParams(req, 1); detail != nil {
		return nil, detail
	}
	repoURL, detail := stringParam(req, 0, "repository")
	if detail != nil {
		return nil, detail
	}

	states, err := d.service.RepositoryStatuses(ctx, repoURL)
	if err != nil {
		return nil, errorDetail(err)
	}
	return states, nil
}

func (d *Dispatcher) handleDownloadSubscribe(peer simulator.Peer, req wire.IncomingRequest) (any, *wire.ErrorDetail) {
	if detail := expectParams(req, 1); detail != nil {
		return nil, detail
	}
	packageID, detail := stringParam(req, 0, "package")
	if detail != nil {
		return nil, detail
	}

	ids, err := d.service.DownloadSubscribe(peer, packageID)
	if err != nil {
		return nil, errorDetail(err)
	}
	return ids, nil
}

func (d *Dispatcher) handleDownloadUnsubscribe(peer simulator.Peer, req wire.IncomingRequest) (any, *wire.ErrorDetail) {
	if detail := expectParams(req, 1); detail != nil {
		return nil, detail
	}
	packageID, detail := stringParam(req, 0, "package")
	if detail != nil {
		return nil, detail
	}

	d.service.DownloadUnsubscribe(peer, packageID)
	return nil, nil
}

// --- helpers ---

func errorDetail(err error) *wire.ErrorDetail {
	var svcErr *simulator.ServiceError
	if errors.As(err, &svcErr) {
		return &wire.ErrorDetail{Code: svcErr.Code, Message: svcErr.Message}
	}
	return &wire.ErrorDetail{Code: simulator.CodeInternal, Message: err.Error()}
}
