package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/morezero/pkgservice-client/pkg/events"
	"github.com/morezero/pkgservice-client/pkg/wire"
)

const wsLogPrefix = "server:ws"

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsPeer is one websocket client. Writes are serialized.
type wsPeer struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *wsPeer) ID() string {
	return p.id
}

func (p *wsPeer) Push(ctx context.Context, method string, params any) error {
	data, err := wire.EncodePush(method, params)
	if err != nil {
		return fmt.Errorf("%s - failed to encode %s push: %w", wsLogPrefix, method, err)
	}
	return p.write(ctx, data)
}

func (p *wsPeer) write(ctx context.Context, data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	deadline := time.Now().Add(wsWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	p.conn.SetWriteDeadline(deadline)
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// wsHub tracks websocket peers and broadcasts lifecycle events to them.
type wsHub struct {
	mu    sync.Mutex
	peers map[string]*wsPeer
}

var _ events.LifecyclePublisher = (*wsHub)(nil)

func newWSHub() *wsHub {
	return &wsHub{peers: make(map[string]*wsPeer)}
}

func (h *wsHub) add(p *wsPeer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p.id] = p
}

func (h *wsHub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, id)
}

func (h *wsHub) snapshot() []*wsPeer {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers := make([]*wsPeer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	return peers
}

// PublishLifecycle writes the event to every connected websocket peer.
func (h *wsHub) PublishLifecycle(ctx context.Context, event *events.LifecycleEvent) error {
	data, err := wire.EncodePush(event.Method, event.Params())
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", wsLogPrefix, err)
	}
	var errs []error
	for _, p := range h.snapshot() {
		if err := p.write(ctx, data); err != nil {
			errs = append(errs, fmt.Errorf("%s - %s: %w", wsLogPrefix, p.id, err))
		}
	}
	return errors.Join(errs...)
}

func (h *wsHub) closeAll() {
	for _, p := range h.snapshot() {
		p.writeMu.Lock()
		p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "service stopping"),
			time.Now().Add(time.Second))
		p.writeMu.Unlock()
		p.conn.Close()
	}
}

// handleWS upgrades the connection and serves requests until it closes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - upgrade failed: %v", wsLogPrefix, err))
		return
	}
	peer := &wsPeer{id: "ws-" + uuid.NewString(), conn: conn}
	s.hub.add(peer)
	slog.Info(fmt.Sprintf("%s - %s connected from %s", wsLogPrefix, peer.id, r.RemoteAddr))

	defer func() {
		s.hub.remove(peer.id)
		s.sim.DropPeer(peer.id)
		conn.Close()
		slog.Info(fmt.Sprintf("%s - %s disconnected", wsLogPrefix, peer.id))
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug(fmt.Sprintf("%s - %s read: %v", wsLogPrefix, peer.id, err))
			}
			return
		}

		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RequestTimeout)
		resp := s.disp.HandleFrame(ctx, peer, frame)
		if resp != nil {
			err = peer.write(ctx, resp)
		}
		cancel()
		if err != nil {
			slog.Debug(fmt.Sprintf("%s - %s write: %v", wsLogPrefix, peer.id, err))
			return
		}
	}
}
