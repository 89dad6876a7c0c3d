package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsLogPrefix = "transport:ws"

// WSOptions configures a websocket-backed session.
type WSOptions struct {
	URL    string
	Header http.Header
	// HandshakeTimeout bounds each dial. Defaults to 10s.
	HandshakeTimeout time.Duration
	Backoff          Backoff
	// MaxReconnects < 0 retries forever.
	MaxReconnects int
	FrameBuffer   int
}

// WSSession carries one text message per frame over a websocket and redials
// with backoff when the connection drops.
type WSSession struct {
	generation

	opts   WSOptions
	dialer websocket.Dialer

	mu   sync.RWMutex
	conn *websocket.Conn

	frames chan []byte
	states chan State

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ Session = (*WSSession)(nil)

// DialWS opens the websocket and starts the read and redial loop.
func DialWS(ctx context.Context, opts WSOptions) (*WSSession, error) {
	if opts.FrameBuffer <= 0 {
		opts.FrameBuffer = defaultFrameBuffer
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	opts.Backoff = opts.Backoff.normalized()

	s := &WSSession{
		opts:   opts,
		dialer: websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		frames: make(chan []byte, opts.FrameBuffer),
		states: make(chan State, defaultStateBuffer),
		done:   make(chan struct{}),
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to dial %s: %w", wsLogPrefix, opts.URL, err)
	}
	s.conn = conn

	s.wg.Add(1)
	go s.run(conn)

	slog.Info(fmt.Sprintf("%s - connected to %s", wsLogPrefix, opts.URL))
	return s, nil
}

func (s *WSSession) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := s.dialer.DialContext(ctx, s.opts.URL, s.opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// run reads until the connection fails, then redials. It exits on Close or
// when reconnect attempts are exhausted.
func (s *WSSession) run(conn *websocket.Conn) {
	defer s.wg.Done()

	for {
		err := s.readLoop(conn)
		if s.closed() {
			return
		}
		slog.Warn(fmt.Sprintf("%s - disconnected: %v", wsLogPrefix, err))
		s.mu.Lock()
		s.conn = nil
		s.bump()
		s.mu.Unlock()
		conn.Close()
		s.emit(StateDisconnected)

		conn = s.redial()
		if conn == nil {
			return
		}
		s.mu.Lock()
		if s.closed() {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		s.bump()
		s.mu.Unlock()
		slog.Info(fmt.Sprintf("%s - reconnected to %s", wsLogPrefix, s.opts.URL))
		s.emit(StateReconnected)
	}
}

func (s *WSSession) readLoop(conn *websocket.Conn) error {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		select {
		case s.frames <- data:
		case <-s.done:
			return ErrClosed
		}
	}
}

func (s *WSSession) redial() *websocket.Conn {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for attempt := 0; s.opts.MaxReconnects < 0 || attempt < s.opts.MaxReconnects; attempt++ {
		timer := time.NewTimer(s.opts.Backoff.Delay(attempt))
		select {
		case <-s.done:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		conn, err := s.dial(ctx)
		if err == nil {
			return conn
		}
		if s.closed() {
			return nil
		}
		slog.Debug(fmt.Sprintf("%s - reconnect attempt %d failed: %v", wsLogPrefix, attempt+1, err))
	}

	slog.Error(fmt.Sprintf("%s - giving up on %s after %d reconnect attempts", wsLogPrefix, s.opts.URL, s.opts.MaxReconnects))
	return nil
}

// Send writes frame as a single text message.
func (s *WSSession) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed() {
		return ErrClosed
	}
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// Frames returns inbound messages.
func (s *WSSession) Frames() <-chan []byte {
	return s.frames
}

// States returns connection state transitions.
func (s *WSSession) States() <-chan State {
	return s.states
}

// Close sends a close message, tears down the connection and waits for the
// read loop to exit.
func (s *WSSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.mu.Unlock()
		if conn != nil {
			s.writeMu.Lock()
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			s.writeMu.Unlock()
			conn.Close()
		}
		s.wg.Wait()
	})
	return nil
}

func (s *WSSession) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *WSSession) emit(state State) {
	select {
	case s.states <- state:
	case <-s.done:
	}
}
