package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/pkgservice-client/pkg/commsutil"
)

const natsLogPrefix = "transport:nats"

// NATSOptions configures a NATS-backed session.
type NATSOptions struct {
	URL  string
	Name string
	// RequestSubject receives outbound calls. Defaults to commsutil.SubjectRequests.
	RequestSubject string
	// EventsSubject carries broadcast pushes. Defaults to commsutil.SubjectEvents.
	EventsSubject string
	Backoff       Backoff
	// MaxReconnects < 0 retries forever.
	MaxReconnects int
	FrameBuffer   int
}

// NATSSession publishes calls on the request subject with the reply subject
// set to a private client inbox, and receives frames from that inbox and the
// broadcast events subject.
type NATSSession struct {
	generation

	nc             *comms.Conn
	inbox          string
	requestSubject string
	subs           []*comms.Subscription

	frames chan []byte
	states chan State

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

var _ Session = (*NATSSession)(nil)

// DialNATS connects to the bus and subscribes to the client inbox and the
// events subject.
func DialNATS(ctx context.Context, opts NATSOptions) (*NATSSession, error) {
	if opts.RequestSubject == "" {
		opts.RequestSubject = commsutil.SubjectRequests
	}
	if opts.EventsSubject == "" {
		opts.EventsSubject = commsutil.SubjectEvents
	}
	if opts.FrameBuffer <= 0 {
		opts.FrameBuffer = defaultFrameBuffer
	}
	if opts.Name == "" {
		opts.Name = "pkgservice-client"
	}
	backoff := opts.Backoff.normalized()

	s := &NATSSession{
		inbox:          commsutil.BuildClientInbox(uuid.NewString()),
		requestSubject: opts.RequestSubject,
		frames:         make(chan []byte, opts.FrameBuffer),
		states:         make(chan State, defaultStateBuffer),
		done:           make(chan struct{}),
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s - failed to dial: %w", natsLogPrefix, err)
	}

	nc, err := commsutil.Connect(opts.URL, opts.Name,
		comms.MaxReconnects(opts.MaxReconnects),
		comms.ReconnectBufSize(-1),
		comms.CustomReconnectDelay(func(attempts int) time.Duration {
			return backoff.Delay(attempts - 1)
		}),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			slog.Warn(fmt.Sprintf("%s - disconnected: %v", natsLogPrefix, err))
			s.bump()
			s.emit(StateDisconnected)
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - reconnected to %s", natsLogPrefix, nc.ConnectedUrl()))
			s.bump()
			s.emit(StateReconnected)
		}),
		comms.ClosedHandler(func(_ *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - connection closed", natsLogPrefix))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to dial: %w", natsLogPrefix, err)
	}
	s.nc = nc

	for _, subject := range []string{s.inbox, opts.EventsSubject} {
		sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
			s.deliver(msg.Data)
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", natsLogPrefix, subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	if err := nc.Flush(); err != nil {
		s.Close()
		return nil, fmt.Errorf("%s - failed to flush subscriptions: %w", natsLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - session ready, inbox %s, requests on %s", natsLogPrefix, s.inbox, s.requestSubject))
	return s, nil
}

// Inbox returns the reply subject of this session.
func (s *NATSSession) Inbox() string {
	return s.inbox
}

// Send publishes frame on the request subject.
func (s *NATSSession) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	if !s.nc.IsConnected() {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.nc.PublishMsg(&comms.Msg{Subject: s.requestSubject, Reply: s.inbox, Data: frame})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, comms.ErrReconnectBufExceeded):
		return ErrNotConnected
	case errors.Is(err, comms.ErrConnectionClosed):
		return ErrClosed
	default:
		return fmt.Errorf("%s - failed to publish: %w", natsLogPrefix, err)
	}
}

// Frames returns inbound frames from the inbox and events subjects.
func (s *NATSSession) Frames() <-chan []byte {
	return s.frames
}

// States returns connection state transitions.
func (s *NATSSession) States() <-chan State {
	return s.states
}

// Close unsubscribes and closes the connection.
func (s *NATSSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		for _, sub := range s.subs {
			if err := sub.Unsubscribe(); err != nil && !errors.Is(err, comms.ErrConnectionClosed) {
				slog.Debug(fmt.Sprintf("%s - unsubscribe %s: %v", natsLogPrefix, sub.Subject, err))
			}
		}
		s.nc.Close()
	})
	return nil
}

func (s *NATSSession) deliver(frame []byte) {
	select {
	case s.frames <- frame:
	case <-s.done:
	}
}

func (s *NATSSession) emit(state State) {
	select {
	case s.states <- state:
	case <-s.done:
	}
}
