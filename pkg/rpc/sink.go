package rpc

import "sync"

// sink is a closable channel that is safe to send on concurrently with
// close. Sends block for backpressure until the reader takes the value or
// the sink is closed; the channel is closed only after in-flight sends end.
type sink[T any] struct {
	ch   chan T
	done chan struct{}

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func newSink[T any](buffer int) *sink[T] {
	if buffer < 0 {
		buffer = 0
	}
	return &sink[T]{ch: make(chan T, buffer), done: make(chan struct{})}
}

// send reports whether v was handed to the channel.
func (s *sink[T]) send(v T) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	select {
	case s.ch <- v:
		return true
	case <-s.done:
		return false
	}
}

// close reports whether this call closed the sink.
func (s *sink[T]) close() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.inflight.Wait()
	close(s.ch)
	return true
}

func (s *sink[T]) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
