package rpc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const callsLogPrefix = "rpc:calls"

// nextID is shared by every client in the process so ids stay unique across
// connections.
var nextID atomic.Uint64

type callResult struct {
	value any
	err   error
}

type pendingCall struct {
	id     uint64
	method string
	decode decodeFunc
	done   chan callResult
	timer  *time.Timer
	// gen is the session generation when the call was registered.
	gen    uint64
}

// callRegistry owns every outstanding call from register until exactly one
// of resolve, reject, expire, cancel or cancelAll removes it. Removal under
// the lock is what makes completion exactly-once; the remover is the only
// writer of done.
type callRegistry struct {
	mu      sync.Mutex
	pending map[uint64]*pendingCall
	closed  bool

	// inUse reports ids held outside this registry, by active subscriptions.
	inUse      func(id uint64) bool
	// generation reads the session's connection generation.
	generation func() uint64
}

func newCallRegistry(inUse func(uint64) bool, generation func() uint64) *callRegistry {
	return &callRegistry{pending: make(map[uint64]*pendingCall), inUse: inUse, generation: generation}
}

func (r *callRegistry) register(method string, decode decodeFunc, timeout time.Duration) (*pendingCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClientClosed
	}

	pc := &pendingCall{
		id:     r.allocate(),
		method: method,
		decode: decode,
		done:   make(chan callResult, 1),
	}
	if r.generation != nil {
		pc.gen = r.generation()
	}
	r.pending[pc.id] = pc
	if timeout > 0 {
		id := pc.id
		pc.timer = time.AfterFunc(timeout, func() { r.expire(id, timeout) })
	}
	return pc, nil
}

// allocate must be called with mu held.
func (r *callRegistry) allocate() uint64 {
	for {
		id := nextID.Add(1)
		if id == 0 {
			continue
		}
		if _, busy := r.pending[id]; busy {
			continue
		}
		if r.inUse != nil && r.inUse(id) {
			continue
		}
		return id
	}
}

func (r *callRegistry) take(id uint64) *pendingCall {
	r.mu.Lock()
	pc, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()

	if pc != nil && pc.timer != nil {
		pc.timer.Stop()
	}
	return pc
}

// resolve completes call id with a decoded result. A response for an id that
// is no longer pending was canceled or timed out and is discarded.
func (r *callRegistry) resolve(id uint64, payload json.RawMessage) bool {
	pc := r.take(id)
	if pc == nil {
		slog.Debug(fmt.Sprintf("%s - discarding orphaned response for id %d", callsLogPrefix, id))
		return false
	}

	value, err := pc.decode(pc.id, payload)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to decode %s result for id %d: %v", callsLogPrefix, pc.method, id, err))
	}
	pc.done <- callResult{value: value, err: err}
	return true
}

func (r *callRegistry) reject(id uint64, err error) bool {
	pc := r.take(id)
	if pc == nil {
		slog.Debug(fmt.Sprintf("%s - discarding orphaned error for id %d: %v", callsLogPrefix, id, err))
		return false
	}
	pc.done <- callResult{err: err}
	return true
}

func (r *callRegistry) expire(id uint64, after time.Duration) {
	pc := r.take(id)
	if pc == nil {
		return
	}
	slog.Warn(fmt.Sprintf("%s - %s (id %d) timed out after %v", callsLogPrefix, pc.method, id, after))
	pc.done <- callResult{err: fmt.Errorf("%w: %s after %v", ErrTimeout, pc.method, after)}
}

// cancel drops call id without completing it. It reports false when the call
// had already been completed, in which case the result is waiting on done.
func (r *callRegistry) cancel(id uint64) bool {
	return r.take(id) != nil
}

// cancelAll fails every outstanding call with reason and returns how many
// were failed.
func (r *callRegistry) cancelAll(reason error) int {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[uint64]*pendingCall)
	r.mu.Unlock()

	for _, pc := range pending {
		fail(pc, reason)
	}
	return len(pending)
}

// cancelBefore fails the calls registered before generation gen. Calls
// sent on the current connection stay pending.
func (r *callRegistry) cancelBefore(gen uint64, reason error) int {
	var stale []*pendingCall
	r.mu.Lock()
	for id, pc := range r.pending {
		if pc.gen < gen {
			stale = append(stale, pc)
			delete(r.pending, id)
		}
	}
	r.mu.Unlock()

	for _, pc := range stale {
		fail(pc, reason)
	}
	return len(stale)
}

func fail(pc *pendingCall, reason error) {
	if pc.timer != nil {
		pc.timer.Stop()
	}
	pc.done <- callResult{err: fmt.Errorf("%w: %s", reason, pc.method)}
}

func (r *callRegistry) close() int {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return r.cancelAll(ErrClientClosed)
}

func (r *callRegistry) has(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[id]
	return ok
}

func (r *callRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
