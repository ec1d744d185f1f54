package realtime

import (
	"log/slog"
	"sync"

	v1 "chatkit/wire/v1"
)

// Handler consumes one inbound envelope. Handlers run on the read loop
// goroutine, so they should hand work off rather than block.
type Handler func(v1.Envelope)

// Registry decouples one physical connection from many logical consumers.
//
// Concurrency guarantees:
//   - Subscribe/unsubscribe are safe under concurrent Dispatch.
//   - A handler receives every envelope dispatched after Subscribe returns
//     and before its unsubscribe returns, each at most once per frame.
//   - No ordering guarantee among handlers for the same envelope.
type Registry struct {
	log *slog.Logger

	mu       sync.RWMutex
	seq      uint64
	handlers map[uint64]Handler
}

// NewRegistry constructs an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:      log,
		handlers: make(map[uint64]Handler),
	}
}

// Subscribe registers a handler and returns the capability that removes
// exactly that registration. Calling the returned func more than once is
// a no-op.
func (r *Registry) Subscribe(h Handler) (unsubscribe func()) {
	if h == nil {
		return func() {}
	}

	r.mu.Lock()
	r.seq++
	id := r.seq
	r.handlers[id] = h
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.handlers, id)
		r.mu.Unlock()
	}
}

// Len reports the number of live registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Dispatch delivers env to every currently registered handler.
//
// The membership is snapshotted first, so handlers that subscribe or
// unsubscribe during delivery do not affect the in-progress frame.
// A panicking handler is isolated and logged; delivery continues.
func (r *Registry) Dispatch(env v1.Envelope) {
	r.mu.RLock()
	snapshot := make([]Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		snapshot = append(snapshot, h)
	}
	r.mu.RUnlock()

	for _, h := range snapshot {
		r.call(h, env)
	}
}

func (r *Registry) call(h Handler, env v1.Envelope) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("dispatch.handler.panic", "type", env.Type, "panic", p)
		}
	}()
	h(env)
}
