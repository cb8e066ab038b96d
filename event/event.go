package event

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"
)

// Event is handed to every listener of one type for one trigger.
type Event struct {
	Type   string // Event type token
	Target any    // Owner of the hub that triggered the event
}

// Emitter is the capability a hub gives to whatever owns it. Embedding a Hub
// in a struct makes the struct an Emitter.
type Emitter interface {
	Bind(types string, listener any) *Hub
	Unbind(types string, listeners ...any) *Hub
	Trigger(types string, args ...any) *Hub
	On(types string, listener any) *Hub
	Off(types string, listeners ...any) *Hub
	Emit(types string, args ...any) *Hub
}

var _ Emitter = (*Hub)(nil)

// registry holds an immutable mapping of event types to listeners
type registry struct {
	subs map[string][]listener
}

// clone copies the mapping, listener slices stay shared until rewritten
func (r *registry) clone() *registry {
	next := &registry{subs: make(map[string][]listener, 8)}
	if r != nil {
		for typ, ls := range r.subs {
			next.subs[typ] = ls
		}
	}
	return next
}

// add appends the listener unless it is already bound to the type
func (r *registry) add(typ string, l listener) {
	ls := r.subs[typ]
	if indexOf(ls, l.id) >= 0 {
		return
	}

	next := make([]listener, len(ls), len(ls)+1)
	copy(next, ls)
	r.subs[typ] = append(next, l)
}

// remove drops the listener identity, deleting the type once it is empty
func (r *registry) remove(typ string, id any) {
	ls := r.subs[typ]
	idx := indexOf(ls, id)
	if idx < 0 {
		return
	}

	if len(ls) == 1 {
		delete(r.subs, typ)
		return
	}

	next := make([]listener, 0, len(ls)-1)
	next = append(next, ls[:idx]...)
	r.subs[typ] = append(next, ls[idx+1:]...)
}

// ------------------------------------- Hub -------------------------------------

// Hub owns a registry of event types to listeners and fans triggered events
// out to them on a scheduler. The zero value is ready to use and delivers on
// the process-wide default scheduling.
type Hub struct {
	subs     atomic.Pointer[registry] // Immutable registry, replaced on every write
	target   atomic.Pointer[any]      // Event.Target, the hub itself when unset
	mu       sync.Mutex               // Only for writes (bind/unbind)
	strategy *Strategy
	logger   Logger
	onPanic  PanicHandler
	tracer   trace.Tracer
}

// Option configures a hub created with New.
type Option func(*Hub)

// WithTarget sets the value reported as Event.Target.
func WithTarget(owner any) Option {
	return func(h *Hub) {
		h.Install(owner)
	}
}

// WithScheduler delivers events on the given scheduler. Its capabilities are
// probed once, here.
func WithScheduler(s Scheduler) Option {
	return func(h *Hub) {
		h.strategy = Probe(s)
	}
}

// WithClosureScheduling hands deliveries to the hub's scheduler as closures
// even when it accepts dispatches. It applies to the scheduler set by an
// earlier WithScheduler, or to the process-wide one.
func WithClosureScheduling() Option {
	return func(h *Hub) {
		h.strategy = Probe(ClosureOnly(h.scheduling().Scheduler()))
	}
}

// WithLogger reports recovered listener panics to the logger.
func WithLogger(logger Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithPanicHandler replaces logging of recovered listener panics.
func WithPanicHandler(fn PanicHandler) Option {
	return func(h *Hub) {
		h.onPanic = fn
	}
}

// New creates a new hub.
func New(opts ...Option) *Hub {
	h := new(Hub)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Install makes owner the target of every event this hub triggers. It is the
// hook for types embedding a Hub:
//
//	type Player struct {
//		event.Hub
//	}
//
//	p := new(Player)
//	p.Install(p)
func (h *Hub) Install(owner any) *Hub {
	h.target.Store(&owner)
	return h
}

// Target returns the value reported as Event.Target.
func (h *Hub) Target() any {
	if owner := h.target.Load(); owner != nil {
		return *owner
	}
	return h
}

// Bind registers the listener for every whitespace separated type. A
// listener is a func(*Event, ...any), a HandlerFunc or a Handler; anything
// else is ignored. A listener is bound at most once per type. Handlers are
// compared by equality. A function is the same listener as another value of
// the same function: a top-level func, a copy of one closure, or the same
// method bound to the same receiver. Closures made by separate evaluations of
// a capturing literal, and one method on different receivers, are distinct.
func (h *Hub) Bind(types string, listener any) *Hub {
	l, ok := listenerOf(listener)
	names := strings.Fields(types)
	if !ok || len(names) == 0 {
		return h
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.subs.Load().clone()
	for _, typ := range names {
		next.add(typ, l)
	}

	h.subs.Store(next)
	return h
}

// Unbind removes the listeners from every whitespace separated type. Without
// a listener, every listener of those types is removed.
func (h *Hub) Unbind(types string, listeners ...any) *Hub {
	names := strings.Fields(types)
	if len(names) == 0 || h.subs.Load() == nil {
		return h
	}

	ids := make([]any, 0, len(listeners))
	all := true
	for _, v := range listeners {
		if v == nil {
			continue
		}

		all = false
		if l, ok := listenerOf(v); ok {
			ids = append(ids, l.id)
		}
	}

	if !all && len(ids) == 0 {
		return h
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.subs.Load().clone()
	for _, typ := range names {
		if all {
			delete(next.subs, typ)
			continue
		}

		for _, id := range ids {
			next.remove(typ, id)
		}
	}

	h.subs.Store(next)
	return h
}

// Trigger schedules delivery of one event per whitespace separated type to
// the listeners bound to it at the time of the call. Listeners receive the
// event followed by args. Trigger never blocks and never runs a listener on
// the calling goroutine.
func (h *Hub) Trigger(types string, args ...any) *Hub {
	reg := h.subs.Load()
	if reg == nil {
		return h
	}

	var strategy *Strategy
	for _, typ := range strings.Fields(types) {
		ls := reg.subs[typ]
		if len(ls) == 0 {
			continue
		}

		if strategy == nil {
			strategy = h.scheduling()
		}

		// each type gets its own copy of the arguments
		strategy.post(Dispatch{
			Event:     &Event{Type: typ, Target: h.Target()},
			hub:       h,
			listeners: ls,
			args:      append([]any(nil), args...),
		})
	}

	return h
}

// On is an alias of Bind.
func (h *Hub) On(types string, listener any) *Hub {
	return h.Bind(types, listener)
}

// Off is an alias of Unbind.
func (h *Hub) Off(types string, listeners ...any) *Hub {
	return h.Unbind(types, listeners...)
}

// Emit is an alias of Trigger.
func (h *Hub) Emit(types string, args ...any) *Hub {
	return h.Trigger(types, args...)
}

// Types returns the sorted event types that have listeners.
func (h *Hub) Types() []string {
	reg := h.subs.Load()
	if reg == nil {
		return nil
	}

	types := make([]string, 0, len(reg.subs))
	for typ := range reg.subs {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// ListenerCount counts the listeners bound to the whitespace separated types.
func (h *Hub) ListenerCount(types string) int {
	reg := h.subs.Load()
	if reg == nil {
		return 0
	}

	count := 0
	for _, typ := range strings.Fields(types) {
		count += len(reg.subs[typ])
	}
	return count
}

// scheduling returns the hub's strategy or the process-wide one
func (h *Hub) scheduling() *Strategy {
	if h.strategy != nil {
		return h.strategy
	}
	return DefaultScheduling()
}
