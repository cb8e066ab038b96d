package event

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Scheduler defers a task to a later turn of a task queue.
type Scheduler interface {
	Schedule(task func())
}

// DispatchScheduler is a Scheduler that also takes deliveries as values, so
// no closure has to be captured per trigger. It is preferred when available.
type DispatchScheduler interface {
	Scheduler
	ScheduleDispatch(d Dispatch)
}

// Dispatch is one deferred delivery: an event and the listeners that were
// bound to its type when it was triggered.
type Dispatch struct {
	Event     *Event
	hub       *Hub
	listeners []listener
	args      []any
}

// Len returns the number of listeners the delivery will call.
func (d Dispatch) Len() int {
	return len(d.listeners)
}

// Run delivers the event to every listener in bind order. A panicking
// listener does not stop the ones after it.
func (d Dispatch) Run() {
	if d.hub == nil {
		return
	}
	d.hub.deliver(d)
}

// ------------------------------------- Strategy -------------------------------------

// Strategy is the resolved way of handing deliveries to a scheduler.
type Strategy struct {
	sched    Scheduler
	dispatch DispatchScheduler // nil when only closures are accepted
}

// Probe detects what the scheduler supports. The result is meant to be kept,
// not recomputed per trigger.
func Probe(s Scheduler) *Strategy {
	if s == nil {
		return nil
	}

	strategy := &Strategy{sched: s}
	if ds, ok := s.(DispatchScheduler); ok {
		strategy.dispatch = ds
	}
	return strategy
}

// PassesDispatch reports whether deliveries are handed over as values rather
// than captured in closures.
func (s *Strategy) PassesDispatch() bool {
	return s.dispatch != nil
}

// Scheduler returns the probed scheduler.
func (s *Strategy) Scheduler() Scheduler {
	return s.sched
}

func (s *Strategy) post(d Dispatch) {
	if s.dispatch != nil {
		s.dispatch.ScheduleDispatch(d)
		return
	}

	s.sched.Schedule(func() {
		d.Run()
	})
}

// closureOnly hides the dispatch capability of a scheduler
type closureOnly struct {
	s Scheduler
}

func (c closureOnly) Schedule(task func()) {
	c.s.Schedule(task)
}

// ClosureOnly wraps a scheduler so that it is only ever given closures.
func ClosureOnly(s Scheduler) Scheduler {
	if c, ok := s.(closureOnly); ok {
		return c
	}
	return closureOnly{s: s}
}

// ------------------------------------- Process default -------------------------------------

var defaults struct {
	once     sync.Once
	mu       sync.Mutex
	sched    Scheduler
	strategy *Strategy
}

// SetDefaultScheduler sets the scheduler used by hubs created without one.
// It only has an effect before the default scheduling is first resolved and
// reports whether it did.
func SetDefaultScheduler(s Scheduler) bool {
	if s == nil {
		return false
	}

	defaults.mu.Lock()
	defer defaults.mu.Unlock()

	if defaults.strategy != nil {
		return false
	}

	defaults.sched = s
	return true
}

// DefaultScheduling returns the process-wide strategy, probing the default
// scheduler on first use. A fresh Loop is started when none was set.
func DefaultScheduling() *Strategy {
	defaults.once.Do(func() {
		defaults.mu.Lock()
		defer defaults.mu.Unlock()

		if defaults.sched == nil {
			defaults.sched = NewLoop()
		}
		defaults.strategy = Probe(defaults.sched)
	})

	return defaults.strategy
}

// ------------------------------------- Delivery -------------------------------------

// deliver runs one dispatch pass, optionally inside a span
func (h *Hub) deliver(d Dispatch) {
	if h.tracer == nil {
		for _, l := range d.listeners {
			h.invoke(nil, l, d.Event, d.args)
		}
		return
	}

	_, span := h.tracer.Start(context.Background(), "event.dispatch",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("event.type", d.Event.Type),
			attribute.Int("event.listeners", len(d.listeners)),
			attribute.Int("event.args", len(d.args)),
		),
	)
	defer span.End()

	for _, l := range d.listeners {
		h.invoke(span, l, d.Event, d.args)
	}
}

// invoke calls one listener, recovering from its panic
func (h *Hub) invoke(span trace.Span, l listener, ev *Event, args []any) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		if span != nil {
			span.AddEvent("listener.panic", trace.WithAttributes(
				attribute.String("panic", fmt.Sprint(r)),
			))
			span.SetStatus(codes.Error, "listener panicked")
		}

		switch {
		case h.onPanic != nil:
			h.onPanic(ev, r)
		case h.logger != nil:
			h.logger.Warnf("event %q: listener panicked: %v", ev.Type, r)
		default:
			stderrLogger{}.Warnf("event %q: listener panicked: %v", ev.Type, r)
		}
	}()

	l.call(ev, args)
}
