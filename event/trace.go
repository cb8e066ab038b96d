package event

import (
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mostlygeek/microevent/event"

// WithTracerProvider runs every delivery pass inside an "event.dispatch" span.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(h *Hub) {
		if tp == nil {
			h.tracer = nil
			return
		}
		h.tracer = tp.Tracer(tracerName)
	}
}
