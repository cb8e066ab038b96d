package event

import (
	"context"

	"go.uber.org/fx"
)

// Result is what the fx module provides.
type Result struct {
	fx.Out

	Hub     *Hub
	Emitter Emitter
}

// Module returns an fx module providing a Loop and a Hub delivering on it.
// The loop is flushed and closed when the application stops.
func Module(opts ...Option) fx.Option {
	return fx.Module("event",
		fx.Provide(NewLoop),
		fx.Provide(func(loop *Loop) Result {
			return ProvideHub(loop, opts...)
		}),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideHub creates a hub delivering on the loop.
func ProvideHub(loop *Loop, opts ...Option) Result {
	hub := New(append([]Option{WithScheduler(loop)}, opts...)...)
	return Result{
		Hub:     hub,
		Emitter: hub,
	}
}

type lifecycleInput struct {
	fx.In

	LC   fx.Lifecycle
	Loop *Loop
}

func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := input.Loop.Flush(ctx); err != nil && err != ErrLoopClosed {
				return err
			}
			return input.Loop.Close()
		},
	})
}
