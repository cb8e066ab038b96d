package event

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects deliveries in the order they happen
type recorder struct {
	mu    sync.Mutex
	calls []string
	args  [][]any
	evs   []*Event
}

func (r *recorder) add(name string, ev *Event, args []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
	r.args = append(r.args, args)
	r.evs = append(r.evs, ev)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// named is an object-style listener with its own identity
type named struct {
	name string
	rec  *recorder
	self *named
}

func (n *named) HandleEvent(ev *Event, args ...any) {
	n.self = n
	n.rec.add(n.name, ev, args)
}

func newTestHub(t *testing.T, opts ...Option) (*Hub, *Loop) {
	t.Helper()
	loop := NewLoop()
	t.Cleanup(func() { loop.Close() })
	return New(append([]Option{WithScheduler(loop)}, opts...)...), loop
}

func flush(t *testing.T, loop *Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, loop.Flush(ctx))
}

// block holds the loop until the returned func is called
func block(loop *Loop) func() {
	gate := make(chan struct{})
	loop.Schedule(func() { <-gate })
	return func() { close(gate) }
}

func TestBindDeduplicates(t *testing.T) {
	hub, loop := newTestHub(t)
	rec := &recorder{}
	l := &named{name: "L", rec: rec}

	hub.Bind("x", l).Bind("x", l)
	assert.Equal(t, 1, hub.ListenerCount("x"))

	hub.Trigger("x")
	flush(t, loop)
	assert.Equal(t, []string{"L"}, rec.Calls())
}

func TestBindFuncDeduplicates(t *testing.T) {
	hub, loop := newTestHub(t)
	var mu sync.Mutex
	count := 0
	fn := func(ev *Event, args ...any) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	hub.Bind("x", fn).Bind("x", HandlerFunc(fn))
	assert.Equal(t, 1, hub.ListenerCount("x"))

	hub.Trigger("x")
	flush(t, loop)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

// tally is a listener bound as a method value
type tally struct {
	mu sync.Mutex
	n  int
}

func (c *tally) OnEvent(ev *Event, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func (c *tally) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestMethodValuesPerReceiver(t *testing.T) {
	hub, loop := newTestHub(t)
	a, b := &tally{}, &tally{}

	hub.Bind("x", a.OnEvent).Bind("x", b.OnEvent).Bind("x", a.OnEvent)
	assert.Equal(t, 2, hub.ListenerCount("x"))

	hub.Trigger("x")
	flush(t, loop)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())

	// a fresh evaluation of b.OnEvent removes b only
	hub.Unbind("x", b.OnEvent)
	assert.Equal(t, 1, hub.ListenerCount("x"))

	hub.Trigger("x")
	flush(t, loop)
	assert.Equal(t, 2, a.count())
	assert.Equal(t, 1, b.count())
}

func TestClosureInstancesAreDistinct(t *testing.T) {
	hub, loop := newTestHub(t)
	rec := &recorder{}
	listenerFor := func(name string) func(*Event, ...any) {
		return func(ev *Event, args ...any) {
			rec.add(name, ev, args)
		}
	}

	first, second := listenerFor("first"), listenerFor("second")
	hub.Bind("x", first).Bind("x", second).Bind("x", first)
	assert.Equal(t, 2, hub.ListenerCount("x"))

	hub.Trigger("x")
	flush(t, loop)
	assert.Equal(t, []string{"first", "second"}, rec.Calls())

	hub.Unbind("x", first)
	hub.Trigger("x")
	flush(t, loop)
	assert.Equal(t, []string{"first", "second", "second"}, rec.Calls())
}

func TestTopLevelFuncDeduplicates(t *testing.T) {
	hub, _ := newTestHub(t)

	hub.Bind("x", discard).Bind("x", HandlerFunc(discard))
	assert.Equal(t, 1, hub.ListenerCount("x"))

	hub.Unbind("x", discard)
	assert.Equal(t, 0, hub.ListenerCount("x"))
}

func discard(*Event, ...any) {}

func TestBindMultipleTypes(t *testing.T) {
	hub, loop := newTestHub(t)
	rec := &recorder{}
	hub.Bind("a  b\tc", &named{name: "L", rec: rec})

	hub.Trigger("a")
	flush(t, loop)
	assert.Equal(t, []string{"L"}, rec.Calls())

	hub.Trigger("b")
	flush(t, loop)
	assert.Equal(t, []string{"L", "L"}, rec.Calls())

	hub.Trigger("d")
	flush(t, loop)
	assert.Equal(t, []string{"L", "L"}, rec.Calls())
	assert.Equal(t, []string{"a", "b", "c"}, hub.Types())
}

func TestUnbind(t *testing.T) {
	t.Run("without listener removes all", func(t *testing.T) {
		hub, loop := newTestHub(t)
		rec := &recorder{}
		hub.Bind("x", &named{name: "L1", rec: rec})
		hub.Bind("x", &named{name: "L2", rec: rec})
		hub.Unbind("x")

		hub.Trigger("x")
		flush(t, loop)
		assert.Empty(t, rec.Calls())
		assert.Empty(t, hub.Types())
	})

	t.Run("nil listener removes all", func(t *testing.T) {
		hub, _ := newTestHub(t)
		hub.Bind("x y", &named{name: "L1", rec: &recorder{}})
		hub.Off("x", nil)
		assert.Equal(t, []string{"y"}, hub.Types())
	})

	t.Run("with listener removes only it", func(t *testing.T) {
		hub, loop := newTestHub(t)
		rec := &recorder{}
		l1 := &named{name: "L1", rec: rec}
		hub.Bind("x", l1)
		hub.Bind("x", &named{name: "L2", rec: rec})
		hub.Unbind("x", l1)

		hub.Trigger("x")
		flush(t, loop)
		assert.Equal(t, []string{"L2"}, rec.Calls())
	})

	t.Run("last listener removes the type", func(t *testing.T) {
		hub, _ := newTestHub(t)
		l := &named{name: "L", rec: &recorder{}}
		hub.Bind("x y", l).Unbind("x y", l)
		assert.Empty(t, hub.Types())
		assert.Equal(t, 0, hub.ListenerCount("x y"))
	})

	t.Run("unknown type and listener", func(t *testing.T) {
		hub, _ := newTestHub(t)
		assert.Same(t, hub, hub.Unbind("nothing"))

		l := &named{name: "L", rec: &recorder{}}
		hub.Bind("x", l)
		hub.Unbind("x", &named{name: "other"})
		hub.Unbind("x", "not a listener")
		assert.Equal(t, 1, hub.ListenerCount("x"))
	})
}

func TestDeliveryOrder(t *testing.T) {
	hub, loop := newTestHub(t)
	rec := &recorder{}
	for i := 0; i < 5; i++ {
		hub.Bind("x", &named{name: fmt.Sprintf("L%d", i), rec: rec})
	}

	hub.Trigger("x")
	flush(t, loop)
	assert.Equal(t, []string{"L0", "L1", "L2", "L3", "L4"}, rec.Calls())
}

func TestHandleEventListener(t *testing.T) {
	hub, loop := newTestHub(t)
	rec := &recorder{}
	l := &named{name: "obj", rec: rec}
	hub.Bind("x", l)

	hub.Trigger("x", 42)
	flush(t, loop)

	require.Len(t, rec.evs, 1)
	assert.Same(t, l, l.self)
	assert.Equal(t, "x", rec.evs[0].Type)
	assert.Same(t, hub, rec.evs[0].Target)
	assert.Equal(t, []any{42}, rec.args[0])
}

func TestArgsPropagate(t *testing.T) {
	hub, loop := newTestHub(t)
	rec := &recorder{}
	hub.Bind("x", &named{name: "L1", rec: rec})
	hub.Bind("x", func(ev *Event, args ...any) {
		rec.add("fn", ev, args)
	})

	args := []any{1, 2, 3}
	hub.Trigger("x", args...)
	args[0] = "changed"
	flush(t, loop)

	require.Len(t, rec.args, 2)
	assert.Equal(t, []any{1, 2, 3}, rec.args[0])
	assert.Equal(t, []any{1, 2, 3}, rec.args[1])
	assert.Same(t, rec.evs[0], rec.evs[1], "listeners of one type share the event")
}

func TestArgsCopiedPerType(t *testing.T) {
	hub, loop := newTestHub(t)
	rec := &recorder{}
	hub.Bind("a", func(ev *Event, args ...any) {
		args[0] = "overwritten"
	})
	hub.Bind("b", func(ev *Event, args ...any) {
		rec.add("b", ev, args)
	})

	hub.Trigger("a b", "original")
	flush(t, loop)

	require.Len(t, rec.args, 1)
	assert.Equal(t, []any{"original"}, rec.args[0])
}

func TestEventPerType(t *testing.T) {
	hub, loop := newTestHub(t)
	rec := &recorder{}
	hub.Bind("a b", &named{name: "L", rec: rec})

	hub.Trigger("a b")
	flush(t, loop)

	require.Len(t, rec.evs, 2)
	assert.NotSame(t, rec.evs[0], rec.evs[1])
	assert.Equal(t, "a", rec.evs[0].Type)
	assert.Equal(t, "b", rec.evs[1].Type)
}

func TestTriggerIsDeferred(t *testing.T) {
	hub, loop := newTestHub(t)
	rec := &recorder{}
	hub.Bind("x", &named{name: "L", rec: rec})

	release := block(loop)
	hub.Trigger("x")
	assert.Empty(t, rec.Calls())

	release()
	flush(t, loop)
	assert.Equal(t, []string{"L"}, rec.Calls())
}

func TestSnapshotSemantics(t *testing.T) {
	hub, loop := newTestHub(t)
	rec := &recorder{}
	l := &named{name: "L", rec: rec}
	late := &named{name: "late", rec: rec}
	hub.Bind("x", l)

	release := block(loop)
	hub.Trigger("x")
	hub.Unbind("x", l)
	hub.Bind("x", late)
	release()
	flush(t, loop)

	assert.Equal(t, []string{"L"}, rec.Calls())
}

func TestTriggerFIFO(t *testing.T) {
	hub, loop := newTestHub(t)
	var mu sync.Mutex
	var got []any
	hub.Bind("x", func(ev *Event, args ...any) {
		mu.Lock()
		got = append(got, args[0])
		mu.Unlock()
	})

	for i := 0; i < 100; i++ {
		hub.Trigger("x", i)
	}
	flush(t, loop)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestAliases(t *testing.T) {
	hub, loop := newTestHub(t)
	rec := &recorder{}
	l := &named{name: "L", rec: rec}

	var em Emitter = hub
	em.On("x", l)
	em.Bind("x", l)
	assert.Equal(t, 1, hub.ListenerCount("x"))

	em.Emit("x")
	em.Trigger("x")
	flush(t, loop)
	assert.Equal(t, []string{"L", "L"}, rec.Calls())

	em.Off("x", l)
	assert.Equal(t, 0, hub.ListenerCount("x"))
}

type player struct {
	Hub
	name string
}

func TestInstallTarget(t *testing.T) {
	loop := NewLoop()
	defer loop.Close()

	p := &player{name: "p1"}
	p.Install(p)
	p.strategy = Probe(loop)

	rec := &recorder{}
	p.On("move", &named{name: "L", rec: rec}).Emit("move", 1, 2)
	flush(t, loop)

	require.Len(t, rec.evs, 1)
	assert.Same(t, p, rec.evs[0].Target)

	hub := New(WithTarget("owner"), WithScheduler(loop))
	assert.Equal(t, "owner", hub.Target())
	bare := New()
	assert.Same(t, bare, bare.Target())
}

func TestZeroHubUsesDefaultScheduling(t *testing.T) {
	var hub Hub
	done := make(chan *Event, 1)
	hub.Bind("x", func(ev *Event, args ...any) { done <- ev })
	hub.Trigger("x")

	select {
	case ev := <-done:
		assert.Same(t, &hub, ev.Target)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for delivery")
	}
}

type sliceHandler struct {
	calls []string
}

func (s sliceHandler) HandleEvent(ev *Event, args ...any) {}

func TestIgnoresInvalidListeners(t *testing.T) {
	hub, loop := newTestHub(t)
	var nilHandler *named
	var nilFunc func(*Event, ...any)

	hub.Bind("x", nil)
	hub.Bind("x", "string")
	hub.Bind("x", 42)
	hub.Bind("x", func() {})
	hub.Bind("x", nilHandler)
	hub.Bind("x", nilFunc)
	hub.Bind("x", sliceHandler{})
	hub.Bind("   ", &named{name: "blank", rec: &recorder{}})
	hub.Bind("", &named{name: "empty", rec: &recorder{}})

	assert.Empty(t, hub.Types())
	assert.Same(t, hub, hub.Trigger("x"))
	assert.Same(t, hub, hub.Trigger(""))
	flush(t, loop)
}

func TestPanicIsolation(t *testing.T) {
	var mu sync.Mutex
	var panics []any
	hub, loop := newTestHub(t, WithPanicHandler(func(ev *Event, recovered any) {
		mu.Lock()
		panics = append(panics, recovered)
		mu.Unlock()
	}))

	rec := &recorder{}
	hub.Bind("x", func(ev *Event, args ...any) { panic("boom") })
	hub.Bind("x", &named{name: "after", rec: rec})

	hub.Trigger("x")
	flush(t, loop)

	assert.Equal(t, []string{"after"}, rec.Calls())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []any{"boom"}, panics)
}

type fakeLogger struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeLogger) Warnf(format string, v ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, fmt.Sprintf(format, v...))
}

func (f *fakeLogger) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func TestPanicLogged(t *testing.T) {
	logger := &fakeLogger{}
	hub, loop := newTestHub(t, WithLogger(logger))
	hub.Bind("x", func(ev *Event, args ...any) { panic("boom") })

	hub.Trigger("x")
	flush(t, loop)

	assert.Equal(t, []string{`event "x": listener panicked: boom`}, logger.Lines())
}

func TestTypesAndListenerCount(t *testing.T) {
	hub, _ := newTestHub(t)
	assert.Nil(t, hub.Types())
	assert.Equal(t, 0, hub.ListenerCount("x"))

	rec := &recorder{}
	hub.Bind("b a", &named{name: "L1", rec: rec})
	hub.Bind("a", &named{name: "L2", rec: rec})

	assert.Equal(t, []string{"a", "b"}, hub.Types())
	assert.Equal(t, 2, hub.ListenerCount("a"))
	assert.Equal(t, 3, hub.ListenerCount("a b"))
}

func TestConcurrentBindTrigger(t *testing.T) {
	hub, loop := newTestHub(t)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l := &named{name: fmt.Sprint(i), rec: &recorder{}}
			for j := 0; j < 100; j++ {
				hub.Bind("x", l)
				hub.Trigger("x", j)
				hub.Unbind("x", l)
			}
		}(i)
	}

	wg.Wait()
	flush(t, loop)
	assert.Equal(t, 0, hub.ListenerCount("x"))
}

func BenchmarkTrigger(b *testing.B) {
	loop := NewLoop()
	defer loop.Close()
	hub := New(WithScheduler(loop))
	hub.Bind("x", func(ev *Event, args ...any) {})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Trigger("x", i)
	}
	loop.Flush(context.Background())
}

func BenchmarkBindUnbind(b *testing.B) {
	hub := New()
	l := &named{name: "L", rec: &recorder{}}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Bind("x", l)
		hub.Unbind("x", l)
	}
}
