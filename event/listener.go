package event

import (
	"fmt"
	"os"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"unsafe"
)

// Handler is an object-style listener. The handler itself is the receiver of
// the call, Event.Target still points at the hub's owner.
type Handler interface {
	HandleEvent(ev *Event, args ...any)
}

// HandlerFunc is a plain function listener.
type HandlerFunc func(ev *Event, args ...any)

// HandleEvent calls f(ev, args...).
func (f HandlerFunc) HandleEvent(ev *Event, args ...any) {
	f(ev, args...)
}

// PanicHandler receives whatever a listener panicked with.
type PanicHandler func(ev *Event, recovered any)

// Logger receives reports that cannot be returned to a caller.
type Logger interface {
	Warnf(format string, v ...any)
}

// stderrLogger is used until a logger is configured
type stderrLogger struct{}

func (stderrLogger) Warnf(format string, v ...any) {
	fmt.Fprintf(os.Stderr, "[WARN] "+format+"\n", v...)
}

type listenerKind uint8

const (
	kindFunc listenerKind = iota + 1
	kindHandler
)

// funcKey identifies a function listener. ctx is the closure the value
// points to, or the receiver when the value is a bound method, so every
// evaluation of a.OnX is one listener and b.OnX is another.
type funcKey struct {
	code uintptr
	ctx  uintptr
}

// methodValues caches whether a code pointer is a bound method wrapper
var methodValues sync.Map

func isMethodValue(code uintptr) bool {
	if v, ok := methodValues.Load(code); ok {
		return v.(bool)
	}

	f := runtime.FuncForPC(code)
	is := f != nil && strings.HasSuffix(f.Name(), "-fm")
	methodValues.Store(code, is)
	return is
}

func funcIdentity(fn HandlerFunc) funcKey {
	code := reflect.ValueOf(fn).Pointer()
	closure := *(*unsafe.Pointer)(unsafe.Pointer(&fn))
	if isMethodValue(code) {
		// a bound method closure is {code, receiver}
		recv := *(*uintptr)(unsafe.Add(closure, unsafe.Sizeof(uintptr(0))))
		return funcKey{code: code, ctx: recv}
	}
	return funcKey{code: code, ctx: uintptr(closure)}
}

// listener is a bound listener, resolved once at bind time
type listener struct {
	kind    listenerKind
	fn      HandlerFunc
	handler Handler
	id      any // Identity used for de-duplication and removal
}

// listenerOf resolves the shape of a listener value
func listenerOf(v any) (listener, bool) {
	switch l := v.(type) {
	case nil:
		return listener{}, false
	case HandlerFunc:
		return funcListener(l)
	case func(*Event, ...any):
		return funcListener(l)
	case Handler:
		rv := reflect.ValueOf(l)
		if !rv.Type().Comparable() {
			return listener{}, false
		}

		switch rv.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface, reflect.Slice:
			if rv.IsNil() {
				return listener{}, false
			}
		}

		return listener{kind: kindHandler, handler: l, id: l}, true
	default:
		return listener{}, false
	}
}

func funcListener(fn HandlerFunc) (listener, bool) {
	if fn == nil {
		return listener{}, false
	}

	return listener{
		kind: kindFunc,
		fn:   fn,
		id:   funcIdentity(fn),
	}, true
}

// call invokes the listener with the event and arguments
func (l listener) call(ev *Event, args []any) {
	switch l.kind {
	case kindHandler:
		l.handler.HandleEvent(ev, args...)
	default:
		l.fn(ev, args...)
	}
}

// indexOf finds the listener with the given identity
func indexOf(ls []listener, id any) int {
	for i, l := range ls {
		if l.id == id {
			return i
		}
	}
	return -1
}
