// Package logmon is a leveled logger that keeps a history of what it wrote
// and broadcasts every write to subscribers.
package logmon

import (
	"container/ring"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mostlygeek/microevent/event"
)

// dataEvent is the hub event carrying each write
const dataEvent = "data"

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel accepts debug, info, warn and error.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %s", s)
	}
}

// TimeFormats maps the names accepted by SetLogTimeFormat to layouts.
var TimeFormats = map[string]string{
	"ansic":       time.ANSIC,
	"unixdate":    time.UnixDate,
	"rubydate":    time.RubyDate,
	"rfc822":      time.RFC822,
	"rfc822z":     time.RFC822Z,
	"rfc850":      time.RFC850,
	"rfc1123":     time.RFC1123,
	"rfc1123z":    time.RFC1123Z,
	"rfc3339":     time.RFC3339,
	"rfc3339nano": time.RFC3339Nano,
	"kitchen":     time.Kitchen,
	"stamp":       time.Stamp,
	"stampmilli":  time.StampMilli,
	"stampmicro":  time.StampMicro,
	"stampnano":   time.StampNano,
}

type LogMonitor struct {
	hub  *event.Hub
	loop *event.Loop

	buffer   *ring.Ring
	bufferMu sync.RWMutex

	// typically this can be os.Stdout
	stdout io.Writer

	mu         sync.RWMutex
	level      LogLevel
	timeFormat string
	prefix     string
}

func NewLogMonitor() *LogMonitor {
	return NewLogMonitorWriter(os.Stdout)
}

func NewLogMonitorWriter(stdout io.Writer) *LogMonitor {
	loop := event.NewLoop()
	w := &LogMonitor{
		loop:   loop,
		buffer: ring.New(10 * 1024), // keep 10K writes of history
		stdout: stdout,
		level:  LevelInfo,
	}
	w.hub = event.New(event.WithScheduler(loop), event.WithTarget(w))
	return w
}

func (w *LogMonitor) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}

	content := make([]byte, len(p))
	copy(content, p)

	// one critical section so stdout, history and subscribers agree on order
	w.bufferMu.Lock()
	defer w.bufferMu.Unlock()

	n, err = w.stdout.Write(p)
	if err != nil {
		return n, err
	}

	w.buffer.Value = content
	w.buffer = w.buffer.Next()
	w.hub.Trigger(dataEvent, content)
	return n, nil
}

func (w *LogMonitor) GetHistory() []byte {
	w.bufferMu.RLock()
	defer w.bufferMu.RUnlock()

	var history []byte
	w.buffer.Do(func(p any) {
		if content, ok := p.([]byte); ok {
			history = append(history, content...)
		}
	})
	return history
}

// dataListener gives every subscription its own identity on the hub
type dataListener struct {
	fn func(data []byte)
}

func (d *dataListener) HandleEvent(ev *event.Event, args ...any) {
	if len(args) == 0 {
		return
	}
	if data, ok := args[0].([]byte); ok {
		d.fn(data)
	}
}

// OnLogData calls callback with every write, in order, on the monitor's
// delivery goroutine. The returned func unsubscribes.
func (w *LogMonitor) OnLogData(callback func(data []byte)) context.CancelFunc {
	l := &dataListener{fn: callback}
	w.hub.Bind(dataEvent, l)
	return func() {
		w.hub.Unbind(dataEvent, l)
	}
}

// Subscribers returns the number of OnLogData subscriptions.
func (w *LogMonitor) Subscribers() int {
	return w.hub.ListenerCount(dataEvent)
}

// Flush waits until subscribers have seen every write made so far.
func (w *LogMonitor) Flush(ctx context.Context) error {
	return w.loop.Flush(ctx)
}

// Close delivers pending writes and stops the delivery goroutine.
func (w *LogMonitor) Close() error {
	return w.loop.Close()
}

func (w *LogMonitor) SetPrefix(prefix string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prefix = prefix
}

func (w *LogMonitor) SetLogLevel(level LogLevel) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.level = level
}

func (w *LogMonitor) Level() LogLevel {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.level
}

// SetLogTimeFormat takes a name from TimeFormats or a layout. An empty
// format disables timestamps.
func (w *LogMonitor) SetLogTimeFormat(format string) {
	if layout, ok := TimeFormats[strings.ToLower(format)]; ok {
		format = layout
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.timeFormat = format
}

func (w *LogMonitor) formatMessage(level LogLevel, message string) []byte {
	w.mu.RLock()
	prefix, timeFormat := w.prefix, w.timeFormat
	w.mu.RUnlock()

	var sb strings.Builder
	if timeFormat != "" {
		sb.WriteString(time.Now().Format(timeFormat))
		sb.WriteByte(' ')
	}
	if prefix != "" {
		sb.WriteString("[" + prefix + "] ")
	}
	sb.WriteString("[" + level.String() + "] ")
	sb.WriteString(message)
	sb.WriteByte('\n')
	return []byte(sb.String())
}

func (w *LogMonitor) log(level LogLevel, message string) {
	w.mu.RLock()
	enabled := level >= w.level
	w.mu.RUnlock()

	if !enabled {
		return
	}
	w.Write(w.formatMessage(level, message))
}

func (w *LogMonitor) Debug(message string) {
	w.log(LevelDebug, message)
}

func (w *LogMonitor) Info(message string) {
	w.log(LevelInfo, message)
}

func (w *LogMonitor) Warn(message string) {
	w.log(LevelWarn, message)
}

func (w *LogMonitor) Error(message string) {
	w.log(LevelError, message)
}

func (w *LogMonitor) Debugf(format string, args ...any) {
	w.log(LevelDebug, fmt.Sprintf(format, args...))
}

func (w *LogMonitor) Infof(format string, args ...any) {
	w.log(LevelInfo, fmt.Sprintf(format, args...))
}

func (w *LogMonitor) Warnf(format string, args ...any) {
	w.log(LevelWarn, fmt.Sprintf(format, args...))
}

func (w *LogMonitor) Errorf(format string, args ...any) {
	w.log(LevelError, fmt.Sprintf(format, args...))
}
