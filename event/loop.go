// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package event

import (
	"context"
	"errors"
	"sync"
)

// ErrLoopClosed is returned when waiting on a loop that has been closed.
var ErrLoopClosed = errors.New("event loop is closed")

// task is either a closure or a dispatch passed by value
type task struct {
	fn func()
	d  Dispatch
}

// Loop is a FIFO task queue drained by a single goroutine. Tasks run one at a
// time, in the order they were scheduled.
type Loop struct {
	cond   *sync.Cond
	queue  []task // Current work queue
	closed bool   // Stop signal
	done   chan struct{}
	logger Logger
}

var _ DispatchScheduler = (*Loop)(nil)

// NewLoop starts a new loop.
func NewLoop() *Loop {
	l := &Loop{
		cond:   sync.NewCond(new(sync.Mutex)),
		queue:  make([]task, 0, 64),
		done:   make(chan struct{}),
		logger: stderrLogger{},
	}

	go l.listen()
	return l
}

// SetLogger sets where the loop reports dropped tasks and panicking closures.
func (l *Loop) SetLogger(logger Logger) {
	if logger == nil {
		return
	}

	l.cond.L.Lock()
	l.logger = logger
	l.cond.L.Unlock()
}

// Schedule queues a closure.
func (l *Loop) Schedule(fn func()) {
	if fn != nil {
		l.push(task{fn: fn})
	}
}

// ScheduleDispatch queues a delivery.
func (l *Loop) ScheduleDispatch(d Dispatch) {
	l.push(task{d: d})
}

// Flush blocks until every task queued before the call has run. Calling it
// from a task on the same loop blocks until ctx is done.
func (l *Loop) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !l.enqueue(task{fn: func() { close(done) }}) {
		return ErrLoopClosed
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks, runs the ones already queued and waits for
// the loop goroutine to exit.
func (l *Loop) Close() error {
	l.cond.L.Lock()
	l.closed = true
	l.cond.L.Unlock()
	l.cond.Broadcast()

	<-l.done
	return nil
}

// push appends a task, reporting dropped ones
func (l *Loop) push(t task) {
	if l.enqueue(t) {
		return
	}

	l.cond.L.Lock()
	logger := l.logger
	l.cond.L.Unlock()

	if t.d.Event != nil {
		logger.Warnf("event loop closed, dropping %q delivery", t.d.Event.Type)
	} else {
		logger.Warnf("event loop closed, dropping task")
	}
}

// enqueue appends a task, reporting false when the loop is closed
func (l *Loop) enqueue(t task) bool {
	l.cond.L.Lock()
	if l.closed {
		l.cond.L.Unlock()
		return false
	}

	l.queue = append(l.queue, t)
	l.cond.L.Unlock()
	l.cond.Signal()
	return true
}

// listen processes the queue until the loop is closed and drained
func (l *Loop) listen() {
	defer close(l.done)
	pending := make([]task, 0, 64)

	for {
		l.cond.L.Lock()
		for len(l.queue) == 0 {
			if l.closed {
				l.cond.L.Unlock()
				return
			}
			l.cond.Wait()
		}

		// Swap buffers and reset the current queue
		temp := l.queue
		l.queue = pending[:0]
		pending = temp
		logger := l.logger
		l.cond.L.Unlock()

		// Outside of the critical section, process the work
		for i := range pending {
			pending[i].run(logger)
			pending[i] = task{}
		}
	}
}

// run executes the task, a panicking closure must not take the loop down
func (t task) run(logger Logger) {
	if t.fn == nil {
		t.d.Run()
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("event loop task panicked: %v", r)
		}
	}()
	t.fn()
}
