// Package runloop provides the host's serialized execution context: a
// single goroutine that runs posted callbacks one at a time, plus one-shot
// timers that fire back onto that goroutine.
package runloop

import (
	"context"
	"sync/atomic"
	"time"
)

type Loop struct {
	ch chan func()
}

func New() *Loop {
	return &Loop{ch: make(chan func(), 128)}
}

// Run executes posted callbacks until ctx is done. Callbacks never run
// concurrently with each other.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.ch:
			fn()
		}
	}
}

// Post enqueues fn for execution on the loop goroutine.
func (l *Loop) Post(fn func()) {
	l.ch <- fn
}

// Do runs fn on the loop goroutine and waits for it to finish. Must not be
// called from the loop itself.
func (l *Loop) Do(fn func()) {
	done := make(chan struct{})
	l.Post(func() {
		fn()
		close(done)
	})
	<-done
}

// Timer is the handle of one scheduled callback. At most one firing happens;
// Stop before the firing turns it into a no-op.
type Timer struct {
	stopped atomic.Bool
	t       *time.Timer
}

func (t *Timer) Stop() {
	t.stopped.Store(true)
	t.t.Stop()
}

// ScheduleTimer arms a one-shot timer that posts fn to the loop after d.
func (l *Loop) ScheduleTimer(d time.Duration, fn func()) *Timer {
	tm := &Timer{}
	tm.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if tm.stopped.Load() {
				return
			}
			fn()
		})
	})
	return tm
}

// CancelTimer stops t. Safe to call with nil.
func (l *Loop) CancelTimer(t *Timer) {
	if t != nil {
		t.Stop()
	}
}
