// Package loop runs the daemon's single logical thread.
//
// Every state transition of the flow controller and the lifecycle manager
// happens inside a closure executed by Run. Other goroutines (D-Bus handlers,
// relay readers, timers, cron jobs) only ever Post or Call into the loop.
package loop

import (
	"context"
	"errors"
	"time"

	"notithing/internal/clock"
	logx "notithing/pkg/logx"
)

var ErrStopped = errors.New("event loop stopped")

// Loop serialises closures onto one goroutine and implements clock.Scheduler
// with timers whose callbacks run inside the loop.
type Loop struct {
	clock clock.Scheduler
	log   logx.Logger

	queue chan func()
	done  chan struct{}
}

// New creates a loop. queueSize bounds the number of pending closures.
func New(c clock.Scheduler, queueSize int, log logx.Logger) *Loop {
	if c == nil {
		c = clock.Real{}
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loop{
		clock: c,
		log:   log,
		queue: make(chan func(), queueSize),
		done:  make(chan struct{}),
	}
}

// Run executes posted closures until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.queue:
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("event handler panicked", logx.Any("panic", r))
		}
	}()
	fn()
}

// Post enqueues fn. It blocks while the queue is full and fails once the loop stopped.
// Never call Post from inside the loop with a full queue; use it from other goroutines.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case l.queue <- fn:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// Call runs fn inside the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// Now implements clock.Scheduler.
func (l *Loop) Now() time.Time { return l.clock.Now() }

// AfterFunc implements clock.Scheduler. fn runs on the loop goroutine.
// Stop must be called from the loop goroutine; a stopped timer never runs fn,
// even when the underlying timer already fired and its closure is queued.
func (l *Loop) AfterFunc(d time.Duration, fn func()) clock.Timer {
	t := &loopTimer{}
	t.inner = l.clock.AfterFunc(d, func() {
		_ = l.Post(func() {
			if t.stopped || t.fired {
				return
			}
			t.fired = true
			fn()
		})
	})
	return t
}

type loopTimer struct {
	inner   clock.Timer
	stopped bool
	fired   bool
}

func (t *loopTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.inner.Stop()
	return true
}
