// Package clock abstracts wall-clock time and one-shot timers so that the
// admission and lifecycle state machines can be driven deterministically.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a cancelable one-shot callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer (false if it already fired or was stopped).
	Stop() bool
}

// Scheduler hands out the current time and one-shot timers.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Real is the wall clock. Callbacks run on their own goroutine (time.AfterFunc).
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, fn func()) Timer { return time.AfterFunc(d, fn) }

// Fake is a manually advanced clock. Timers fire synchronously from Advance,
// in deadline order, on the caller's goroutine.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *Fake
	at      time.Time
	seq     uint64
	fn      func()
	stopped bool
	fired   bool
}

// NewFake returns a fake clock starting at t.
func NewFake(t time.Time) *Fake { return &Fake{now: t} }

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{c: c, at: c.now.Add(d), seq: c.seq, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// NextDeadline returns the earliest pending timer deadline.
func (c *Fake) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var (
		best time.Time
		ok   bool
	)
	for _, t := range c.timers {
		if t.stopped || t.fired {
			continue
		}
		if !ok || t.at.Before(best) {
			best, ok = t.at, true
		}
	}
	return best, ok
}

// Advance moves the clock forward by d, firing every timer whose deadline is reached.
// Timers scheduled by fired callbacks are honoured if they fall inside the window.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	end := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		due := c.dueLocked(end)
		if due == nil {
			c.now = end
			c.compactLocked()
			c.mu.Unlock()
			return
		}
		due.fired = true
		if due.at.After(c.now) {
			c.now = due.at
		}
		fn := due.fn
		c.mu.Unlock()
		fn()
	}
}

func (c *Fake) dueLocked(end time.Time) *fakeTimer {
	var cand []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(end) {
			cand = append(cand, t)
		}
	}
	if len(cand) == 0 {
		return nil
	}
	sort.Slice(cand, func(i, j int) bool {
		if !cand[i].at.Equal(cand[j].at) {
			return cand[i].at.Before(cand[j].at)
		}
		return cand[i].seq < cand[j].seq
	})
	return cand[0]
}

func (c *Fake) compactLocked() {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	c.timers = live
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
