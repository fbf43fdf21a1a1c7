package app

import (
	"context"
	"time"

	"notithing/internal/loop"
	"notithing/internal/note"
	logx "notithing/pkg/logx"
)

// backend serves D-Bus calls by running the matching Daemon method on the
// event loop and waiting for the result.
type backend struct {
	loop    *loop.Loop
	d       *Daemon
	log     logx.Logger
	timeout time.Duration
}

func (b *backend) call(fn func()) bool {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.loop.Call(ctx, fn); err != nil {
		b.log.Warn("event loop call failed", logx.Err(err))
		return false
	}
	return true
}

// result runs fn on the loop and returns its value, or the zero value when
// the call failed. The buffered channel keeps a late-running fn from
// touching the caller after a timeout.
func result[T any](b *backend, fn func() T) T {
	ch := make(chan T, 1)
	if !b.call(func() { ch <- fn() }) {
		var zero T
		return zero
	}
	return <-ch
}

func (b *backend) Activity() {
	_ = b.loop.Post(b.d.Activity)
}

func (b *backend) Notify(n *note.Notification) uint32 {
	return result(b, func() uint32 { return b.d.Notify(n, true) })
}

func (b *backend) CloseNotification(nid uint32) {
	b.call(func() { b.d.CloseNotification(nid) })
}

func (b *backend) Flush() {
	b.call(func() { b.d.Flush() })
}

func (b *backend) List() []uint32 {
	return result(b, b.d.List)
}

func (b *backend) Cleanup(maxAge time.Duration, maxCount int) int {
	return result(b, func() int { return b.d.Cleanup(maxAge, maxCount) })
}

func (b *backend) Redisplay() uint32 {
	return result(b, b.d.Redisplay)
}

func (b *backend) Set(params map[string]bool) {
	b.call(func() { b.d.Set(params) })
}

type lookup struct{ v, ok bool }

func (b *backend) Get(name string) (v, ok bool) {
	r := result(b, func() lookup {
		v, ok := b.d.Get(name)
		return lookup{v, ok}
	})
	return r.v, r.ok
}

func (b *backend) GetAll() map[string]bool {
	return result(b, b.d.GetAll)
}
