package relay

import (
	"context"
	"slices"
	"sync"
)

// Hub is an in-process bus for the "memory" driver. Publishers and
// subscribers meet on equal addresses regardless of bind/connect direction.
type Hub struct {
	mu   sync.RWMutex
	subs map[string][]*base
}

func NewHub() *Hub { return &Hub{subs: map[string][]*base{}} }

func (h *Hub) join(addr string, b *base) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !slices.Contains(h.subs[addr], b) {
		h.subs[addr] = append(h.subs[addr], b)
	}
}

func (h *Hub) leave(b *base) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for addr, list := range h.subs {
		h.subs[addr] = slices.DeleteFunc(list, func(x *base) bool { return x == b })
	}
}

func (h *Hub) publish(addr string, frame []byte) {
	h.mu.RLock()
	targets := slices.Clone(h.subs[addr])
	h.mu.RUnlock()
	for _, t := range targets {
		t.deliver(frame)
	}
}

type memoryTransport struct {
	*base
	hub *Hub

	mu   sync.Mutex
	dsts []string
}

// NewMemory returns a transport attached to hub.
func NewMemory(hub *Hub, o Options) Transport {
	o = o.withDefaults()
	t := &memoryTransport{base: newBase(o), hub: hub}
	t.run(t.writer)
	return t
}

func (t *memoryTransport) addDst(addr string) error {
	if t.closed() {
		return ErrClosed
	}
	t.mu.Lock()
	t.dsts = append(t.dsts, addr)
	t.mu.Unlock()
	return nil
}

func (t *memoryTransport) BindPub(addr string) error { return t.addDst(addr) }
func (t *memoryTransport) Connect(addr string) error { return t.addDst(addr) }

func (t *memoryTransport) BindSub(addr string) error {
	if t.closed() {
		return ErrClosed
	}
	t.hub.join(addr, t.base)
	return nil
}

func (t *memoryTransport) Subscribe(addr string) error { return t.BindSub(addr) }

func (t *memoryTransport) writer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-t.out:
			t.mu.Lock()
			dsts := slices.Clone(t.dsts)
			t.mu.Unlock()
			for _, d := range dsts {
				t.hub.publish(d, frame)
			}
		}
	}
}

func (t *memoryTransport) Close() error {
	return t.shutdown(func() error {
		t.hub.leave(t.base)
		return nil
	})
}
