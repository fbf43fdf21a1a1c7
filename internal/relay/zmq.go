package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"

	logx "notithing/pkg/logx"
)

// zmqTransport publishes on a PUB socket and reads a SUB socket subscribed to
// every topic. Connect/Subscribe dial in the background, as ZeroMQ connects
// are asynchronous.
type zmqTransport struct {
	*base
	pub zmq4.Socket
	sub zmq4.Socket

	mu         sync.Mutex
	subStarted bool
}

// NewZMQ creates a ZeroMQ PUB/SUB transport identified by o.PeerID.
func NewZMQ(o Options) (Transport, error) {
	o = o.withDefaults()
	b := newBase(o)
	id := zmq4.WithID(zmq4.SocketIdentity(o.PeerID))
	t := &zmqTransport{
		base: b,
		pub:  zmq4.NewPub(b.ctx, id),
		sub:  zmq4.NewSub(b.ctx, id),
	}
	if err := t.sub.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("zmq subscribe: %w", err)
	}
	t.run(t.writer)
	return t, nil
}

func (t *zmqTransport) BindPub(addr string) error {
	addr = normalizeAddr(addr)
	if err := t.pub.Listen(addr); err != nil {
		return fmt.Errorf("zmq bind pub %s: %w", addr, err)
	}
	return nil
}

func (t *zmqTransport) Connect(addr string) error {
	t.dial(t.pub, normalizeAddr(addr), "pub")
	return nil
}

func (t *zmqTransport) BindSub(addr string) error {
	addr = normalizeAddr(addr)
	if err := t.sub.Listen(addr); err != nil {
		return fmt.Errorf("zmq bind sub %s: %w", addr, err)
	}
	t.startReader()
	return nil
}

func (t *zmqTransport) Subscribe(addr string) error {
	t.dial(t.sub, normalizeAddr(addr), "sub")
	t.startReader()
	return nil
}

func (t *zmqTransport) dial(sock zmq4.Socket, addr, kind string) {
	t.run(func(ctx context.Context) {
		if err := sock.Dial(addr); err != nil && ctx.Err() == nil {
			t.log.Warn("zmq dial failed", logx.String("socket", kind), logx.String("addr", addr), logx.Err(err))
		}
	})
}

func (t *zmqTransport) startReader() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subStarted {
		return
	}
	t.subStarted = true
	t.run(t.reader)
}

func (t *zmqTransport) reader(ctx context.Context) {
	for {
		msg, err := t.sub.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			t.log.Debug("zmq recv failed", logx.Err(err))
			continue
		}
		if len(msg.Frames) == 0 {
			continue
		}
		t.deliver(msg.Bytes())
	}
}

func (t *zmqTransport) writer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-t.out:
			if err := t.pub.Send(zmq4.NewMsg(frame)); err != nil && ctx.Err() == nil {
				t.log.Warn("zmq publish failed", logx.Err(err))
			}
		}
	}
}

func (t *zmqTransport) Close() error {
	return t.shutdown(func() error {
		return errors.Join(t.pub.Close(), t.sub.Close())
	})
}
