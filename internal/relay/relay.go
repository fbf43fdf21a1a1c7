// Package relay moves notifications between daemon instances over a pub/sub
// message bus.
//
// Frames are one protocol-version byte followed by a JSON array
// [hostname, unix_timestamp, note_fields]. Receivers silently discard frames
// from newer protocol versions.
package relay

import (
	"context"
	"errors"
	"os"
	"regexp"
	"strings"
	"sync"

	"notithing/internal/note"
	logx "notithing/pkg/logx"
)

var (
	// ErrWouldBlock means the outbound queue is full; Send swallows it.
	ErrWouldBlock = errors.New("relay send would block")
	ErrClosed     = errors.New("relay transport closed")
)

// Transport is a pub/sub endpoint. Recv never blocks: it returns (nil, nil)
// when nothing is pending. Ready is signalled whenever new frames arrive.
type Transport interface {
	BindPub(addr string) error
	Connect(addr string) error
	BindSub(addr string) error
	Subscribe(addr string) error

	Send(n *note.Notification) error
	Recv() (*Message, error)
	Ready() <-chan struct{}
	Close() error
}

// Options are shared by all drivers.
type Options struct {
	Hostname string
	PeerID   string
	Buffer   int // outbound/inbound frame queue length
	Log      logx.Logger
}

func (o Options) withDefaults() Options {
	if o.Hostname == "" {
		o.Hostname, _ = os.Hostname()
	}
	if o.PeerID == "" {
		o.PeerID = PeerID()
	}
	if o.Buffer <= 0 {
		o.Buffer = 30
	}
	if o.Log.IsZero() {
		o.Log = logx.Nop()
	}
	return o
}

var machineIDPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

// PeerID returns a machine-persistent identity for this host.
func PeerID() string {
	for _, p := range machineIDPaths {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(b)); id != "" {
			return id
		}
	}
	host, _ := os.Hostname()
	return "--uname--" + host
}

var schemeRe = regexp.MustCompile(`^\w+://`)

// normalizeAddr defaults scheme-less addresses to tcp.
func normalizeAddr(addr string) string {
	if schemeRe.MatchString(addr) {
		return addr
	}
	return "tcp://" + addr
}

// echoWindow is how many recently sent frames are remembered to recognise
// our own publications coming back through a shared channel.
const echoWindow = 64

// base implements the queueing half of Transport; drivers feed it frames
// and drain its outbound queue.
type base struct {
	codec Codec
	log   logx.Logger

	sentMu sync.Mutex
	sent   map[string]struct{}
	order  []string

	in    chan []byte
	out   chan []byte
	ready chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

func newBase(o Options) *base {
	ctx, cancel := context.WithCancel(context.Background())
	return &base{
		codec:  NewCodec(o.Hostname),
		log:    o.Log,
		sent:   map[string]struct{}{},
		in:     make(chan []byte, o.Buffer),
		out:    make(chan []byte, o.Buffer),
		ready:  make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (b *base) closed() bool {
	return b.ctx.Err() != nil
}

// deliver queues an inbound frame, dropping it when the inbox is full.
func (b *base) deliver(frame []byte) {
	select {
	case b.in <- frame:
	default:
		b.log.Debug("relay inbox full, dropping frame", logx.Int("len", len(frame)))
	}
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

func (b *base) enqueue(frame []byte) error {
	select {
	case b.out <- frame:
		return nil
	default:
		return ErrWouldBlock
	}
}

func (b *base) remember(frame []byte) {
	key := string(frame)
	b.sentMu.Lock()
	defer b.sentMu.Unlock()
	if _, ok := b.sent[key]; ok {
		return
	}
	if len(b.order) >= echoWindow {
		delete(b.sent, b.order[0])
		b.order = b.order[1:]
	}
	b.sent[key] = struct{}{}
	b.order = append(b.order, key)
}

func (b *base) echoed(frame []byte) bool {
	b.sentMu.Lock()
	defer b.sentMu.Unlock()
	_, ok := b.sent[string(frame)]
	return ok
}

func (b *base) Send(n *note.Notification) error {
	if b.closed() {
		return ErrClosed
	}
	frame, err := b.codec.Encode(n)
	if err != nil {
		return err
	}
	b.remember(frame)
	if err := b.enqueue(frame); err != nil {
		if errors.Is(err, ErrWouldBlock) {
			b.log.Debug("relay outbound queue full, message dropped")
			return nil
		}
		return err
	}
	return nil
}

func (b *base) Recv() (*Message, error) {
	for {
		select {
		case frame := <-b.in:
			if b.echoed(frame) {
				b.log.Debug("skipping own relay frame")
				continue
			}
			msg, err := b.codec.Decode(frame)
			if err != nil {
				b.log.Debug("skipping malformed relay frame", logx.Err(err))
				continue
			}
			if msg == nil {
				b.log.Debug("skipping relay frame from newer protocol version", logx.Int("version", int(frame[0])))
				continue
			}
			return msg, nil
		default:
			if b.closed() {
				return nil, ErrClosed
			}
			return nil, nil
		}
	}
}

func (b *base) Ready() <-chan struct{} { return b.ready }

// run starts fn as a tracked goroutine bound to the transport lifetime.
func (b *base) run(fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(b.ctx)
	}()
}

func (b *base) shutdown(closeFn func() error) error {
	var err error
	b.once.Do(func() {
		b.cancel()
		if closeFn != nil {
			err = closeFn()
		}
		b.wg.Wait()
	})
	return err
}
