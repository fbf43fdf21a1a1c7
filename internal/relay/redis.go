package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	logx "notithing/pkg/logx"
)

const DefaultChannel = "notification-thing"

// redisTransport maps PUB/SUB onto Redis PUBLISH/SUBSCRIBE on one channel.
// Bind and connect are the same thing here: both name a server to use.
type redisTransport struct {
	*base
	channel string

	mu   sync.Mutex
	pubs []*redis.Client
	subs []*redis.Client
}

// NewRedis creates a transport publishing to channel (DefaultChannel when empty).
func NewRedis(o Options, channel string) Transport {
	o = o.withDefaults()
	if channel == "" {
		channel = DefaultChannel
	}
	t := &redisTransport{base: newBase(o), channel: channel}
	t.run(t.writer)
	return t
}

func redisOptions(addr string) (*redis.Options, error) {
	if strings.Contains(addr, "://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opt, nil
	}
	return &redis.Options{Addr: addr}, nil
}

func (t *redisTransport) client(addr string) (*redis.Client, error) {
	if t.closed() {
		return nil, ErrClosed
	}
	opt, err := redisOptions(addr)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(t.ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return c, nil
}

func (t *redisTransport) BindPub(addr string) error {
	c, err := t.client(addr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.pubs = append(t.pubs, c)
	t.mu.Unlock()
	return nil
}

func (t *redisTransport) Connect(addr string) error { return t.BindPub(addr) }

func (t *redisTransport) BindSub(addr string) error {
	c, err := t.client(addr)
	if err != nil {
		return err
	}
	ps := c.Subscribe(t.ctx, t.channel)
	if _, err := ps.Receive(t.ctx); err != nil {
		_ = ps.Close()
		_ = c.Close()
		return fmt.Errorf("redis subscribe %s: %w", t.channel, err)
	}
	t.mu.Lock()
	t.subs = append(t.subs, c)
	t.mu.Unlock()

	t.run(func(ctx context.Context) {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				t.deliver([]byte(m.Payload))
			}
		}
	})
	return nil
}

func (t *redisTransport) Subscribe(addr string) error { return t.BindSub(addr) }

func (t *redisTransport) writer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-t.out:
			t.mu.Lock()
			pubs := append([]*redis.Client(nil), t.pubs...)
			t.mu.Unlock()
			for _, c := range pubs {
				if err := c.Publish(ctx, t.channel, frame).Err(); err != nil && ctx.Err() == nil {
					t.log.Warn("redis publish failed", logx.Err(err))
				}
			}
		}
	}
}

func (t *redisTransport) Close() error {
	return t.shutdown(func() error {
		t.mu.Lock()
		defer t.mu.Unlock()
		var errs []error
		for _, c := range append(t.pubs, t.subs...) {
			errs = append(errs, c.Close())
		}
		return errors.Join(errs...)
	})
}
