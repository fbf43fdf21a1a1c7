package app

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"notithing/internal/config"
	"notithing/internal/note"
	"notithing/internal/relay"
	logx "notithing/pkg/logx"
)

func relayConfig(c config.RelayConfig) relay.Config {
	return relay.Config{
		Driver:     c.Driver,
		PubBind:    c.PubBind,
		PubConnect: c.PubConnect,
		SubBind:    c.SubBind,
		SubConnect: c.SubConnect,
		RedisAddr:  c.RedisAddr,
		Channel:    c.Channel,
	}
}

func newRelayLimiter(maxRate float64, burst int) *rate.Limiter {
	if maxRate <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(maxRate), max(burst, 1))
}

// relayIntake drains t whenever it signals readiness and hands every message
// to deliver. Messages beyond the limiter's rate are dropped.
func relayIntake(ctx context.Context, t relay.Transport, lim *rate.Limiter, deliver func(*note.Notification) error, log logx.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.Ready():
		}
		for {
			msg, err := t.Recv()
			if err != nil {
				if errors.Is(err, relay.ErrClosed) {
					return nil
				}
				return err
			}
			if msg == nil {
				break
			}
			if !lim.Allow() {
				log.Debug("relay rate limit exceeded, dropping message",
					logx.String("host", msg.Hostname), logx.String("summary", msg.Note.Summary))
				continue
			}
			log.Debug("relayed notification",
				logx.String("host", msg.Hostname), logx.Time("sent", msg.Time()), logx.String("summary", msg.Note.Summary))
			if err := deliver(msg.Note); err != nil {
				return err
			}
		}
	}
}
