package relay

import (
	"errors"
	"fmt"
)

// Config selects a driver and the endpoints to attach.
type Config struct {
	Driver     string // zmq | redis | memory
	PubBind    []string
	PubConnect []string
	SubBind    []string
	SubConnect []string
	RedisAddr  string
	Channel    string
}

// Enabled reports whether a driver is configured.
func (c Config) Enabled() bool {
	return c.Driver != "" && c.Driver != "none"
}

// Listening reports whether the transport will receive anything.
func (c Config) Listening() bool {
	return len(c.SubBind) > 0 || len(c.SubConnect) > 0 || (c.Driver == "redis" && c.RedisAddr != "")
}

// Open creates the configured transport and attaches every endpoint.
// hub is only used by the memory driver.
func Open(cfg Config, o Options, hub *Hub) (Transport, error) {
	var (
		t   Transport
		err error
	)
	switch cfg.Driver {
	case "zmq":
		t, err = NewZMQ(o)
	case "redis":
		t = NewRedis(o, cfg.Channel)
		if cfg.RedisAddr != "" && len(cfg.PubBind)+len(cfg.PubConnect)+len(cfg.SubBind)+len(cfg.SubConnect) == 0 {
			cfg.PubConnect = []string{cfg.RedisAddr}
			cfg.SubConnect = []string{cfg.RedisAddr}
		}
	case "memory":
		if hub == nil {
			return nil, errors.New("memory relay needs a hub")
		}
		t = NewMemory(hub, o)
	default:
		return nil, fmt.Errorf("unknown relay driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	steps := []struct {
		addrs []string
		fn    func(string) error
	}{
		{cfg.PubBind, t.BindPub},
		{cfg.PubConnect, t.Connect},
		{cfg.SubBind, t.BindSub},
		{cfg.SubConnect, t.Subscribe},
	}
	for _, s := range steps {
		for _, a := range s.addrs {
			if err := s.fn(a); err != nil {
				_ = t.Close()
				return nil, err
			}
		}
	}
	return t, nil
}
