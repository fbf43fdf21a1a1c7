package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/robfig/cron/v3"
)

const appDir = "notification-thing"

// DefaultPath is $XDG_CONFIG_HOME/notification-thing/config.yaml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appDir, "config.yaml")
}

// DefaultDataPath returns a file path under $XDG_DATA_HOME/notification-thing.
func DefaultDataPath(name string) string {
	return filepath.Join(xdg.DataHome, appDir, name)
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(p string) string {
	p = strings.TrimSpace(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// Runtime is the validated, parsed form of Config.
type Runtime struct {
	ActivityTimeout time.Duration
	PopupTimeout    time.Duration
	PollInterval    time.Duration

	Tick          time.Duration
	MaxDelay      time.Duration
	MaxMultiplier float64

	FilterFile  string
	NotelogPath string
}

var setKeys = map[string]bool{
	"urgent": true, "urgent_toggle": true,
	"plug": true, "plug_toggle": true,
	"cleanup": true, "cleanup_toggle": true,
}

// Resolve validates cfg and parses every duration.
func (c *Config) Resolve() (Runtime, error) {
	var (
		rt   Runtime
		err  error
		errs []error
	)
	if rt.ActivityTimeout, err = ParseTimeoutField("activity_timeout", c.ActivityTimeout); err != nil {
		errs = append(errs, err)
	}
	if rt.PopupTimeout, err = ParseDurationOrDefault("popup_timeout", c.PopupTimeout, 5*time.Second); err != nil {
		errs = append(errs, err)
	}
	if rt.PollInterval, err = ParseDurationOrDefault("poll_interval", c.PollInterval, 60*time.Second); err != nil {
		errs = append(errs, err)
	}
	if rt.Tick, err = ParseDurationOrDefault("tbf.tick", c.TBF.Tick, 15*time.Second); err != nil {
		errs = append(errs, err)
	}
	if rt.MaxDelay, err = ParseDurationOrDefault("tbf.max_delay", c.TBF.MaxDelay, 60*time.Second); err != nil {
		errs = append(errs, err)
	}
	if rt.Tick > 0 && rt.MaxDelay > 0 {
		if rt.MaxDelay < rt.Tick {
			errs = append(errs, fmt.Errorf("tbf.max_delay (%s) must be >= tbf.tick (%s)", rt.MaxDelay, rt.Tick))
		}
		rt.MaxMultiplier = float64(rt.MaxDelay) / float64(rt.Tick)
	}

	if c.QueueLen < 1 {
		errs = append(errs, errors.New("queue_len must be >= 1"))
	}
	if c.TBF.Size < 1 {
		errs = append(errs, errors.New("tbf.size must be >= 1"))
	}
	if c.TBF.Inc < 1 || c.TBF.Dec < 1 {
		errs = append(errs, errors.New("tbf.inc and tbf.dec must be >= 1"))
	}

	switch strings.ToLower(c.Relay.Driver) {
	case "", "none", "zmq", "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("relay.driver: unknown driver %q", c.Relay.Driver))
	}
	if c.Relay.MaxRate < 0 {
		errs = append(errs, errors.New("relay.max_rate must be >= 0"))
	}

	if c.Pprof.BlockProfileRate < 0 || c.Pprof.MutexProfileFraction < 0 {
		errs = append(errs, errors.New("pprof profile rates must be >= 0"))
	}

	for i, r := range c.Schedule {
		if _, err := cron.ParseStandard(r.Cron); err != nil {
			errs = append(errs, fmt.Errorf("schedule[%d].cron: %w", i, err))
		}
		for k := range r.Set {
			if !setKeys[k] {
				errs = append(errs, fmt.Errorf("schedule[%d].set: unknown key %q", i, k))
			}
		}
	}

	rt.FilterFile = ExpandHome(c.FilterFile)
	rt.NotelogPath = ExpandHome(c.Notelog.Path)
	if rt.NotelogPath == "" {
		switch c.Notelog.Driver {
		case "file":
			rt.NotelogPath = DefaultDataPath("notifications.log")
		case "sqlite", "sqlite3":
			rt.NotelogPath = DefaultDataPath("notifications.db")
		}
	}
	return rt, errors.Join(errs...)
}
