// Package fullscreen answers whether the active window covers the screen.
package fullscreen

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"time"

	logx "notithing/pkg/logx"
)

// Probe reports whether the active window is fullscreen.
type Probe interface {
	Fullscreen() bool
}

// Never is a Probe for sessions without any way to tell.
type Never struct{}

func (Never) Fullscreen() bool { return false }

// Command runs an external helper (e.g. a small xprop/swaymsg script) and
// treats exit status 0 as fullscreen. Fullscreen never waits for the helper:
// it answers from the last result and refreshes it in the background once it
// is older than CacheFor. Until the first run completes the answer is false.
type Command struct {
	Args     []string
	Timeout  time.Duration
	CacheFor time.Duration
	Now      func() time.Time
	Log      logx.Logger

	mu      sync.Mutex
	at      time.Time
	result  bool
	running bool
}

// NewCommand splits cmdline on whitespace.
func NewCommand(cmdline string, log logx.Logger) *Command {
	return &Command{
		Args:     strings.Fields(cmdline),
		Timeout:  2 * time.Second,
		CacheFor: time.Second,
		Now:      time.Now,
		Log:      log,
	}
}

func (c *Command) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Command) Fullscreen() bool {
	if len(c.Args) == 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	stale := c.at.IsZero() || c.now().Sub(c.at) >= c.CacheFor
	if stale && !c.running {
		c.running = true
		go c.Refresh()
	}
	return c.result
}

// Refresh runs the helper now and stores the result.
func (c *Command) Refresh() bool {
	if len(c.Args) == 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()
	err := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...).Run()
	var exitErr *exec.ExitError
	result := err == nil
	if err != nil && !errors.As(err, &exitErr) && !c.Log.IsZero() {
		c.Log.Debug("fullscreen probe failed", logx.String("cmd", c.Args[0]), logx.Err(err))
	}

	c.mu.Lock()
	c.result = result
	c.at = c.now()
	c.running = false
	c.mu.Unlock()
	return result
}
