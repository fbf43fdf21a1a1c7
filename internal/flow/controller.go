// Package flow decides whether an incoming notification is shown now, held
// back and merged into a digest later, or dropped.
//
// Controller is not safe for concurrent use; it expects to be driven from the
// daemon's event loop, with timers scheduled through the same loop.
package flow

import (
	"math"
	"time"

	"notithing/internal/clock"
	"notithing/internal/note"
	"notithing/internal/ring"
	logx "notithing/pkg/logx"
)

// Displayer renders a notification and returns its id (0 if not shown).
type Displayer interface {
	Display(n *note.Notification) uint32
}

// Filter is the content filter; false drops the notification.
type Filter interface {
	Allow(summary, body string) bool
}

// FullscreenProbe reports whether the active window covers the screen.
type FullscreenProbe interface {
	Fullscreen() bool
}

type Config struct {
	Bucket          BucketConfig
	QueueLen        int
	PollInterval    time.Duration
	UrgencyCheck    bool
	FullscreenCheck bool
}

type Controller struct {
	log   logx.Logger
	clock clock.Scheduler

	display Displayer
	filter  Filter
	probe   FullscreenProbe

	bucket *TokenBucket
	buffer *ring.Ring[*note.Notification]

	poll        time.Duration
	urgentCheck bool
	fsCheck     bool
	plugged     bool

	flushTimer clock.Timer
}

// New builds a controller. filter and probe may be nil.
func New(cfg Config, sched clock.Scheduler, display Displayer, filter Filter, probe FullscreenProbe, log logx.Logger) *Controller {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.QueueLen <= 0 {
		cfg.QueueLen = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	return &Controller{
		log:         log,
		clock:       sched,
		display:     display,
		filter:      filter,
		probe:       probe,
		bucket:      NewTokenBucket(cfg.Bucket, sched.Now),
		buffer:      ring.New[*note.Notification](cfg.QueueLen),
		poll:        cfg.PollInterval,
		urgentCheck: cfg.UrgencyCheck,
		fsCheck:     cfg.FullscreenCheck,
	}
}

func (c *Controller) Bucket() *TokenBucket { return c.bucket }
func (c *Controller) Buffered() int        { return c.buffer.Len() }
func (c *Controller) Plugged() bool        { return c.plugged }
func (c *Controller) UrgentPassthrough() bool {
	return c.urgentCheck
}

func (c *Controller) SetUrgentPassthrough(v bool) { c.urgentCheck = v }
func (c *Controller) SetFullscreenCheck(v bool)   { c.fsCheck = v }

// SetPlugged toggles manual suppression. Unplugging releases the buffer.
func (c *Controller) SetPlugged(v bool) {
	c.plugged = v
	if !v && c.buffer.Len() > 0 {
		c.Flush(false)
	}
}

func (c *Controller) blocked() (bool, string) {
	if c.plugged {
		return true, "plug"
	}
	if c.fsCheck && c.probe != nil && c.probe.Fullscreen() {
		return true, "fullscreen window"
	}
	return false, ""
}

// Notify admits n. It returns the displayed id, or 0 when n was queued or dropped.
func (c *Controller) Notify(n *note.Notification) uint32 {
	if c.urgentCheck && n.Critical() {
		c.bucket.Consume(1, true)
		c.log.Debug("urgent message immediate passthru", logx.Float64("tokens", c.bucket.Tokens()))
		return c.display.Display(n)
	}

	if c.filter != nil {
		summary, body := n.PlainText()
		if !c.filter.Allow(summary, body) {
			c.log.Debug("dropped notification due to negative filtering result")
			return 0
		}
	}

	plug, why := c.blocked()
	if plug || !c.bucket.Consume(1, false) {
		delay := c.poll
		if !plug {
			why = "rate limit"
			eta, err := c.bucket.ETA(1)
			if err != nil {
				c.log.Error("token eta failed", logx.Err(err))
			} else {
				delay = eta
			}
		}
		delay = time.Duration(math.Ceil(delay.Seconds())) * time.Second
		c.buffer.Append(n)
		c.log.Debug("queueing notification",
			logx.String("reason", why),
			logx.Duration("flush_in", delay),
			logx.Int("buffered", c.buffer.Len()))
		c.FlushAfter(delay)
		return 0
	}

	if c.buffer.Len() > 0 {
		c.buffer.Append(n)
		c.log.Debug("token-flush of notification buffer")
		c.Flush(false)
		return 0
	}

	c.log.Debug("token-pass", logx.Float64("tokens", c.bucket.Tokens()))
	return c.display.Display(n)
}

func (c *Controller) cancelFlush() {
	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}
}

// FlushAfter replaces any pending flush with one due after d.
func (c *Controller) FlushAfter(d time.Duration) {
	c.cancelFlush()
	c.flushTimer = c.clock.AfterFunc(d, func() {
		c.flushTimer = nil
		c.Flush(false)
	})
}

// Flush delivers the buffer as a single notification or a digest.
// Unless force is set, delivery is postponed by the poll interval while plugged.
// It returns the displayed id, or 0 when nothing was shown.
func (c *Controller) Flush(force bool) uint32 {
	c.cancelFlush()
	if c.buffer.Len() == 0 {
		c.log.Debug("flush event with empty notification buffer")
		return 0
	}
	c.log.Debug("flushing notification buffer",
		logx.Int("msgs", c.buffer.Len()),
		logx.Int("dropped", c.buffer.Dropped()))

	c.bucket.Consume(1, true)
	if !force {
		if plug, why := c.blocked(); plug {
			c.log.Debug("delaying buffer flush", logx.String("reason", why), logx.Duration("delay", c.poll))
			c.FlushAfter(c.poll)
			return 0
		}
	}

	dropped := c.buffer.Dropped()
	items := c.buffer.Flush()
	var out *note.Notification
	if len(items) == 1 {
		out = items[0]
	} else {
		out = note.Digest(items, dropped, c.clock.Now())
	}
	return c.display.Display(out)
}

// Stop cancels a pending flush. Buffered notifications stay queued.
func (c *Controller) Stop() { c.cancelFlush() }
