package app

import (
	"time"

	"notithing/internal/clock"
	"notithing/internal/config"
	"notithing/internal/display"
	"notithing/internal/eventbus"
	"notithing/internal/filter"
	"notithing/internal/flow"
	"notithing/internal/fullscreen"
	"notithing/internal/lifecycle"
	"notithing/internal/note"
	"notithing/internal/relay"
	logx "notithing/pkg/logx"
)

// Daemon is the notification proxy core: admission through the flow
// controller, display and lifetime through the lifecycle manager, and the
// runtime switches. It is not safe for concurrent use; every method must run
// on the event loop that also backs its clock.
type Daemon struct {
	log   logx.Logger
	clock clock.Scheduler
	bus   eventbus.Bus

	flow   *flow.Controller
	life   *lifecycle.Manager
	filter *filter.File

	relay relay.Transport
}

// DaemonDeps are the collaborators a Daemon drives.
type DaemonDeps struct {
	Clock    clock.Scheduler
	Renderer display.Renderer
	Bus      eventbus.Bus
	Probe    fullscreen.Probe
	Relay    relay.Transport // nil when relaying is off
	OnIdle   func()
	Log      logx.Logger
}

func flowConfig(cfg *config.Config, rt config.Runtime) flow.Config {
	return flow.Config{
		Bucket: flow.BucketConfig{
			FillRate:      1,
			Capacity:      float64(cfg.TBF.Size),
			Tick:          rt.Tick,
			IncFactor:     float64(cfg.TBF.Inc),
			DecFactor:     float64(cfg.TBF.Dec),
			MaxMultiplier: rt.MaxMultiplier,
		},
		QueueLen:        cfg.QueueLen,
		PollInterval:    rt.PollInterval,
		UrgencyCheck:    cfg.UrgencyCheck,
		FullscreenCheck: cfg.Fullscreen.Check,
	}
}

func NewDaemon(cfg *config.Config, rt config.Runtime, deps DaemonDeps) *Daemon {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Daemon{
		log:    log.With(logx.String("comp", "daemon")),
		clock:  deps.Clock,
		bus:    deps.Bus,
		relay:  deps.Relay,
		filter: filter.NewFile(rt.FilterFile, rt.PollInterval, deps.Clock.Now, log.With(logx.String("comp", "filter"))),
	}
	d.life = lifecycle.New(lifecycle.Config{
		PopupTimeout:    rt.PopupTimeout,
		HistoryLen:      cfg.HistoryLen,
		ActivityTimeout: rt.ActivityTimeout,
		Cleanup:         cfg.Cleanup,
	}, deps.Clock, deps.Renderer, deps.Bus, deps.OnIdle, log.With(logx.String("comp", "lifecycle")))

	var probe flow.FullscreenProbe
	if deps.Probe != nil {
		probe = deps.Probe
	}
	d.flow = flow.New(flowConfig(cfg, rt), deps.Clock, d.life, d.filter, probe, log.With(logx.String("comp", "flow")))
	return d
}

// Notify admits a notification. Local ones (received over D-Bus) are also
// published to relay peers; relayed ones never are.
func (d *Daemon) Notify(n *note.Notification, local bool) uint32 {
	if local && d.relay != nil {
		if err := d.relay.Send(n); err != nil {
			d.log.Warn("failed to relay notification", logx.String("summary", n.Summary), logx.Err(err))
		}
	}
	return d.flow.Notify(n)
}

func (d *Daemon) CloseNotification(nid uint32) {
	d.life.Close(nid, note.ReasonClosed)
}

// Flush shows the queued notifications now, ignoring plug and fullscreen.
func (d *Daemon) Flush() uint32 {
	return d.flow.Flush(true)
}

func (d *Daemon) List() []uint32 { return d.life.List() }

func (d *Daemon) Cleanup(maxAge time.Duration, maxCount int) int {
	return d.life.Cleanup(maxAge, maxCount)
}

func (d *Daemon) Redisplay() uint32 { return d.life.Redisplay() }

// Activity rearms the inactivity watchdog.
func (d *Daemon) Activity() { d.life.Touch() }

// HandleDisplayEvent feeds renderer input (dismiss, hover, actions) back in.
func (d *Daemon) HandleDisplayEvent(ev display.Event) { d.life.HandleEvent(ev) }

// Status shows one of the proxy's own messages, bypassing flow control.
func (d *Daemon) Status(summary, body string) uint32 {
	return d.life.Display(note.System(summary, body, d.clock.Now()))
}

// Apply pushes hot-reloadable settings from a new config. Only the sections
// listed in changed are touched, so runtime Set calls survive unrelated edits.
func (d *Daemon) Apply(cfg *config.Config, rt config.Runtime, changed []string) {
	for _, s := range changed {
		switch s {
		case config.SectionFlow:
			d.flow.SetUrgentPassthrough(cfg.UrgencyCheck)
			d.flow.SetFullscreenCheck(cfg.Fullscreen.Check)
		case config.SectionTiming:
			d.life.SetPopupTimeout(rt.PopupTimeout)
		case config.SectionDisplay:
			d.life.SetCleanup(cfg.Cleanup)
		case config.SectionFilter:
			d.filter.SetPath(rt.FilterFile)
		}
	}
}

// Stop cancels every pending timer. Nothing is closed.
func (d *Daemon) Stop() {
	d.flow.Stop()
	d.life.Stop()
}
