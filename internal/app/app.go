// Package app wires the notification proxy together: config, logging, the
// event loop with its Daemon, the D-Bus surface, relay transports, the
// notification log and quiet-hour schedules.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/godbus/dbus/v5"
	"github.com/robfig/cron/v3"

	"notithing/internal/clock"
	"notithing/internal/config"
	"notithing/internal/dbusapi"
	"notithing/internal/display"
	"notithing/internal/eventbus"
	"notithing/internal/fullscreen"
	"notithing/internal/loop"
	"notithing/internal/note"
	"notithing/internal/notelog"
	"notithing/internal/observability/pprof"
	"notithing/internal/relay"
	"notithing/internal/runtime/supervisor"
	logx "notithing/pkg/logx"
)

type Options struct {
	// ConfigPath is the config file; empty means config.DefaultPath(),
	// which may be missing.
	ConfigPath string
	// Debug forces debug-level logging regardless of the config.
	Debug bool
	// Conn is used instead of connecting to the session bus.
	Conn *dbus.Conn
	// Renderer defaults to a console renderer on stdout.
	Renderer display.Renderer
	// Hub backs the "memory" relay driver.
	Hub *relay.Hub
}

type App struct {
	opts Options

	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	loop   *loop.Loop
	daemon *Daemon

	renderer display.Renderer
	relay    relay.Transport
	relayCfg relay.Config
	store    notelog.Store
	pprof    *pprof.Server

	sup     *supervisor.Supervisor
	conn    *dbus.Conn
	ownConn bool
	server  *dbusapi.Server

	schedMu sync.Mutex
	sched   *cron.Cron

	reason atomic.Value // StopReason
}

func New(opts Options) (*App, error) {
	path, optional := opts.ConfigPath, false
	if path == "" {
		path, optional = config.DefaultPath(), true
	}
	cfgm := config.NewManager(path, optional)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	rt, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}

	logs, root := logx.New(logConfig(cfg, opts.Debug), nil)
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root.With(logx.String("comp", "config")))

	a := &App{
		opts:     opts,
		cfgm:     cfgm,
		log:      log,
		logs:     logs,
		bus:      eventbus.New(),
		renderer: opts.Renderer,
		relayCfg: relayConfig(cfg.Relay),
	}
	if a.renderer == nil {
		a.renderer = display.NewConsole(os.Stdout)
	}
	a.pprof = pprof.New(root.With(logx.String("comp", "pprof")))
	a.loop = loop.New(clock.Real{}, 256, root.With(logx.String("comp", "loop")))

	if a.relayCfg.Enabled() {
		a.relay, err = relay.Open(a.relayCfg, relay.Options{
			Hostname: cfg.Relay.Hostname,
			Buffer:   cfg.Relay.Buffer,
			Log:      root.With(logx.String("comp", "relay")),
		}, opts.Hub)
		if err != nil {
			return nil, fmt.Errorf("relay: %w", err)
		}
	}

	a.store, err = notelog.Open(notelog.Config{
		Driver:  cfg.Notelog.Driver,
		Path:    rt.NotelogPath,
		Backups: cfg.Notelog.Backups,
		MaxSize: cfg.Notelog.MaxSize,
	}, root.With(logx.String("comp", "notelog")))
	if err != nil {
		if a.relay != nil {
			_ = a.relay.Close()
		}
		return nil, fmt.Errorf("notelog: %w", err)
	}

	var probe fullscreen.Probe = fullscreen.Never{}
	if cmd := strings.TrimSpace(cfg.Fullscreen.Command); cmd != "" {
		probe = fullscreen.NewCommand(cmd, root.With(logx.String("comp", "fullscreen")))
	}

	a.daemon = NewDaemon(cfg, rt, DaemonDeps{
		Clock:    a.loop,
		Renderer: a.renderer,
		Bus:      a.bus,
		Probe:    probe,
		Relay:    a.relay,
		OnIdle:   a.idle,
		Log:      root,
	})
	a.renderer.SetSink(func(ev display.Event) {
		_ = a.loop.Post(func() { a.daemon.HandleDisplayEvent(ev) })
	})
	logs.SetSink(logx.StatusFunc(func(summary, body string) {
		_ = a.loop.Post(func() { a.daemon.Status(summary, body) })
	}))
	return a, nil
}

func pprofConfig(c config.PprofConfig) pprof.Config {
	return pprof.Config{
		Enabled:              c.Enabled,
		Address:              c.Address,
		BlockProfileRate:     c.BlockProfileRate,
		MutexProfileFraction: c.MutexProfileFraction,
	}
}

func logConfig(cfg *config.Config, debug bool) logx.Config {
	lc := cfg.LogConfig()
	if debug {
		lc.Level = "debug"
	}
	return lc
}

// Daemon exposes the core for in-process callers. Use Post/Call to reach it.
func (a *App) Daemon() *Daemon { return a.daemon }

// Call runs fn on the event loop and waits for it.
func (a *App) Call(ctx context.Context, fn func(d *Daemon)) error {
	return a.loop.Call(ctx, func() { fn(a.daemon) })
}

// Done is closed once the app shuts itself down (idle timeout, fatal error)
// or Stop is called.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Reason tells why Done was closed by the app itself.
func (a *App) Reason() StopReason {
	if r, ok := a.reason.Load().(StopReason); ok {
		return r
	}
	if a.Err() != nil {
		return StopFatalError
	}
	return StopUnknown
}

// idle runs on the loop when the inactivity watchdog expires.
func (a *App) idle() {
	a.reason.Store(StopIdle)
	a.sup.Cancel()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.sup.Go("loop", a.loop.Run)
	_ = a.loop.Post(a.daemon.Activity)

	if err := a.startDBus(); err != nil {
		a.sup.Cancel()
		return err
	}

	if a.relay != nil && a.relayCfg.Listening() {
		rc := a.cfgm.Get().Relay
		lim := newRelayLimiter(rc.MaxRate, int(rc.MaxRate))
		deliver := func(n *note.Notification) error {
			return a.loop.Post(func() { a.daemon.Notify(n, false) })
		}
		log := a.log.With(logx.String("comp", "relay"))
		a.sup.GoRestart("relay.intake", func(c context.Context) error {
			return relayIntake(c, a.relay, lim, deliver, log)
		}, supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	}

	if a.store != nil {
		events, unsub := a.bus.Subscribe(64, eventbus.TypeDisplayed)
		a.sup.Go0("notelog", func(c context.Context) {
			defer unsub()
			a.runNotelog(c, events)
		})
	}

	a.pprof.Apply(ctx, pprofConfig(a.cfgm.Get().Pprof))

	if err := a.applySchedule(a.cfgm.Get().Schedule); err != nil {
		a.sup.Cancel()
		return err
	}

	updates := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(updates)
		a.reloadLoop(c, updates)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	if ok, err := sddaemon.SdNotify(false, sddaemon.SdNotifyReady); err != nil {
		a.log.Warn("service manager notification failed", logx.Err(err))
	} else if ok {
		a.log.Debug("notified service manager", logx.String("state", "ready"))
	}
	a.log.Info("notification proxy started", logx.String("config", a.cfgm.Path()))
	return nil
}

func (a *App) startDBus() error {
	a.conn = a.opts.Conn
	if a.conn == nil {
		conn, err := dbus.ConnectSessionBus()
		if err != nil {
			return fmt.Errorf("connect session bus: %w", err)
		}
		a.conn, a.ownConn = conn, true
	}

	dlog := a.log.With(logx.String("comp", "dbus"))
	be := &backend{loop: a.loop, d: a.daemon, log: dlog, timeout: 10 * time.Second}
	h := dbusapi.NewNotifications(be, dbusapi.DefaultServerInfo, time.Now, dlog)
	srv, err := dbusapi.Export(a.conn, h, dlog)
	if err != nil {
		return err
	}
	if err := srv.Acquire(); err != nil {
		return err
	}
	a.server = srv
	a.sup.Go0("dbus.signals", func(c context.Context) { srv.Run(c, a.bus) })
	return nil
}

func (a *App) runNotelog(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d, ok := ev.Data.(eventbus.Displayed)
			if !ok || d.Note == nil {
				continue
			}
			if err := a.store.Append(ctx, notelog.EntryFor(d.Note, ev.Time)); err != nil {
				a.log.Warn("failed to log notification", logx.Uint32("nid", d.Note.ID), logx.Err(err))
			}
		}
	}
}

// applySchedule replaces the running cron schedule.
func (a *App) applySchedule(rules []config.ScheduleRule) error {
	var next *cron.Cron
	if len(rules) > 0 {
		c, err := newSchedule(rules, func(p map[string]bool) {
			_ = a.loop.Post(func() { a.daemon.Set(p) })
		}, a.log.With(logx.String("comp", "schedule")))
		if err != nil {
			return err
		}
		next = c
	}

	a.schedMu.Lock()
	prev := a.sched
	a.sched = next
	if next != nil {
		next.Start()
	}
	a.schedMu.Unlock()
	if prev != nil {
		prev.Stop()
	}
	return nil
}

func (a *App) reloadLoop(ctx context.Context, updates <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-updates:
			if !ok {
				return
			}
		drain:
			for {
				select {
				case newer := <-updates:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

func (a *App) applyConfig(prev, next *config.Config) {
	changed, attrs := config.SummarizeConfigChange(prev, next)
	if len(changed) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	rt, err := next.Resolve()
	if err != nil {
		a.log.Warn("invalid config; keeping previous", logx.Err(err))
		return
	}

	for _, s := range changed {
		switch s {
		case config.SectionLogging, config.SectionDisplay:
			a.logs.Apply(logConfig(next, a.opts.Debug))
		case config.SectionSchedule:
			if err := a.applySchedule(next.Schedule); err != nil {
				a.log.Warn("invalid schedule; keeping previous", logx.Err(err))
			}
		case config.SectionPprof:
			a.pprof.Apply(context.Background(), pprofConfig(next.Pprof))
		case config.SectionRelay, config.SectionNotelog:
			a.log.Warn("config section changed; restart required for changes to take effect",
				logx.String("section", s))
		}
	}
	_ = a.loop.Post(func() { a.daemon.Apply(next, rt, changed) })

	fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}

// Stop shuts everything down. Each step is bounded so one stuck component
// cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return errors.Join(a.closeResources(), a.logs.Close())
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = sddaemon.SdNotify(false, sddaemon.SdNotifyStopping)

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		c, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- fn(c) }()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, loop.ErrStopped) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
		case <-c.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	step("schedule", time.Second, func(c context.Context) error {
		a.schedMu.Lock()
		s := a.sched
		a.sched = nil
		a.schedMu.Unlock()
		if s == nil {
			return nil
		}
		select {
		case <-s.Stop().Done():
			return nil
		case <-c.Done():
			return c.Err()
		}
	})
	step("daemon", time.Second, func(c context.Context) error {
		return a.loop.Call(c, a.daemon.Stop)
	})

	a.sup.Cancel()

	step("dbus", time.Second, func(context.Context) error {
		if a.conn == nil || a.server == nil {
			return nil
		}
		if _, err := a.conn.ReleaseName(dbusapi.BusName); err != nil {
			return err
		}
		if a.ownConn {
			return a.conn.Close()
		}
		return nil
	})
	step("pprof", 2*time.Second, func(c context.Context) error {
		a.pprof.Stop(c)
		return nil
	})
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("resources", 2*time.Second, func(context.Context) error {
		return a.closeResources()
	})

	a.log.Info("stopped")
	return a.logs.Close()
}

// closeResources releases the relay transport and the notification log.
func (a *App) closeResources() error {
	var errs []error
	if a.relay != nil {
		errs = append(errs, a.relay.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
