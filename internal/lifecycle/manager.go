// Package lifecycle owns every notification from the moment it is shown until
// it is closed: id assignment, replacement, expiry timers with hover pause,
// the redisplay history and the inactivity watchdog.
//
// Manager is not safe for concurrent use; drive it from the event loop.
package lifecycle

import (
	"errors"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"notithing/internal/clock"
	"notithing/internal/display"
	"notithing/internal/eventbus"
	"notithing/internal/note"
	"notithing/internal/ring"
	logx "notithing/pkg/logx"
)

const maxNID = 1 << 30

type Config struct {
	PopupTimeout    time.Duration // used for notes asking for the default timeout
	HistoryLen      int
	ActivityTimeout time.Duration // <= 0 disables the watchdog
	Cleanup         bool
}

type entry struct {
	note      *note.Notification
	shown     time.Time
	timed     bool
	timer     clock.Timer
	started   time.Time
	remaining time.Duration
}

type archived struct {
	note  *note.Notification
	shown time.Time
}

type Manager struct {
	log      logx.Logger
	clock    clock.Scheduler
	renderer display.Renderer
	bus      eventbus.Bus

	popupTimeout time.Duration
	activity     time.Duration
	cleanup      bool

	seq     uint32
	live    map[uint32]*entry
	history *ring.Ring[archived]

	watchdog clock.Timer
	onIdle   func()
}

// New creates a manager. bus may be nil. onIdle is called when the watchdog
// fires with nothing on screen.
func New(cfg Config, sched clock.Scheduler, renderer display.Renderer, bus eventbus.Bus, onIdle func(), log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.PopupTimeout <= 0 {
		cfg.PopupTimeout = 5 * time.Second
	}
	if cfg.HistoryLen <= 0 {
		cfg.HistoryLen = 20
	}
	return &Manager{
		log:          log,
		clock:        sched,
		renderer:     renderer,
		bus:          bus,
		popupTimeout: cfg.PopupTimeout,
		activity:     cfg.ActivityTimeout,
		cleanup:      cfg.Cleanup,
		live:         map[uint32]*entry{},
		history:      ring.New[archived](cfg.HistoryLen),
		onIdle:       onIdle,
	}
}

// TimeoutCleanup reports whether new notifications get expiry timers.
func (m *Manager) TimeoutCleanup() bool { return m.cleanup }

// SetCleanup toggles expiry timers for notifications displayed from now on.
func (m *Manager) SetCleanup(v bool) { m.cleanup = v }

func (m *Manager) SetPopupTimeout(d time.Duration) {
	if d > 0 {
		m.popupTimeout = d
	}
}

func (m *Manager) publish(typ string, data any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{Type: typ, Time: m.clock.Now(), Data: data})
}

func (m *Manager) allocate() uint32 {
	for {
		m.seq++
		if m.seq > maxNID {
			m.seq = 1
		}
		if _, taken := m.live[m.seq]; !taken {
			return m.seq
		}
	}
}

// Display shows n and returns its id, or 0 when the renderer failed.
// A note replacing a live id closes that entry and takes over its id.
func (m *Manager) Display(n *note.Notification) uint32 {
	return m.show(n, true)
}

func (m *Manager) show(n *note.Notification, archive bool) uint32 {
	var nid uint32
	if _, ok := m.live[n.ReplacesID]; ok && n.ReplacesID != 0 {
		m.Close(n.ReplacesID, note.ReasonClosed)
		nid = n.ReplacesID
	} else {
		nid = m.allocate()
	}
	n.ID = nid
	if n.Timeout == note.TimeoutDefault {
		n.Timeout = int32(m.popupTimeout / time.Millisecond)
	}

	if err := m.renderer.Display(n); err != nil {
		m.log.Error("failed to display notification",
			logx.Uint32("nid", nid), logx.String("summary", n.Summary), logx.Err(err))
		return 0
	}

	now := m.clock.Now()
	e := &entry{note: n, shown: now}
	m.live[nid] = e
	if m.cleanup && n.Timeout > 0 {
		e.timed = true
		e.remaining = time.Duration(n.Timeout) * time.Millisecond
		m.startTimer(nid, e)
	}
	if archive {
		m.history.Append(archived{note: n.Clone(), shown: now})
	}
	m.publish(eventbus.TypeDisplayed, eventbus.Displayed{Note: n.Clone()})

	m.log.Debug("created notification",
		logx.Uint32("nid", nid), logx.Bool("expires", e.timed), logx.Duration("timeout", e.remaining))
	return nid
}

func (m *Manager) startTimer(nid uint32, e *entry) {
	e.started = m.clock.Now()
	e.timer = m.clock.AfterFunc(e.remaining, func() {
		e.timer = nil
		m.Close(nid, note.ReasonExpired)
	})
}

func (m *Manager) stopTimer(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// Close removes nid and tells the renderer to drop its window.
// nid 0 closes everything. It reports whether a notification was closed.
func (m *Manager) Close(nid uint32, reason note.CloseReason) bool {
	if nid == 0 {
		return m.CloseAll(reason) > 0
	}
	e, ok := m.live[nid]
	if ok {
		m.stopTimer(e)
		delete(m.live, nid)
	}
	if err := m.renderer.Close(nid); err != nil {
		if !errors.Is(err, display.ErrNoWindow) {
			m.log.Warn("failed to close notification window", logx.Uint32("nid", nid), logx.Err(err))
		}
		if !ok {
			return false
		}
	}
	m.log.Debug("closed notification", logx.Uint32("nid", nid), logx.String("reason", reason.String()))
	m.publish(eventbus.TypeClosed, eventbus.Closed{NID: nid, Reason: reason})
	return true
}

// CloseAll closes every live notification and returns how many were closed.
func (m *Manager) CloseAll(reason note.CloseReason) int {
	closed := 0
	for _, nid := range m.List() {
		if m.Close(nid, reason) {
			closed++
		}
	}
	return closed
}

// Hover pauses the expiry countdown of nid.
func (m *Manager) Hover(nid uint32) {
	e, ok := m.live[nid]
	if !ok || e.timer == nil {
		return
	}
	m.stopTimer(e)
	e.remaining -= m.clock.Now().Sub(e.started)
}

// Leave resumes the countdown paused by Hover, never with less than a second left.
func (m *Manager) Leave(nid uint32) {
	e, ok := m.live[nid]
	if !ok || !e.timed {
		return
	}
	if e.timer != nil {
		m.Hover(nid)
	}
	e.remaining = max(e.remaining, time.Second)
	m.startTimer(nid, e)
}

// HandleEvent dispatches a renderer event.
func (m *Manager) HandleEvent(ev display.Event) {
	switch ev.Kind {
	case display.EventDismiss:
		m.Close(ev.NID, note.ReasonDismissed)
	case display.EventHover:
		m.Hover(ev.NID)
	case display.EventLeave:
		m.Leave(ev.NID)
	case display.EventAction:
		if _, ok := m.live[ev.NID]; !ok {
			return
		}
		m.publish(eventbus.TypeAction, eventbus.Action{NID: ev.NID, Key: ev.Key})
		m.Close(ev.NID, note.ReasonDismissed)
	default:
		m.log.Warn("unknown display event", logx.Uint32("nid", ev.NID), logx.String("kind", ev.Kind.String()))
	}
}

// List returns live ids in ascending order.
func (m *Manager) List() []uint32 {
	ids := make([]uint32, 0, len(m.live))
	for nid := range m.live {
		ids = append(ids, nid)
	}
	slices.Sort(ids)
	return ids
}

func (m *Manager) Live() int { return len(m.live) }

// Note returns the live notification for nid.
func (m *Manager) Note(nid uint32) (*note.Notification, bool) {
	e, ok := m.live[nid]
	if !ok {
		return nil, false
	}
	return e.note, true
}

// Cleanup expires notifications shown longer than maxAge ago (if maxAge > 0),
// then the oldest ones until at most maxCount remain (if maxCount > 0).
func (m *Manager) Cleanup(maxAge time.Duration, maxCount int) int {
	now := m.clock.Now()
	ids := m.List()
	slices.SortStableFunc(ids, func(a, b uint32) int {
		return m.live[a].shown.Compare(m.live[b].shown)
	})

	closed := 0
	keep := ids[:0]
	for _, nid := range ids {
		if maxAge > 0 && now.Sub(m.live[nid].shown) > maxAge {
			if m.Close(nid, note.ReasonExpired) {
				closed++
			}
			continue
		}
		keep = append(keep, nid)
	}
	if maxCount > 0 {
		for len(keep) > maxCount {
			if m.Close(keep[0], note.ReasonExpired) {
				closed++
			}
			keep = keep[1:]
		}
	}
	return closed
}

// Redisplay shows the most recently archived notification again, noting how
// long ago it was first shown. It returns 0 if the history is empty.
func (m *Manager) Redisplay() uint32 {
	a, ok := m.history.Pop()
	if !ok {
		m.log.Debug("redisplay requested with empty history")
		return 0
	}
	n := a.note.Clone()
	n.ReplacesID = 0
	n.Plain = nil
	if !a.shown.IsZero() {
		n.Body += "\n\n(shown " + humanize.RelTime(a.shown, m.clock.Now(), "ago", "from now") + ")"
	}
	return m.show(n, false)
}

// Touch records inbound activity and rearms the watchdog.
func (m *Manager) Touch() {
	if m.activity <= 0 {
		return
	}
	if m.watchdog != nil {
		m.watchdog.Stop()
	}
	m.watchdog = m.clock.AfterFunc(m.activity, m.idle)
}

func (m *Manager) idle() {
	m.watchdog = nil
	if len(m.live) > 0 {
		m.log.Debug("ignoring inactivity timeout due to open notifications",
			logx.Int("live", len(m.live)), logx.Duration("retry_in", m.activity))
		m.Touch()
		return
	}
	m.log.Info("inactivity timeout reached, exiting", logx.Duration("timeout", m.activity))
	if m.onIdle != nil {
		m.onIdle()
	}
}

// Stop cancels every pending timer without closing anything.
func (m *Manager) Stop() {
	if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}
	for _, e := range m.live {
		m.stopTimer(e)
	}
}
