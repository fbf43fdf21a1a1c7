// Package dbusapi exports the org.freedesktop.Notifications interface,
// its property set and its signals on a godbus connection.
package dbusapi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"

	"notithing/internal/eventbus"
	"notithing/internal/note"
	logx "notithing/pkg/logx"
)

const (
	BusName   = "org.freedesktop.Notifications"
	Path      = dbus.ObjectPath("/org/freedesktop/Notifications")
	Interface = "org.freedesktop.Notifications"

	errInvalidArgs = "org.freedesktop.DBus.Error.InvalidArgs"
)

// ErrNameTaken is returned by Acquire when another daemon owns BusName.
var ErrNameTaken = errors.New("notification bus name already owned")

// Params are the boolean switches exposed through Get/Set and D-Bus properties.
var Params = []string{"urgent", "plug", "cleanup"}

// Capabilities advertised by GetCapabilities.
var Capabilities = []string{"body", "persistence", "icon-static"}

type ServerInfo struct {
	Name, Vendor, Version, SpecVersion string
}

var DefaultServerInfo = ServerInfo{
	Name:        "notification-thing",
	Vendor:      "notithing",
	Version:     "git",
	SpecVersion: "1.2",
}

// Backend carries out the calls. Methods are invoked from godbus goroutines.
type Backend interface {
	// Activity is called once per inbound call before it is dispatched.
	Activity()
	Notify(n *note.Notification) uint32
	CloseNotification(nid uint32)
	Flush()
	List() []uint32
	Cleanup(maxAge time.Duration, maxCount int) int
	Redisplay() uint32
	Set(params map[string]bool)
	Get(name string) (bool, bool)
	GetAll() map[string]bool
}

type emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...any) error
}

// Notifications is the exported method table. Only methods returning
// *dbus.Error are visible on the bus.
type Notifications struct {
	backend Backend
	info    ServerInfo
	now     func() time.Time
	log     logx.Logger
}

func NewNotifications(b Backend, info ServerInfo, now func() time.Time, log logx.Logger) *Notifications {
	if now == nil {
		now = time.Now
	}
	return &Notifications{backend: b, info: info, now: now, log: log}
}

func (h *Notifications) GetServerInformation() (string, string, string, string, *dbus.Error) {
	h.backend.Activity()
	return h.info.Name, h.info.Vendor, h.info.Version, h.info.SpecVersion, nil
}

func (h *Notifications) GetCapabilities() ([]string, *dbus.Error) {
	h.backend.Activity()
	return slices.Clone(Capabilities), nil
}

func (h *Notifications) Notify(
	appName string, replacesID uint32, icon, summary, body string,
	actions []string, hints map[string]dbus.Variant, timeout int32,
) (uint32, *dbus.Error) {
	h.backend.Activity()
	n := &note.Notification{
		AppName:    appName,
		ReplacesID: replacesID,
		Icon:       icon,
		Summary:    summary,
		Body:       body,
		Actions:    actions,
		Hints:      UnwrapHints(hints),
		Timeout:    timeout,
		Created:    h.now(),
	}
	h.log.Debug("notify call",
		logx.String("app", appName), logx.Uint32("replaces", replacesID), logx.String("summary", summary))
	return h.backend.Notify(n), nil
}

func (h *Notifications) CloseNotification(nid uint32) *dbus.Error {
	h.backend.Activity()
	h.log.Debug("close call", logx.Uint32("nid", nid))
	h.backend.CloseNotification(nid)
	return nil
}

func (h *Notifications) Flush() *dbus.Error {
	h.backend.Activity()
	h.log.Debug("manual flush of the notification buffer")
	h.backend.Flush()
	return nil
}

func (h *Notifications) List() ([]uint32, *dbus.Error) {
	h.backend.Activity()
	ids := h.backend.List()
	if ids == nil {
		ids = []uint32{}
	}
	return ids, nil
}

// Cleanup closes notifications older than timeout seconds and trims the rest
// to maxCount. Zero disables either limit.
func (h *Notifications) Cleanup(timeout float64, maxCount uint32) (uint32, *dbus.Error) {
	h.backend.Activity()
	if timeout < 0 {
		return 0, dbus.NewError(errInvalidArgs, []any{"timeout must not be negative"})
	}
	age := time.Duration(timeout * float64(time.Second))
	return uint32(h.backend.Cleanup(age, int(maxCount))), nil
}

func (h *Notifications) Redisplay() (uint32, *dbus.Error) {
	h.backend.Activity()
	return h.backend.Redisplay(), nil
}

func (h *Notifications) Set(params map[string]bool) *dbus.Error {
	h.backend.Activity()
	h.backend.Set(params)
	return nil
}

func (h *Notifications) Get(name string) (bool, *dbus.Error) {
	h.backend.Activity()
	v, ok := h.backend.Get(name)
	if !ok {
		return false, dbus.NewError(errInvalidArgs, []any{fmt.Sprintf("unknown parameter %q", name)})
	}
	return v, nil
}

func (h *Notifications) GetAll() (map[string]bool, *dbus.Error) {
	h.backend.Activity()
	return h.backend.GetAll(), nil
}

var signals = []introspect.Signal{
	{Name: "NotificationClosed", Args: []introspect.Arg{
		{Name: "id", Type: "u", Direction: "out"},
		{Name: "reason", Type: "u", Direction: "out"},
	}},
	{Name: "ActionInvoked", Args: []introspect.Arg{
		{Name: "id", Type: "u", Direction: "out"},
		{Name: "action_key", Type: "s", Direction: "out"},
	}},
}

// Server owns the exported objects and turns daemon events into signals.
type Server struct {
	conn    *dbus.Conn
	emitter emitter
	props   *prop.Properties
	log     logx.Logger
}

// Export registers the method table, properties and introspection data on
// conn. It does not claim BusName; see Acquire.
func Export(conn *dbus.Conn, h *Notifications, log logx.Logger) (*Server, error) {
	if err := conn.Export(h, Path, Interface); err != nil {
		return nil, fmt.Errorf("export %s: %w", Interface, err)
	}

	initial := h.backend.GetAll()
	props := prop.Map{Interface: {}}
	for _, name := range Params {
		props[Interface][name] = &prop.Prop{
			Value:    initial[name],
			Writable: true,
			Emit:     prop.EmitTrue,
			Callback: func(c *prop.Change) *dbus.Error {
				v, ok := c.Value.(bool)
				if !ok {
					return prop.ErrInvalidArg
				}
				h.backend.Activity()
				h.backend.Set(map[string]bool{c.Name: v})
				return nil
			},
		}
	}
	p, err := prop.Export(conn, Path, props)
	if err != nil {
		return nil, fmt.Errorf("export properties: %w", err)
	}

	node := &introspect.Node{
		Name: string(Path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       Interface,
				Methods:    introspect.Methods(h),
				Signals:    signals,
				Properties: p.Introspection(Interface),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), Path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, fmt.Errorf("export introspection: %w", err)
	}
	return &Server{conn: conn, emitter: conn, props: p, log: log}, nil
}

// Acquire requests BusName without queueing behind a current owner.
func (s *Server) Acquire() error {
	reply, err := s.conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request name %s: %w", BusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return ErrNameTaken
	}
	s.log.Info("acquired bus name", logx.String("name", BusName))
	return nil
}

// Run forwards closed/action/settings events from bus until ctx ends.
func (s *Server) Run(ctx context.Context, bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(64, eventbus.TypeClosed, eventbus.TypeAction, eventbus.TypeProperty)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.forward(ev)
		}
	}
}

func (s *Server) forward(ev eventbus.Event) {
	var err error
	switch d := ev.Data.(type) {
	case eventbus.Closed:
		err = s.emitter.Emit(Path, Interface+".NotificationClosed", d.NID, uint32(d.Reason))
	case eventbus.Action:
		err = s.emitter.Emit(Path, Interface+".ActionInvoked", d.NID, d.Key)
	case eventbus.Property:
		if s.props == nil || !slices.Contains(Params, d.Name) {
			return
		}
		// Changes made through Properties.Set are already stored and emitted.
		if cur, ok := s.props.GetMust(Interface, d.Name).(bool); ok && cur == d.Value {
			return
		}
		s.props.SetMust(Interface, d.Name, d.Value)
	}
	if err != nil {
		s.log.Warn("failed to emit signal", logx.String("event", ev.Type), logx.Err(err))
	}
}
