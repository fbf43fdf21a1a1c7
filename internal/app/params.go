package app

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"notithing/internal/eventbus"
	logx "notithing/pkg/logx"
)

func enabled(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}

// take removes name from params. A truthy name+"_toggle" entry wins and
// flips cur instead.
func take(params map[string]bool, name string, cur bool) (v, ok bool) {
	toggle, hasToggle := params[name+"_toggle"]
	delete(params, name+"_toggle")
	v, ok = params[name]
	delete(params, name)
	if hasToggle && toggle {
		return !cur, true
	}
	return v, ok
}

// Set applies runtime switches: urgent (critical messages skip flow control),
// plug (hold everything else back) and cleanup (expire notifications on
// timeout). Each accepts a *_toggle variant. Changes are announced as status
// messages and PropertiesChanged signals.
func (d *Daemon) Set(params map[string]bool) {
	p := maps.Clone(params)
	if p == nil {
		p = map[string]bool{}
	}

	if v, ok := take(p, "urgent", d.flow.UrgentPassthrough()); ok {
		d.flow.SetUrgentPassthrough(v)
		d.log.Info("urgent messages passthrough "+enabled(v), logx.Notify())
		d.publishParam("urgent", v)
	}

	if v, ok := take(p, "plug", d.flow.Plugged()); ok {
		if v {
			body := "All messages will be stalled"
			if d.flow.UrgentPassthrough() {
				body = "Only urgent messages will be passed through"
			}
			d.log.Info("queue is plugged", logx.Body(body), logx.Notify())
		} else {
			d.log.Info("queue is unplugged", logx.Int("buffered", d.flow.Buffered()), logx.Notify())
		}
		d.flow.SetPlugged(v)
		d.publishParam("plug", v)
	}

	if v, ok := take(p, "cleanup", d.life.TimeoutCleanup()); ok {
		d.life.SetCleanup(v)
		d.log.Info("cleanup timeout is "+enabled(v), logx.Notify())
		d.publishParam("cleanup", v)
	}

	if len(p) > 0 {
		keys := slices.Sorted(maps.Keys(p))
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%t", k, p[k]))
		}
		d.log.Warn("unrecognized parameters", logx.Body(strings.Join(parts, ", ")), logx.Notify())
	}
}

// Get returns one switch; ok is false for unknown names.
func (d *Daemon) Get(name string) (v, ok bool) {
	switch name {
	case "urgent":
		return d.flow.UrgentPassthrough(), true
	case "plug":
		return d.flow.Plugged(), true
	case "cleanup":
		return d.life.TimeoutCleanup(), true
	}
	return false, false
}

func (d *Daemon) GetAll() map[string]bool {
	return map[string]bool{
		"urgent":  d.flow.UrgentPassthrough(),
		"plug":    d.flow.Plugged(),
		"cleanup": d.life.TimeoutCleanup(),
	}
}

func (d *Daemon) publishParam(name string, v bool) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{
		Type: eventbus.TypeProperty,
		Time: d.clock.Now(),
		Data: eventbus.Property{Name: name, Value: v},
	})
}
