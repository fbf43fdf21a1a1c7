// Package display holds the renderer side of the proxy: the interface the
// lifecycle manager drives and a terminal implementation of it.
package display

import (
	"errors"

	"notithing/internal/note"
)

// ErrNoWindow is returned when closing a notification that is not on screen.
var ErrNoWindow = errors.New("no such notification window")

// EventKind is a pointer interaction reported by a renderer.
type EventKind uint8

const (
	EventDismiss EventKind = iota + 1
	EventHover
	EventLeave
	EventAction
)

func (k EventKind) String() string {
	switch k {
	case EventDismiss:
		return "dismiss"
	case EventHover:
		return "hover"
	case EventLeave:
		return "leave"
	case EventAction:
		return "action"
	default:
		return "unknown"
	}
}

// Event is delivered through the sink installed with SetSink.
// Key is set for EventAction only.
type Event struct {
	NID  uint32
	Kind EventKind
	Key  string
}

// Renderer shows notifications. n.ID is assigned before Display is called.
// Implementations may deliver events from any goroutine.
type Renderer interface {
	Display(n *note.Notification) error
	Close(nid uint32) error
	SetSink(sink func(Event))
}
