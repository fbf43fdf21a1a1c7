package eventbus

import "notithing/internal/note"

// Event types published by the daemon.
const (
	TypeDisplayed = "note.displayed"
	TypeClosed    = "note.closed"
	TypeAction    = "note.action"
	TypeProperty  = "settings.changed"
)

// Displayed carries the note as rendered, id assigned.
type Displayed struct {
	Note *note.Notification
}

type Closed struct {
	NID    uint32
	Reason note.CloseReason
}

type Action struct {
	NID uint32
	Key string
}

// Property reports a change of one of the boolean daemon settings.
type Property struct {
	Name  string
	Value bool
}
