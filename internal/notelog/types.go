package notelog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"notithing/internal/note"
)

var ErrDisabled = errors.New("notification log disabled")

// Config configures the log. Driver empty or "none" disables it.
type Config struct {
	Driver  string
	Path    string
	Backups int   // file only; rotated copies to keep, 0 disables rotation
	MaxSize int64 // file only; rotate once the file reaches this many bytes
}

// Entry is one logged notification.
type Entry struct {
	At      time.Time
	UID     string
	AppName string
	Urgency note.Urgency
	Summary string
	Body    string
}

// EntryFor builds an entry for n using its plain-text rendition.
func EntryFor(n *note.Notification, at time.Time) Entry {
	summary, body := n.PlainText()
	u, ok := n.Urgency()
	if !ok {
		u = note.UrgencyNormal
	}
	return Entry{
		At:      at,
		UID:     uuid.NewString()[:8],
		AppName: n.AppName,
		Urgency: u,
		Summary: summary,
		Body:    body,
	}
}

type Store interface {
	Append(ctx context.Context, e Entry) error
	Close() error
}
