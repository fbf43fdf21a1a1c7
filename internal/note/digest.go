package note

import (
	"fmt"
	"strings"
	"time"
)

const (
	DigestAppName = "notification-feed"
	DigestIcon    = "FBReader"
)

// Digest merges buffered notifications into a single feed message.
// dropped is the number of entries evicted from the buffer before the flush.
func Digest(notes []*Notification, dropped int, now time.Time) *Notification {
	summary := "Feed"
	if dropped > 0 {
		summary = fmt.Sprintf("Feed (%d dropped)", dropped)
	}
	parts := make([]string, 0, len(notes))
	for _, n := range notes {
		parts = append(parts, fmt.Sprintf("--- %s\n  %s", n.Summary, n.Body))
	}
	d := New(summary, strings.Join(parts, "\n\n"), now)
	d.AppName = DigestAppName
	d.Icon = DigestIcon
	return d
}
