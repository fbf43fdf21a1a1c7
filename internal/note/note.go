// Package note defines the notification record shared by every component
// of the proxy, together with the urgency and close-reason enumerations of
// the freedesktop notification protocol.
package note

import (
	"fmt"
	"maps"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Urgency is the notification priority hint.
type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

var urgencyNames = map[Urgency]string{
	UrgencyLow:      "low",
	UrgencyNormal:   "normal",
	UrgencyCritical: "critical",
}

func (u Urgency) String() string {
	if s, ok := urgencyNames[u]; ok {
		return s
	}
	return "urgency(" + strconv.Itoa(int(u)) + ")"
}

// ParseUrgency accepts a level name (low/normal/critical) or its numeric id (0-2).
func ParseUrgency(s string) (Urgency, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for u, name := range urgencyNames {
		if name == s {
			return u, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("unrecognized urgency level name: %q", s)
	}
	if n < 0 || n > int(UrgencyCritical) {
		return 0, fmt.Errorf("urgency level id must be in 0-2 range: %d", n)
	}
	return Urgency(n), nil
}

// CloseReason is the reason code carried by the NotificationClosed signal.
type CloseReason uint32

const (
	ReasonExpired   CloseReason = 1
	ReasonDismissed CloseReason = 2
	ReasonClosed    CloseReason = 3
	ReasonUndefined CloseReason = 4
)

func (r CloseReason) String() string {
	switch r {
	case ReasonExpired:
		return "expired"
	case ReasonDismissed:
		return "dismissed"
	case ReasonClosed:
		return "closed"
	case ReasonUndefined:
		return "undefined"
	default:
		return "reason(" + strconv.Itoa(int(r)) + ")"
	}
}

// ParseCloseReason is the reverse lookup of CloseReason.String.
func ParseCloseReason(s string) (CloseReason, error) {
	for _, r := range []CloseReason{ReasonExpired, ReasonDismissed, ReasonClosed, ReasonUndefined} {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown close reason %q", s)
}

// TimeoutDefault is the wire value asking the server to pick the expiry.
const TimeoutDefault int32 = -1

// Plain is the markup-free rendition of summary and body.
type Plain struct {
	Summary string `json:"summary"`
	Body    string `json:"body"`
}

// Notification is one request as received from a client or relay peer.
// Treat it as immutable once handed to the flow controller; use Clone before mutating.
type Notification struct {
	ID uint32

	AppName    string
	ReplacesID uint32
	Icon       string
	Summary    string
	Body       string
	Actions    []string
	Hints      map[string]any
	Timeout    int32 // ms; TimeoutDefault = server default, <= 0 never expires

	Created time.Time
	Plain   *Plain
}

// New builds a generic notification created at now.
func New(summary, body string, now time.Time) *Notification {
	return &Notification{
		AppName: "generic",
		Summary: summary,
		Body:    body,
		Timeout: TimeoutDefault,
		Hints:   map[string]any{},
		Created: now,
	}
}

// System builds a critical-urgency notification used for the proxy's own status messages.
func System(summary, body string, now time.Time) *Notification {
	n := New(summary, body, now)
	n.AppName = "notification-thing"
	n.Hints["urgency"] = byte(UrgencyCritical)
	return n
}

// Urgency reads the urgency hint. ok is false when the hint is absent,
// unparseable or outside the low..critical range.
func (n *Notification) Urgency() (u Urgency, ok bool) {
	v, found := n.Hints["urgency"]
	if !found {
		return 0, false
	}
	var level int64
	switch x := v.(type) {
	case byte:
		level = int64(x)
	case int:
		level = int64(x)
	case int8:
		level = int64(x)
	case int16:
		level = int64(x)
	case int32:
		level = int64(x)
	case int64:
		level = x
	case uint:
		level = clampUint(uint64(x))
	case uint16:
		level = int64(x)
	case uint32:
		level = int64(x)
	case uint64:
		level = clampUint(x)
	case float64:
		if math.IsNaN(x) || x < 0 || x >= float64(UrgencyCritical)+1 {
			return 0, false
		}
		level = int64(x)
	case string:
		u, err := ParseUrgency(x)
		return u, err == nil
	default:
		return 0, false
	}
	if level < int64(UrgencyLow) || level > int64(UrgencyCritical) {
		return 0, false
	}
	return Urgency(level), true
}

func clampUint(x uint64) int64 {
	if x > uint64(UrgencyCritical) {
		return -1
	}
	return int64(x)
}

// Critical reports whether the urgency hint is critical.
func (n *Notification) Critical() bool {
	u, ok := n.Urgency()
	return ok && u == UrgencyCritical
}

var markupTag = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)

var markupEntities = strings.NewReplacer(
	"&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&#39;", "'", "&amp;", "&",
)

// PlainText returns the cached plain pair, or derives one by stripping body markup.
func (n *Notification) PlainText() (summary, body string) {
	if n.Plain != nil {
		return n.Plain.Summary, n.Plain.Body
	}
	return n.Summary, markupEntities.Replace(markupTag.ReplaceAllString(n.Body, ""))
}

// Clone returns a copy that shares nothing mutable with n.
func (n *Notification) Clone() *Notification {
	cp := *n
	cp.Actions = slices.Clone(n.Actions)
	cp.Hints = maps.Clone(n.Hints)
	if n.Plain != nil {
		p := *n.Plain
		cp.Plain = &p
	}
	return &cp
}

// ActionPairs splits the flat [key, label, key, label, ...] action list.
func (n *Notification) ActionPairs() [][2]string {
	out := make([][2]string, 0, len(n.Actions)/2)
	for i := 0; i+1 < len(n.Actions); i += 2 {
		out = append(out, [2]string{n.Actions[i], n.Actions[i+1]})
	}
	return out
}
