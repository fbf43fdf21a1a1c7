package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"notithing/internal/note"
)

var (
	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Width(60)
	summaryStyle = lipgloss.NewStyle().Bold(true)
	metaStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	actionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Underline(true)

	urgencyColors = map[note.Urgency]lipgloss.Color{
		note.UrgencyLow:      lipgloss.Color("240"),
		note.UrgencyNormal:   lipgloss.Color("63"),
		note.UrgencyCritical: lipgloss.Color("196"),
	}
)

// Console prints each notification as a bordered box. Pointer interaction is
// emulated through Emit.
type Console struct {
	mu   sync.Mutex
	w    io.Writer
	open map[uint32]struct{}
	sink func(Event)
}

// NewConsole writes to w (stdout when nil).
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w, open: map[uint32]struct{}{}}
}

func (c *Console) SetSink(sink func(Event)) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

func (c *Console) Display(n *note.Notification) error {
	box := Render(n)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintln(c.w, box); err != nil {
		return fmt.Errorf("console display: %w", err)
	}
	c.open[n.ID] = struct{}{}
	return nil
}

func (c *Console) Close(nid uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.open[nid]; !ok {
		return ErrNoWindow
	}
	delete(c.open, nid)
	return nil
}

// Open reports whether nid is currently shown.
func (c *Console) Open(nid uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.open[nid]
	return ok
}

// Emit forwards ev to the sink, if one is installed.
func (c *Console) Emit(ev Event) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink(ev)
	}
}

// Render formats n the way Console prints it.
func Render(n *note.Notification) string {
	u, ok := n.Urgency()
	if !ok {
		u = note.UrgencyNormal
	}
	style := boxStyle.BorderForeground(urgencyColors[u])

	var sb strings.Builder
	meta := fmt.Sprintf("#%d %s", n.ID, n.AppName)
	if n.Icon != "" {
		meta += " [" + n.Icon + "]"
	}
	sb.WriteString(metaStyle.Render(meta))
	sb.WriteString("\n")
	summary, body := n.PlainText()
	sb.WriteString(summaryStyle.Render(summary))
	if body != "" {
		sb.WriteString("\n")
		sb.WriteString(body)
	}
	if pairs := n.ActionPairs(); len(pairs) > 0 {
		labels := make([]string, 0, len(pairs))
		for _, p := range pairs {
			labels = append(labels, actionStyle.Render(p[1]))
		}
		sb.WriteString("\n")
		sb.WriteString(strings.Join(labels, "  "))
	}
	return style.Render(sb.String())
}
