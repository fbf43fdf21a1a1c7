package display

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notithing/internal/note"
)

func TestConsoleTracksWindows(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	c := NewConsole(&out)
	n := note.New("Build finished", "all green", time.Now())
	n.ID = 7
	n.Actions = []string{"open", "Open log"}

	require.NoError(t, c.Display(n))
	assert.True(t, c.Open(7))
	assert.Contains(t, out.String(), "#7 generic")
	assert.Contains(t, out.String(), "Build finished")
	assert.Contains(t, out.String(), "Open log")

	require.NoError(t, c.Close(7))
	assert.False(t, c.Open(7))
	assert.ErrorIs(t, c.Close(7), ErrNoWindow)
}

func TestConsoleEmit(t *testing.T) {
	t.Parallel()

	c := NewConsole(&bytes.Buffer{})
	c.Emit(Event{NID: 1, Kind: EventDismiss})

	var got []Event
	c.SetSink(func(ev Event) { got = append(got, ev) })
	c.Emit(Event{NID: 2, Kind: EventAction, Key: "open"})
	assert.Equal(t, []Event{{NID: 2, Kind: EventAction, Key: "open"}}, got)
	assert.Equal(t, "action", EventAction.String())
	assert.Equal(t, "unknown", EventKind(0).String())
}
