package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notithing/internal/note"
)

func TestBuildNote(t *testing.T) {
	t.Parallel()

	o := options{appName: "backup", urgency: "critical", expire: 2.5, icons: listFlag{"drive", "disk"}, categories: listFlag{"transfer"}}
	n, err := buildNote(o, []string{"Backup done", "42 files"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "backup", n.AppName)
	assert.Equal(t, "42 files", n.Body)
	assert.Equal(t, int32(2500), n.Timeout)
	assert.Equal(t, "drive,disk", n.Icon)
	assert.Equal(t, "transfer", n.Hints["category"])
	assert.True(t, n.Critical())
}

func TestBuildNoteDefaultsAndStdin(t *testing.T) {
	t.Parallel()

	n, err := buildNote(options{appName: "notify-net", stdin: true}, []string{"hi"}, strings.NewReader("from\nstdin"))
	require.NoError(t, err)
	assert.Equal(t, "from\nstdin", n.Body)
	assert.Equal(t, note.TimeoutDefault, n.Timeout)
	assert.NotContains(t, n.Hints, "urgency")

	_, err = buildNote(options{stdin: true}, []string{"hi", "body"}, strings.NewReader("x"))
	assert.Error(t, err)
	_, err = buildNote(options{}, nil, nil)
	assert.Error(t, err)
	_, err = buildNote(options{urgency: "loud"}, []string{"hi"}, nil)
	assert.Error(t, err)
}

func TestRunNeedsDestination(t *testing.T) {
	t.Parallel()

	assert.ErrorContains(t, run(options{}, []string{"hi"}, nil), "destination")
}
