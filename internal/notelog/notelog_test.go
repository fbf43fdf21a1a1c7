package notelog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notithing/internal/note"
	logx "notithing/pkg/logx"
)

var at = time.Date(2024, 3, 1, 12, 30, 0, 0, time.Local)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()

	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, st)
	}
	_, err := Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err, "path required")
	_, err = Open(Config{Driver: "tape", Path: "x"}, logx.Nop())
	assert.Error(t, err)
}

func TestEntryFor(t *testing.T) {
	t.Parallel()

	n := note.New("s", "<b>bold</b>", at)
	n.Hints["urgency"] = byte(note.UrgencyLow)
	e := EntryFor(n, at)
	assert.Equal(t, "bold", e.Body)
	assert.Equal(t, note.UrgencyLow, e.Urgency)
	assert.Len(t, e.UID, 8)
}

func TestFileFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "log", "notes.log")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Append(context.Background(), Entry{
		At: at, UID: "abcd1234", Urgency: note.UrgencyCritical, Summary: "Disk", Body: "line one\nline two",
	}))
	require.NoError(t, st.Append(context.Background(), Entry{At: at, UID: "ffff0000", Urgency: note.UrgencyNormal, Summary: "Bare"}))
	require.NoError(t, st.Append(context.Background(), Entry{At: at, UID: "0000ffff", Summary: "Quiet"}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"2024-03-01 12:30:00 :: abcd1234 ! :: -- Disk",
		"2024-03-01 12:30:00 :: abcd1234 ! ::    line one",
		"2024-03-01 12:30:00 :: abcd1234 ! ::    line two",
		"2024-03-01 12:30:00 :: ffff0000   :: -- Bare",
		"2024-03-01 12:30:00 :: 0000ffff . :: -- Quiet",
		"",
	}, "\n"), string(b))
}

func TestFileRotation(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "notes.log")
	st, err := Open(Config{Driver: "file", Path: path, Backups: 2, MaxSize: 100}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	e := Entry{At: at, UID: "u", Summary: strings.Repeat("x", 80)}
	for i := 0; i < 4; i++ {
		require.NoError(t, st.Append(context.Background(), e))
	}

	for _, p := range []string{path, path + ".1", path + ".2"} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err), "only two backups kept")
}

func TestFileReopensMovedLog(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.log")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.Append(ctx, Entry{At: at, UID: "a", Summary: "first"}))
	require.NoError(t, os.Rename(path, filepath.Join(dir, "moved.log")))
	require.NoError(t, st.Append(ctx, Entry{At: at, UID: "b", Summary: "second"}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "second")
	assert.NotContains(t, string(b), "first")
}

func TestFileExclusiveLock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "notes.log")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	_, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	assert.Error(t, err)
}

func TestSQLiteAppendAndRecent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "notes.db")
	st, err := openSQLite(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.Append(ctx, Entry{At: at, UID: "one", AppName: "app", Summary: "first", Body: "b1"}))
	require.NoError(t, st.Append(ctx, Entry{At: at.Add(time.Second), UID: "two", Urgency: note.UrgencyCritical, Summary: "second"}))

	got, err := st.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Summary)
	assert.Equal(t, note.UrgencyCritical, got[0].Urgency)
	assert.Equal(t, "app", got[1].AppName)
	assert.True(t, got[1].At.Equal(at))
}
