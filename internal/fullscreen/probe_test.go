package fullscreen

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notithing/internal/clock"
	logx "notithing/pkg/logx"
)

func TestNever(t *testing.T) {
	t.Parallel()
	assert.False(t, Never{}.Fullscreen())
}

func TestCommandExitStatus(t *testing.T) {
	t.Parallel()

	assert.True(t, NewCommand("true", logx.Nop()).Refresh())
	assert.False(t, NewCommand("false", logx.Nop()).Refresh())
	assert.False(t, NewCommand("/nonexistent/probe", logx.Nop()).Refresh())
	assert.False(t, NewCommand("", logx.Nop()).Refresh())
	assert.False(t, NewCommand("", logx.Nop()).Fullscreen())
}

func TestCommandNeverWaitsForHelper(t *testing.T) {
	t.Parallel()

	p := NewCommand("sleep 0.3", logx.Nop())
	start := time.Now()
	assert.False(t, p.Fullscreen(), "no result yet")
	assert.False(t, p.Fullscreen())
	assert.Less(t, time.Since(start), 200*time.Millisecond)

	assert.Eventually(t, p.Fullscreen, 3*time.Second, 20*time.Millisecond)
}

func TestCommandCachesResult(t *testing.T) {
	t.Parallel()

	flag := filepath.Join(t.TempDir(), "fs")
	require.NoError(t, os.WriteFile(flag, nil, 0o644))

	c := clock.NewFake(time.Now())
	p := NewCommand("test -e "+flag, logx.Nop())
	p.Now = c.Now

	assert.True(t, p.Refresh())
	require.NoError(t, os.Remove(flag))
	assert.True(t, p.Fullscreen(), "cached")

	c.Advance(time.Second)
	assert.True(t, p.Fullscreen(), "stale answer while refreshing")
	assert.Eventually(t, func() bool { return !p.Fullscreen() }, 3*time.Second, 20*time.Millisecond)
}
