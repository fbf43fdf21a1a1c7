package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type status struct{ summary, body string }

func statusService(t *testing.T, rate int) (Logger, <-chan status) {
	t.Helper()
	ch := make(chan status, 16)
	svc, log := New(Config{
		Level:  "debug",
		Status: StatusConfig{Enabled: true, MinLevel: "info", RatePerSec: rate},
	}, StatusFunc(func(summary, body string) { ch <- status{summary, body} }))
	t.Cleanup(func() { _ = svc.Close() })
	return log, ch
}

func next(t *testing.T, ch <-chan status) status {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no status message")
		return status{}
	}
}

func TestStatusForwardsTaggedEntries(t *testing.T) {
	log, ch := statusService(t, 100)

	log.Info("not tagged")
	log.Debug("too quiet", Notify())
	log.Info("queue is plugged", Body("Only urgent messages will be passed through"), Notify())
	log.Warn("failed to load notification filters", Err(errors.New("syntax error")), Notify())

	assert.Equal(t, status{"Notification proxy: queue is plugged", "Only urgent messages will be passed through"}, next(t, ch))
	assert.Equal(t, status{"Notification proxy: failed to load notification filters", "syntax error"}, next(t, ch))
	assert.Empty(t, ch)
}

func TestStatusIsRateLimited(t *testing.T) {
	log, ch := statusService(t, 1)

	log.Info("first", Notify())
	log.Info("second", Notify())

	assert.Equal(t, "Notification proxy: first", next(t, ch).summary)
	assert.Never(t, func() bool { return len(ch) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestStatusDisabledByApply(t *testing.T) {
	ch := make(chan status, 4)
	svc, log := New(Config{Level: "info", Status: StatusConfig{Enabled: true}}, nil)
	t.Cleanup(func() { _ = svc.Close() })
	svc.SetSink(StatusFunc(func(s, b string) { ch <- status{s, b} }))

	svc.Apply(Config{Level: "info", Status: StatusConfig{Enabled: false}})
	log.Info("hidden", Notify())
	assert.Never(t, func() bool { return len(ch) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestStatusLevelIndependentOfLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.log")
	ch := make(chan status, 4)
	svc, log := New(Config{
		Level:  "warn",
		File:   FileConfig{Enabled: true, Path: path},
		Status: StatusConfig{Enabled: true, MinLevel: "info", RatePerSec: 10},
	}, StatusFunc(func(summary, body string) { ch <- status{summary, body} }))
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("queue is plugged", Notify())
	log.Info("routine chatter")
	log.Warn("relay send failed")

	assert.Equal(t, "Notification proxy: queue is plugged", next(t, ch).summary)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "relay send failed")
	assert.NotContains(t, string(b), "queue is plugged", "file keeps its own level")
	assert.NotContains(t, string(b), "routine chatter")
}

func TestWriterEmitsFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "flow"))
	log.Debug("dropped")
	log.Info("token-pass", Float64("tokens", 2.5), Uint32("nid", 7), Duration("delay", time.Second), Bool("forced", true))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &m))
	assert.Equal(t, "token-pass", m[zerolog.MessageFieldName])
	assert.Equal(t, "flow", m["comp"])
	assert.Equal(t, 2.5, m["tokens"])
	assert.Equal(t, float64(7), m["nid"])
	assert.Equal(t, true, m["forced"])
	assert.Contains(t, m[zerolog.CallerFieldName], "logging_test.go:")
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var l Logger
	assert.True(t, l.IsZero())
	l.Info("nothing happens", Notify())
	l.With(String("k", "v")).Error("still nothing")
	assert.False(t, Nop().IsZero())
	assert.False(t, l.Enabled(zerolog.ErrorLevel))
}

func TestHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, zerolog.WarnLevel, parseLevel(" warn ", zerolog.InfoLevel))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("loud", zerolog.InfoLevel))
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abcdefg...", truncate(strings.Repeat("abcdefg", 3), 10))

	_, ok := parseStatusJSON([]byte(`{"message":"x"}`))
	assert.False(t, ok)
	it, ok := parseStatusJSON([]byte(" {\"message\":\"x\",\"notify\":true}\n"))
	require.True(t, ok)
	assert.Equal(t, "Notification proxy: x", it.summary)
}
