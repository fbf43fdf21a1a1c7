package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOverlaysDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Decode("config.yaml", []byte(`
queue_len: 5
tbf:
  tick: 10s
relay:
  driver: zmq
  sub_connect: ["desk.lan:5678"]
`))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.QueueLen)
	assert.Equal(t, "10s", cfg.TBF.Tick)
	assert.Equal(t, 4, cfg.TBF.Size, "unset keys keep their default")
	assert.Equal(t, "60s", cfg.TBF.MaxDelay)
	assert.True(t, cfg.UrgencyCheck)
	assert.Equal(t, []string{"desk.lan:5678"}, cfg.Relay.SubConnect)
	assert.Equal(t, 30, cfg.Relay.Buffer)
}

func TestDecodeFormats(t *testing.T) {
	t.Parallel()

	cfg, err := Decode("config.json", []byte(`{"history_len": 3}`))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.HistoryLen)

	cfg, err = Decode("config", []byte(`{"cleanup": false}`))
	require.NoError(t, err)
	assert.False(t, cfg.Cleanup)

	cfg, err = Decode("config", []byte("cleanup: false\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Cleanup)

	cfg, err = Decode("config.yaml", []byte("  \n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()

	_, err := Decode("c.yaml", []byte("telegram: {token: x}\n"))
	assert.ErrorContains(t, err, "unknown field")

	_, err = Decode("c.json", []byte(`{"queue_len": 1}{"queue_len": 2}`))
	assert.ErrorContains(t, err, "trailing data")
	assert.NotContains(t, err.Error(), "unknown field")

	_, err = Decode("c.json", []byte(`{"queue_len": 1} [1, 2]`))
	assert.ErrorContains(t, err, "trailing data")
}

func TestResolve(t *testing.T) {
	t.Parallel()

	rt, err := Default().Resolve()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, rt.ActivityTimeout)
	assert.Equal(t, 5*time.Second, rt.PopupTimeout)
	assert.Equal(t, 15*time.Second, rt.Tick)
	assert.Equal(t, 4.0, rt.MaxMultiplier)

	cfg := Default()
	cfg.ActivityTimeout = "-1s"
	rt, err = cfg.Resolve()
	require.NoError(t, err)
	assert.Zero(t, rt.ActivityTimeout)
}

func TestResolveCollectsErrors(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.PopupTimeout = "soon"
	cfg.QueueLen = 0
	cfg.TBF.MaxDelay = "5s"
	cfg.Relay.Driver = "carrier-pigeon"
	cfg.Schedule = []ScheduleRule{{Cron: "every day", Set: map[string]bool{"volume": true}}}

	_, err := cfg.Resolve()
	require.Error(t, err)
	for _, want := range []string{"popup_timeout", "queue_len", "tbf.max_delay", "relay.driver", "schedule[0].cron", `unknown key "volume"`} {
		assert.ErrorContains(t, err, want)
	}
}

func TestResolveNotelogPath(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Notelog.Driver = "sqlite"
	rt, err := cfg.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "notifications.db", filepath.Base(rt.NotelogPath))

	cfg.Notelog.Path = "/var/log/n.log"
	rt, err = cfg.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "/var/log/n.log", rt.NotelogPath)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	assert.Equal(t, filepath.Join(home, ".notification_filter"), ExpandHome("~/.notification_filter"))
	assert.Equal(t, "/etc/x", ExpandHome("/etc/x"))
	assert.Equal(t, "", ExpandHome(""))
}

func TestManagerOptionalMissingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing.yaml")
	cfg, err := NewManager(path, true).Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = NewManager(path, false).Load()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestManagerLoadRejectsInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue_len: -1\n"), 0o644))
	m := NewManager(path, false)
	_, err := m.Load()
	require.Error(t, err)
	assert.Nil(t, m.Get())
}

func TestManagerPublishKeepsNewest(t *testing.T) {
	t.Parallel()

	m := NewManager("unused.yaml", true)
	ch := m.Subscribe(1)
	a, b := Default(), Default()
	b.QueueLen = 99
	m.publish(a)
	m.publish(b)
	assert.Same(t, b, <-ch)

	m.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
}

func TestManagerReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue_len: 3\n"), 0o644))
	m := NewManager(path, false)
	_, err := m.Load()
	require.NoError(t, err)
	ch := m.Subscribe(4)

	m.reload(context.Background())
	assert.Empty(t, ch, "unchanged content is not republished")

	require.NoError(t, os.WriteFile(path, []byte("queue_len: 7\n"), 0o644))
	m.SetValidator(func(context.Context, *Config) error { return assert.AnError })
	m.reload(context.Background())
	assert.Empty(t, ch)
	assert.Equal(t, 3, m.Get().QueueLen)

	m.SetValidator(nil)
	m.reload(context.Background())
	require.Len(t, ch, 1)
	assert.Equal(t, 7, (<-ch).QueueLen)
	assert.Equal(t, 7, m.Get().QueueLen)
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	a := Default()
	b := Default()
	changed, _ := SummarizeConfigChange(a, b)
	assert.Empty(t, changed)

	b.TBF.Size = 8
	b.Cleanup = false
	b.Relay.SubConnect = []string{"x:1"}
	b.Schedule = []ScheduleRule{{Cron: "0 22 * * *", Set: map[string]bool{"plug": true}}}
	changed, attrs := SummarizeConfigChange(a, b)
	assert.Equal(t, []string{SectionFlow, SectionDisplay, SectionRelay, SectionSchedule}, changed)
	assert.NotEmpty(t, attrs)

	c := Default()
	c.Pprof.Enabled = true
	changed, _ = SummarizeConfigChange(a, c)
	assert.Equal(t, []string{SectionPprof}, changed)
}

func TestResolveRejectsNegativeProfileRates(t *testing.T) {
	t.Parallel()

	cfg, err := Decode("config.yaml", []byte("pprof: {enabled: true, mutex_profile_fraction: -1}\n"))
	require.NoError(t, err)
	_, err = cfg.Resolve()
	assert.ErrorContains(t, err, "pprof")
}

func TestLogConfig(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Logging.Level = "debug"
	cfg.StatusNotify = false
	lc := cfg.LogConfig()
	assert.Equal(t, "debug", lc.Level)
	assert.False(t, lc.Status.Enabled)
}
