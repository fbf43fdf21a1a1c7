package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notithing/internal/note"
	"notithing/internal/relay"
	logx "notithing/pkg/logx"
)

type syncBuffer struct {
	ch  chan struct{}
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	n, err := b.buf.Write(p)
	b.ch <- struct{}{}
	return n, err
}

func TestBindAddr(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "[::]:5678", bindAddr("5678"))
	assert.Equal(t, "10.0.0.1:5678", bindAddr("10.0.0.1:5678"))
}

func TestDump(t *testing.T) {
	t.Parallel()

	for _, asJSON := range []bool{false, true} {
		hub := relay.NewHub()
		pub := relay.NewMemory(hub, relay.Options{Hostname: "laptop", Log: logx.Nop()})
		sub := relay.NewMemory(hub, relay.Options{Log: logx.Nop()})
		require.NoError(t, pub.BindPub("bus"))
		require.NoError(t, sub.BindSub("bus"))

		out := &syncBuffer{ch: make(chan struct{}, 4)}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- dump(ctx, sub, out, asJSON) }()

		require.NoError(t, pub.Send(note.New("Disk full", "sda1\nat 99%", time.Now())))
		select {
		case <-out.ch:
		case <-time.After(2 * time.Second):
			t.Fatal("nothing dumped")
		}
		cancel()
		require.NoError(t, <-done)
		_ = pub.Close()
		_ = sub.Close()

		got := out.buf.String()
		if asJSON {
			assert.True(t, strings.HasPrefix(got, `["laptop",`), got)
			assert.Contains(t, got, `"summary":"Disk full"`)
			continue
		}
		assert.Contains(t, got, "  Host: laptop\n")
		assert.Contains(t, got, "  Summary: Disk full\n")
		assert.Contains(t, got, "  Body:\n    sda1\n    at 99%\n")
	}
}
