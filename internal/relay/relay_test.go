package relay

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notithing/internal/note"
)

func TestNormalizeAddr(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "tcp://1.2.3.4:5678", normalizeAddr("1.2.3.4:5678"))
	assert.Equal(t, "tcp://[::]:5678", normalizeAddr("[::]:5678"))
	assert.Equal(t, "ipc:///tmp/sock", normalizeAddr("ipc:///tmp/sock"))
}

func TestPeerIDFallbacks(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "machine-id")
	second := filepath.Join(dir, "dbus-machine-id")
	orig := machineIDPaths
	machineIDPaths = []string{first, second}
	t.Cleanup(func() { machineIDPaths = orig })

	host, _ := os.Hostname()
	assert.Equal(t, "--uname--"+host, PeerID())

	require.NoError(t, os.WriteFile(second, []byte("dbus-id\n"), 0o644))
	assert.Equal(t, "dbus-id", PeerID())

	require.NoError(t, os.WriteFile(first, []byte("  machine-id \n"), 0o644))
	assert.Equal(t, "machine-id", PeerID())
}

func TestSendSwallowsWouldBlock(t *testing.T) {
	t.Parallel()

	b := newBase(Options{Hostname: "h", Buffer: 1}.withDefaults())
	defer b.shutdown(nil)

	n := note.New("s", "", time.Now())
	require.NoError(t, b.Send(n))
	require.NoError(t, b.Send(n), "full queue is not an error")
	assert.Len(t, b.out, 1)
	assert.ErrorIs(t, b.enqueue([]byte{1}), ErrWouldBlock)
}

func TestRecvSkipsBadFrames(t *testing.T) {
	t.Parallel()

	b := newBase(Options{Hostname: "h", Buffer: 8}.withDefaults())
	defer b.shutdown(nil)

	msg, err := b.Recv()
	require.NoError(t, err)
	assert.Nil(t, msg, "nothing pending")

	good, err := b.codec.Encode(note.New("ok", "", time.Now()))
	require.NoError(t, err)
	future := append([]byte(nil), good...)
	future[0] = ProtocolVersion + 1

	b.deliver([]byte("garbage"))
	b.deliver(future)
	b.deliver(good)
	select {
	case <-b.Ready():
	default:
		t.Fatal("ready not signalled")
	}

	msg, err = b.Recv()
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "ok", msg.Note.Summary)

	msg, err = b.Recv()
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestMemoryTransportDelivers(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	rx, err := Open(Config{Driver: "memory", SubBind: []string{"bus"}}, Options{Hostname: "rx"}, hub)
	require.NoError(t, err)
	defer rx.Close()
	tx, err := Open(Config{Driver: "memory", PubConnect: []string{"bus"}}, Options{Hostname: "tx"}, hub)
	require.NoError(t, err)
	defer tx.Close()

	require.NoError(t, tx.Send(note.New("hello", "world", time.Now())))

	select {
	case <-rx.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
	}
	msg, err := rx.Recv()
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "tx", msg.Hostname)
	assert.Equal(t, "world", msg.Note.Body)

	require.NoError(t, tx.Close())
	assert.ErrorIs(t, tx.Send(note.New("late", "", time.Now())), ErrClosed)
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(Config{Driver: "carrier-pigeon"}, Options{}, nil)
	assert.Error(t, err)
	assert.False(t, Config{}.Enabled())
	assert.False(t, Config{Driver: "none"}.Enabled())
}

func TestSharedChannelSkipsOwnFrames(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	self := NewMemory(hub, Options{Hostname: "laptop"})
	watch := NewMemory(hub, Options{Hostname: "watch"})
	peer := NewMemory(hub, Options{Hostname: "laptop"})
	t.Cleanup(func() { _ = self.Close(); _ = watch.Close(); _ = peer.Close() })

	require.NoError(t, self.BindPub("chan"))
	require.NoError(t, self.Subscribe("chan"))
	require.NoError(t, watch.Subscribe("chan"))
	require.NoError(t, peer.Connect("chan"))

	require.NoError(t, self.Send(note.New("own", "", time.Now())))
	require.Eventually(t, func() bool {
		m, err := watch.Recv()
		return err == nil && m != nil && m.Note.Summary == "own"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, peer.Send(note.New("from peer", "", time.Now())))
	var got []string
	require.Eventually(t, func() bool {
		for {
			m, err := self.Recv()
			if err != nil || m == nil {
				break
			}
			got = append(got, m.Note.Summary)
		}
		return len(got) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"from peer"}, got, "same hostname from another process still arrives")
}

func TestEchoWindowForgetsOldFrames(t *testing.T) {
	t.Parallel()

	b := newBase(Options{Hostname: "h", Buffer: 1}.withDefaults())
	defer b.shutdown(nil)

	for i := range echoWindow + 1 {
		b.remember([]byte{byte(i)})
	}
	assert.False(t, b.echoed([]byte{0}))
	assert.True(t, b.echoed([]byte{1}))
	assert.True(t, b.echoed([]byte{byte(echoWindow)}))
	assert.Len(t, b.order, echoWindow)
}
