package loop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notithing/internal/clock"
	logx "notithing/pkg/logx"
)

func start(t *testing.T, c clock.Scheduler) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New(c, 8, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(cancel)
	return l, cancel
}

func TestCallRunsInOrder(t *testing.T) {
	t.Parallel()

	l, _ := start(t, nil)
	var seen []int
	for i := range 3 {
		require.NoError(t, l.Post(func() { seen = append(seen, i) }))
	}
	require.NoError(t, l.Call(context.Background(), func() { seen = append(seen, 99) }))
	assert.Equal(t, []int{0, 1, 2, 99}, seen)
}

func TestPanicDoesNotKillLoop(t *testing.T) {
	t.Parallel()

	l, _ := start(t, nil)
	require.NoError(t, l.Post(func() { panic("boom") }))
	ran := false
	require.NoError(t, l.Call(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestStoppedLoopRejectsWork(t *testing.T) {
	t.Parallel()

	l, cancel := start(t, nil)
	require.NoError(t, l.Call(context.Background(), func() {}))
	cancel()
	require.Eventually(t, func() bool { return l.Post(func() {}) == ErrStopped }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, l.Call(context.Background(), func() {}), ErrStopped)
}

func TestCallHonoursContext(t *testing.T) {
	t.Parallel()

	l, _ := start(t, nil)
	block := make(chan struct{})
	defer close(block)
	require.NoError(t, l.Post(func() { <-block }))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Call(ctx, func() {}), context.DeadlineExceeded)
}

func TestTimersFireOnLoop(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Unix(0, 0))
	l, _ := start(t, fake)

	fired := make(chan struct{}, 2)
	var stopped clock.Timer
	require.NoError(t, l.Call(context.Background(), func() {
		l.AfterFunc(time.Second, func() { fired <- struct{}{} })
		stopped = l.AfterFunc(time.Second, func() { fired <- struct{}{} })
	}))
	assert.Equal(t, fake.Now(), l.Now())

	// both underlying timers fire, but Stop lands before the queued callback runs
	require.NoError(t, l.Call(context.Background(), func() {
		fake.Advance(time.Second)
		assert.True(t, stopped.Stop())
		assert.False(t, stopped.Stop())
	}))

	require.Eventually(t, func() bool { return len(fired) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, l.Call(context.Background(), func() {}))
	assert.Len(t, fired, 1)
}
