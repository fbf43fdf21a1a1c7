package flow

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notithing/internal/clock"
)

// aligned to a 15s boundary so ETA lands on a whole tick
var epoch = time.Unix(1_700_000_100, 0)

func newBucket(c *clock.Fake) *TokenBucket {
	return NewTokenBucket(BucketConfig{
		FillRate:      1,
		Capacity:      4,
		Tick:          15 * time.Second,
		IncFactor:     2,
		DecFactor:     2,
		MaxMultiplier: 4,
	}, c.Now)
}

func TestBucketStaysInRange(t *testing.T) {
	t.Parallel()

	c := clock.NewFake(epoch)
	b := newBucket(c)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		c.Advance(time.Duration(rng.Intn(20_000)) * time.Millisecond)
		b.Consume(float64(1+rng.Intn(3)), rng.Intn(4) == 0)
		tok := b.Tokens()
		require.GreaterOrEqual(t, tok, 0.0)
		require.LessOrEqual(t, tok, b.Capacity())
		require.GreaterOrEqual(t, b.Multiplier(), 1.0)
		require.LessOrEqual(t, b.Multiplier(), 4.0)
	}
}

func TestBucketBurstThenETA(t *testing.T) {
	t.Parallel()

	c := clock.NewFake(epoch)
	b := newBucket(c)
	for i := 0; i < 4; i++ {
		require.True(t, b.Consume(1, false), "consume %d", i)
	}
	assert.False(t, b.Consume(1, false))

	eta, err := b.ETA(1)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, eta)

	c.Advance(5 * time.Second)
	eta, err = b.ETA(1)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, eta)
}

func TestBucketETARejectsImpossibleDemand(t *testing.T) {
	t.Parallel()

	b := newBucket(clock.NewFake(epoch))
	_, err := b.ETA(5)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestBucketAdaptiveBackoff(t *testing.T) {
	t.Parallel()

	c := clock.NewFake(epoch)
	b := newBucket(c)
	for i := 0; i < 4; i++ {
		require.True(t, b.Consume(1, false))
	}
	require.Equal(t, 1.0, b.Multiplier())

	require.False(t, b.Consume(1, false))
	assert.Equal(t, 1.0, b.Multiplier(), "first failure only marks starvation")
	require.False(t, b.Consume(1, false))
	assert.Equal(t, 2.0, b.Multiplier())
	require.False(t, b.Consume(1, false))
	assert.Equal(t, 4.0, b.Multiplier())
	require.False(t, b.Consume(1, false))
	assert.Equal(t, 4.0, b.Multiplier(), "clamped at max")

	// 60s effective tick: two tokens after two minutes
	c.Advance(2 * time.Minute)
	assert.InDelta(t, 2.0, b.Tokens(), 1e-9)
	require.True(t, b.Consume(1, false))
	assert.Equal(t, 2.0, b.Multiplier())
}

func TestBucketFreeFloorsAtOne(t *testing.T) {
	t.Parallel()

	b := newBucket(clock.NewFake(epoch))
	require.True(t, b.Consume(1, false))
	require.True(t, b.Consume(1, false))
	assert.Equal(t, 1.0, b.Multiplier())
}

func TestBucketForcedConsumeClampsAtZero(t *testing.T) {
	t.Parallel()

	b := newBucket(clock.NewFake(epoch))
	for i := 0; i < 6; i++ {
		require.True(t, b.Consume(1, true))
	}
	assert.Zero(t, b.Tokens())
}
