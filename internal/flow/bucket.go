package flow

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidRequest is returned for token demands the bucket can never satisfy.
var ErrInvalidRequest = errors.New("invalid token request")

type spree uint8

const (
	spreeUndef  spree = 0
	spreeOK     spree = 1
	spreeEmpty  spree = 2
	spreeStarve spree = 4
)

// BucketConfig sets up a TokenBucket.
type BucketConfig struct {
	FillRate      float64       // tokens added per effective tick
	Capacity      float64       // burst size
	Tick          time.Duration // base time unit
	IncFactor     float64       // multiplier growth on sustained shortage
	DecFactor     float64       // multiplier shrink on recovery
	MaxMultiplier float64       // upper bound for the tick multiplier
}

func (c BucketConfig) withDefaults() BucketConfig {
	if c.FillRate <= 0 {
		c.FillRate = 1
	}
	if c.Capacity <= 0 {
		c.Capacity = 4
	}
	if c.Tick <= 0 {
		c.Tick = 15 * time.Second
	}
	if c.IncFactor < 1 {
		c.IncFactor = 2
	}
	if c.DecFactor < 1 {
		c.DecFactor = 2
	}
	if c.MaxMultiplier < 1 {
		c.MaxMultiplier = 4
	}
	return c
}

// TokenBucket is an adaptive rate limiter. Tokens refill lazily on every access;
// the refill period stretches while demand keeps outrunning supply and shrinks
// back once the bucket recovers.
type TokenBucket struct {
	cfg  BucketConfig
	now  func() time.Time
	sync time.Time

	tokens float64
	mul    float64
	spree  spree
}

// NewTokenBucket returns a full bucket. now is the time source (nil = time.Now).
func NewTokenBucket(cfg BucketConfig, now func() time.Time) *TokenBucket {
	if now == nil {
		now = time.Now
	}
	cfg = cfg.withDefaults()
	return &TokenBucket{cfg: cfg, now: now, sync: now(), tokens: cfg.Capacity, mul: 1}
}

// Tick is the current effective time unit.
func (b *TokenBucket) Tick() time.Duration {
	return time.Duration(float64(b.cfg.Tick) * b.mul)
}

func (b *TokenBucket) Multiplier() float64 { return b.mul }
func (b *TokenBucket) Capacity() float64   { return b.cfg.Capacity }

// Tokens refills the bucket up to now and returns the current level.
func (b *TokenBucket) Tokens() float64 {
	ts := b.now()
	if b.tokens < b.cfg.Capacity {
		elapsed := ts.Sub(b.sync).Seconds()
		if elapsed > 0 {
			b.tokens = math.Min(b.cfg.Capacity, b.tokens+b.cfg.FillRate*elapsed/b.Tick().Seconds())
		}
	}
	b.sync = ts
	return b.tokens
}

// Consume takes count tokens. It never blocks: without force it returns false
// when not enough tokens are available. Forced consumption bottoms out at zero.
func (b *TokenBucket) Consume(count float64, force bool) bool {
	tc := b.Tokens()
	if !force && count > tc {
		if b.spree&spreeStarve != 0 {
			b.strangle()
		}
		b.spree = spreeEmpty | spreeStarve
		return false
	}
	b.tokens = math.Max(0, tc-count)
	b.adjust()
	return true
}

// adjust runs after a successful grab. Must follow a Tokens() sync.
func (b *TokenBucket) adjust() {
	if b.tokens < 1 {
		if b.spree&spreeEmpty != 0 && b.spree&spreeStarve == 0 {
			b.strangle()
		}
		b.spree = spreeEmpty
		return
	}
	if b.spree != spreeUndef {
		b.free()
	}
	b.spree = spreeOK
}

func (b *TokenBucket) strangle() {
	b.mul = math.Min(b.mul*b.cfg.IncFactor, b.cfg.MaxMultiplier)
}

func (b *TokenBucket) free() {
	b.mul = math.Max(b.mul/b.cfg.DecFactor, 1)
}

// ETA is the time left until the next token arrives, aligned to the tick grid.
func (b *TokenBucket) ETA(count float64) (time.Duration, error) {
	if count > b.cfg.Capacity {
		return 0, fmt.Errorf("%w: %v tokens requested, capacity is %v",
			ErrInvalidRequest, count, b.cfg.Capacity)
	}
	tick := b.Tick().Seconds()
	now := b.now()
	ts := float64(now.Unix()) + float64(now.Nanosecond())/1e9
	return time.Duration((tick - math.Mod(ts, tick)) * float64(time.Second)), nil
}
