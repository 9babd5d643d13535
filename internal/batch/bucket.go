package batch

import (
	"math"
	"time"
)

// tokenBucket is the scheduler's capacity pool: a real-valued token count
// refilled continuously in proportion to elapsed wall-clock time and
// clamped to the per-minute maximum. Dispatch consumes whole tokens.
//
// The pool starts with a single token, so the first task dispatches
// immediately and the rest pay the steady-state rate. It is touched only
// by the dispatch loop and needs no locking.
type tokenBucket struct {
	max    float64
	rate   float64 // tokens per second
	tokens float64
	last   time.Time
}

func newTokenBucket(perMinute float64, now time.Time) *tokenBucket {
	return &tokenBucket{
		max:    perMinute,
		rate:   perMinute / 60.0,
		tokens: math.Min(1, perMinute),
		last:   now,
	}
}

// refill credits tokens for the time elapsed since the last refill,
// clamped to the maximum.
func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(b.tokens+b.rate*elapsed, b.max)
	}
	b.last = now
}

// take consumes one token if at least one whole token is available.
func (b *tokenBucket) take() bool {
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// available returns the current token count.
func (b *tokenBucket) available() float64 {
	return b.tokens
}
