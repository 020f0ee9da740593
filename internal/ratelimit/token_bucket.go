// Package ratelimit bounds how fast a single connection may send events.
package ratelimit

import (
	"sync"
	"time"
)

// One token is tracked as 1e9 nano-tokens, so a refill rate of R tokens/sec
// adds exactly R nano-tokens per elapsed nanosecond.
const nanoPerToken int64 = int64(time.Second)

const maxInt64 = int64(^uint64(0) >> 1)

// TokenBucket refills at an integer rate using fixed-point arithmetic, so a
// fake Clock yields exact, repeatable results.
type TokenBucket struct {
	mu    sync.Mutex
	clock Clock

	burst int64 // tokens
	rate  int64 // tokens/sec

	nano int64 // available nano-tokens
	last time.Time
}

// NewTokenBucket returns a full bucket holding burst tokens and refilling at
// rate tokens per second. A nil clock means wall time.
func NewTokenBucket(clock Clock, burst, rate int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	burst = max(burst, 0)
	rate = max(rate, 0)
	return &TokenBucket{
		clock: clock,
		burst: burst,
		rate:  rate,
		nano:  toNano(burst),
		last:  clock.Now(),
	}
}

// NewPerSecond returns a limiter for perSecond events per second with a burst
// of the same size. perSecond <= 0 disables limiting and returns nil; a nil
// *TokenBucket allows everything.
func NewPerSecond(clock Clock, perSecond int) *TokenBucket {
	if perSecond <= 0 {
		return nil
	}
	return NewTokenBucket(clock, int64(perSecond), int64(perSecond))
}

// Allow consumes one token.
func (b *TokenBucket) Allow() bool {
	return b.AllowN(1)
}

// AllowN consumes n tokens if they are all available. n <= 0 always succeeds.
func (b *TokenBucket) AllowN(n int64) bool {
	if b == nil || n <= 0 {
		return true
	}
	cost := toNano(n)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(b.clock.Now())
	if b.nano < cost {
		return false
	}
	b.nano -= cost
	return true
}

// Tokens reports the whole tokens currently available.
func (b *TokenBucket) Tokens() int64 {
	if b == nil {
		return maxInt64
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(b.clock.Now())
	return b.nano / nanoPerToken
}

func (b *TokenBucket) refillLocked(now time.Time) {
	if !now.After(b.last) {
		// Clock stalled or went backwards: move the reference point only.
		b.last = now
		return
	}
	elapsed := now.Sub(b.last).Nanoseconds()
	b.last = now

	capNano := toNano(b.burst)
	if b.rate <= 0 || b.nano >= capNano {
		b.nano = min(b.nano, capNano)
		return
	}

	// Clamp before multiplying so elapsed*rate cannot overflow.
	if need := capNano - b.nano; elapsed >= need/b.rate {
		b.nano = capNano
		return
	}
	b.nano = min(b.nano+elapsed*b.rate, capNano)
}

func toNano(tokens int64) int64 {
	switch {
	case tokens <= 0:
		return 0
	case tokens > maxInt64/nanoPerToken:
		return maxInt64
	default:
		return tokens * nanoPerToken
	}
}
