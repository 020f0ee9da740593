package ratelimit

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTokenBucket_AllowAndRefill(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 5, 5)

	if !b.AllowN(5) {
		t.Fatalf("expected initial burst to succeed")
	}
	if b.Allow() {
		t.Fatalf("expected bucket to be empty")
	}

	clk.Advance(200 * time.Millisecond) // one token at 5/s
	if !b.Allow() {
		t.Fatalf("expected refill after time advance")
	}
	if b.Allow() {
		t.Fatalf("expected exactly one refilled token")
	}
}

func TestTokenBucket_DoesNotExceedBurst(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 1, 1)

	if !b.Allow() {
		t.Fatalf("expected initial token")
	}

	clk.Advance(10 * time.Second)
	if got := b.Tokens(); got != 1 {
		t.Fatalf("Tokens=%d, want 1", got)
	}
	if !b.Allow() {
		t.Fatalf("expected refill up to burst")
	}
	if b.Allow() {
		t.Fatalf("expected burst clamp (only 1 token available)")
	}
}

func TestTokenBucket_ClockGoingBackwardsDoesNotRefill(t *testing.T) {
	clk := &fakeClock{now: time.Unix(100, 0)}
	b := NewTokenBucket(clk, 2, 2)
	b.AllowN(2)

	clk.Advance(-time.Hour)
	if b.Allow() {
		t.Fatalf("expected no tokens after clock moved backwards")
	}

	clk.Advance(500 * time.Millisecond)
	if !b.Allow() {
		t.Fatalf("expected refill measured from the new reference point")
	}
}

func TestTokenBucket_HugeElapsedDoesNotOverflow(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 1<<40, 1<<40)
	b.AllowN(1 << 40)

	clk.Advance(100 * 365 * 24 * time.Hour)
	if got := b.Tokens(); got != 1<<40 {
		t.Fatalf("Tokens=%d, want %d", got, int64(1<<40))
	}
}

func TestNewPerSecond_DisabledAllowsEverything(t *testing.T) {
	b := NewPerSecond(nil, 0)
	if b != nil {
		t.Fatalf("NewPerSecond(0)=%v, want nil", b)
	}
	for i := 0; i < 1000; i++ {
		if !b.Allow() {
			t.Fatalf("nil bucket rejected event %d", i)
		}
	}
}

func TestNewPerSecond(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewPerSecond(clk, 3)
	for i := 0; i < 3; i++ {
		if !b.Allow() {
			t.Fatalf("event %d rejected within burst", i)
		}
	}
	if b.Allow() {
		t.Fatalf("fourth event allowed, want rejected")
	}
}
