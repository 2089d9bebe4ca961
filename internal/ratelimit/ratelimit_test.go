package ratelimit

import (
	"errors"
	"testing"
	"time"
)

// fakeClock drives the limiter without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(cfg Config) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLimiter(cfg)
	l.now = clock.now
	return l, clock
}

func TestLimiter_BurstThenLimited(t *testing.T) {
	l, _ := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 3})

	for i := 0; i < 3; i++ {
		if err := l.Allow("caller-a"); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}
	if err := l.Allow("caller-a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited after burst exhausted, got %v", err)
	}
}

func TestLimiter_CallersIndependent(t *testing.T) {
	l, _ := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 1})

	if err := l.Allow("caller-a"); err != nil {
		t.Fatalf("caller-a first request: %v", err)
	}
	if err := l.Allow("caller-a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("caller-a should be limited, got %v", err)
	}
	// caller-b has its own bucket.
	if err := l.Allow("caller-b"); err != nil {
		t.Fatalf("caller-b first request: %v", err)
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l, _ := newTestLimiter(Config{RequestsPerMinute: 0})

	for i := 0; i < 100; i++ {
		if err := l.Allow("anyone"); err != nil {
			t.Fatalf("unlimited limiter rejected request %d: %v", i, err)
		}
	}
}

func TestLimiter_RefillOverTime(t *testing.T) {
	l, clock := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 1}) // 1 token/s

	if err := l.Allow("caller-a"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := l.Allow("caller-a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	clock.advance(500 * time.Millisecond)
	if err := l.Allow("caller-a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("half a token is not enough, got %v", err)
	}

	clock.advance(600 * time.Millisecond)
	if err := l.Allow("caller-a"); err != nil {
		t.Fatalf("expected refill after elapsed time, got %v", err)
	}
}

func TestLimiter_RefillCapsAtBurst(t *testing.T) {
	l, clock := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 2})

	for i := 0; i < 2; i++ {
		if err := l.Allow("caller-a"); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}

	// Five minutes at one token per second refills to burst, not to a
	// 300-token hoard.
	clock.advance(5 * time.Minute)
	for i := 0; i < 2; i++ {
		if err := l.Allow("caller-a"); err != nil {
			t.Fatalf("post-idle request %d: %v", i, err)
		}
	}
	if err := l.Allow("caller-a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited past burst, got %v", err)
	}
}

func TestLimiter_PrunesIdleCallers(t *testing.T) {
	l, clock := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 1})

	if err := l.Allow("caller-a"); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow("caller-b"); err != nil {
		t.Fatal(err)
	}

	clock.advance(idleEviction + time.Second)
	if err := l.Allow("caller-b"); err != nil {
		t.Fatal(err)
	}

	l.mu.Lock()
	_, aLives := l.callers["caller-a"]
	_, bLives := l.callers["caller-b"]
	l.mu.Unlock()
	if aLives {
		t.Error("idle caller-a bucket not pruned")
	}
	if !bLives {
		t.Error("active caller-b bucket pruned")
	}
}

func TestLimiter_BurstDefaultsToRate(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 5})
	if l.burst != 5 {
		t.Fatalf("burst = %v, want 5", l.burst)
	}
}
