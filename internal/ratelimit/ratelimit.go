// Package ratelimit throttles API callers with lazily refilled token
// buckets. There are no background goroutines; refill and idle-bucket
// pruning both happen inside Allow.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a caller's bucket is empty.
var ErrRateLimited = errors.New("rate limit exceeded")

// idleEviction is how long a caller's bucket may sit untouched before it is
// pruned. Anything idle this long has fully refilled anyway, so dropping it
// loses nothing.
const idleEviction = 10 * time.Minute

// Config configures the limiter.
type Config struct {
	RequestsPerMinute int // Tokens added per minute. 0 = unlimited (Allow always succeeds).
	BurstSize         int // Maximum tokens in a bucket. 0 = defaults to RequestsPerMinute.
}

// Limiter hands each caller an independent token bucket, so one noisy caller
// cannot exhaust another's quota.
type Limiter struct {
	mu      sync.Mutex
	callers map[string]*bucket
	perSec  float64
	burst   float64

	// now is swapped out in tests.
	now func() time.Time

	lastPrune time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewLimiter creates a limiter from cfg. A zero RequestsPerMinute disables
// limiting entirely.
func NewLimiter(cfg Config) *Limiter {
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		callers: make(map[string]*bucket),
		perSec:  float64(cfg.RequestsPerMinute) / 60.0,
		burst:   float64(burst),
		now:     time.Now,
	}
}

// Allow consumes one token from the caller's bucket, refilling it for the
// time elapsed since the caller was last seen. Returns ErrRateLimited when
// the bucket is empty. Unknown callers start with a full bucket.
func (l *Limiter) Allow(callerID string) error {
	if l.perSec <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	b, ok := l.callers[callerID]
	if !ok {
		b = &bucket{tokens: l.burst}
		l.callers[callerID] = b
	} else {
		b.tokens += now.Sub(b.seen).Seconds() * l.perSec
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
	}
	b.seen = now

	if b.tokens < 1 {
		return ErrRateLimited
	}
	b.tokens--
	return nil
}

// pruneLocked drops buckets idle past the eviction window. Runs at most once
// per window so steady traffic does not pay a full map scan per request.
func (l *Limiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < idleEviction {
		return
	}
	l.lastPrune = now
	for id, b := range l.callers {
		if now.Sub(b.seen) >= idleEviction {
			delete(l.callers, id)
		}
	}
}
