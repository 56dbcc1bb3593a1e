// Package ratebucket implements the Access & Quota Gate's per-(principal,
// operation-class) token bucket (spec.md §4.8 step 4), wrapping
// golang.org/x/time/rate so tier-dependent capacity/refill map directly
// onto rate.Limiter's burst/limit parameters.
package ratebucket

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Buckets holds one token bucket per (principal, operation class) pair,
// created lazily on first use and never removed — a housekeeping sweep
// (internal/config's cron-driven compaction) evicts buckets untouched for
// a configurable period.
type Buckets struct {
	mu      sync.Mutex
	buckets map[string]*entry
}

type entry struct {
	limiter    *rate.Limiter
	lastTouched time.Time
}

// New creates an empty bucket registry.
func New() *Buckets {
	return &Buckets{buckets: make(map[string]*entry)}
}

// Allow consumes one token from the bucket keyed by key, creating it with
// the given capacity/refill-per-second if it doesn't exist yet. It reports
// whether a token was available, and if not, the number of seconds the
// caller must wait before retrying.
func (b *Buckets) Allow(key string, capacity, refillPerSecond float64) (bool, int) {
	b.mu.Lock()
	e, ok := b.buckets[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(refillPerSecond), int(capacity))}
		b.buckets[key] = e
	}
	e.lastTouched = time.Now()
	limiter := e.limiter
	b.mu.Unlock()

	if limiter.Allow() {
		return true, 0
	}

	retryAfter := 1.0
	if refillPerSecond > 0 {
		retryAfter = 1.0 / refillPerSecond
	}
	return false, int(math.Ceil(retryAfter))
}

// Remaining reports the tokens currently available in the bucket keyed by
// key without consuming any, for the rate-limit status route (spec.md
// §6.1's "reports remaining tokens ... for the caller"). A bucket that has
// never been touched is reported at full capacity, since Allow would
// create it fresh on first use.
func (b *Buckets) Remaining(key string, capacity float64) float64 {
	b.mu.Lock()
	e, ok := b.buckets[key]
	b.mu.Unlock()
	if !ok {
		return capacity
	}
	return e.limiter.Tokens()
}

// Compact removes buckets untouched since the cutoff, bounding memory use
// across the lifetime of a long-running process.
func (b *Buckets) Compact(cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for key, e := range b.buckets {
		if e.lastTouched.Before(cutoff) {
			delete(b.buckets, key)
			removed++
		}
	}
	return removed
}

// Len reports the current number of tracked buckets, used by tests and the
// health route.
func (b *Buckets) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buckets)
}
