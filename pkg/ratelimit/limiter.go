// Package ratelimit implements per-key sliding-window admission control
// for the chat relay. Each key (session id, or the caller address when no
// session is supplied) gets an independent bucket of admission timestamps
// that is pruned to the configured window on every check.
package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultMaxRequests is the number of admissions allowed per key per
	// window when no explicit limit is configured.
	DefaultMaxRequests = 10

	// DefaultWindow is the sliding window duration.
	DefaultWindow = 60 * time.Second
)

// Limiter enforces a per-key sliding-window rate limit.
//
// Memory per active key is bounded to O(limit) timestamps because stale
// entries are pruned on every Allow call. The key space itself is unbounded
// and relies on SweepIdle to drop buckets that have gone quiet.
//
// Limiter is safe for concurrent use from multiple goroutines.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string][]time.Time
}

// New returns a Limiter that admits at most limit requests per key within
// window. Non-positive arguments fall back to the defaults.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string][]time.Time),
	}
}

// Allow reports whether the key may proceed and, when it may, records the
// admission. A rejected call records nothing, so a rejected client does not
// push its own recovery further into the future.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	existing := l.buckets[key]
	valid := existing[:0] // reuse backing array
	for _, t := range existing {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= l.limit {
		l.buckets[key] = valid
		return false
	}

	l.buckets[key] = append(valid, now)
	return true
}

// Remaining returns how many admissions the key has left in the current
// window. A return value of 0 means the next Allow call will reject.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.window)
	count := 0
	for _, t := range l.buckets[key] {
		if t.After(cutoff) {
			count++
		}
	}
	rem := l.limit - count
	if rem < 0 {
		return 0
	}
	return rem
}

// Keys returns the number of buckets currently held.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// SweepIdle drops every bucket whose newest timestamp is older than idleFor
// and returns the number of buckets removed. Callers typically run this on a
// ticker so that one-off clients do not grow the key space forever.
func (l *Limiter) SweepIdle(idleFor time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-idleFor)
	removed := 0
	for key, stamps := range l.buckets {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}

	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("Swept idle rate-limit buckets")
	}
	return removed
}
