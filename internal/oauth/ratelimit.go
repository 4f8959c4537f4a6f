package oauth

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter keyed by caller identity
// (typically the client IP). It answers both whether a request may proceed
// and, when it may not, how long until the oldest counted request leaves
// the window.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

// NewRateLimiter allows limit requests per key within the trailing window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records a request for key and reports whether it fits the window.
// When denied, retryAfter is the wait until a slot frees up.
func (r *RateLimiter) Allow(key string) (allowed bool, retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	kept := r.hits[key][:0]
	for _, t := range r.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= r.limit {
		r.hits[key] = kept
		return false, kept[0].Sub(cutoff)
	}
	r.hits[key] = append(kept, now)
	return true, 0
}

// Prune drops keys whose every recorded request has left the window.
// Called from the cleanup scheduler so idle keys don't accumulate.
func (r *RateLimiter) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.window)
	removed := 0
	for key, times := range r.hits {
		live := false
		for _, t := range times {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(r.hits, key)
			removed++
		}
	}
	return removed
}
