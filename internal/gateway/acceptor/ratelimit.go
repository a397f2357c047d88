package acceptor

import (
	"sync"
	"time"
)

// rateLimiter is a fixed-window rate limiter keyed by remote address. Each
// address gets an independent counter that resets after window elapses,
// protecting the single shared upstream HTTP client from a thundering herd
// of connection attempts against the real vendor API.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*windowBucket
}

type windowBucket struct {
	count   int
	resetAt time.Time
}

// newRateLimiter builds a limiter. A non-positive limit disables limiting
// entirely: Allow always returns true.
func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*windowBucket),
	}
}

// Allow reports whether remoteAddr is within its rate limit, and counts the
// attempt when it is allowed; a rejected attempt is not counted. Safe for
// concurrent use by multiple accept-loop goroutines.
func (r *rateLimiter) Allow(remoteAddr string) bool {
	if r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	b, ok := r.buckets[remoteAddr]
	if !ok || now.After(b.resetAt) {
		r.buckets[remoteAddr] = &windowBucket{count: 1, resetAt: now.Add(r.window)}
		return true
	}
	if b.count >= r.limit {
		return false
	}
	b.count++
	return true
}
