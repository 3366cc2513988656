package processor

import (
	"sync"
	"time"
)

// rateLimiter admits at most limit events within any trailing window.
// A non-positive limit admits everything.
type rateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	hits   []time.Time
}

func newRateLimiter(limit int, window time.Duration, now func() time.Time) *rateLimiter {
	return &rateLimiter{limit: limit, window: window, now: now}
}

// allow records an event and reports whether it fits in the window.
// Rejected events are not recorded.
func (l *rateLimiter) allow() bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	i := 0
	for i < len(l.hits) && !l.hits[i].After(cutoff) {
		i++
	}
	l.hits = l.hits[i:]

	if len(l.hits) >= l.limit {
		return false
	}

	l.hits = append(l.hits, now)
	return true
}
