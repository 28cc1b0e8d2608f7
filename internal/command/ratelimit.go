package command

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// rateLimiter enforces a per-caller sliding-window action rate.
type rateLimiter struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	limit  int
	window time.Duration
	hits   map[string][]time.Time
}

func newRateLimiter(clock clockwork.Clock, limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		clock:  clock,
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
	}
}

// allow records one action for uid and reports whether it fits the
// window. Expired entries are pruned as a side effect so the map does
// not grow with idle callers.
func (l *rateLimiter) allow(uid string) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	cutoff := now.Add(-l.window)

	kept := l.hits[uid][:0]
	for _, t := range l.hits[uid] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.limit {
		l.hits[uid] = kept
		return false
	}
	l.hits[uid] = append(kept, now)
	return true
}
