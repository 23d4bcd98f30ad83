package microfeed

import (
	"sync"
	"time"
)

// Limiter is a sliding-window rate limiter keyed by an arbitrary string
// (client IP for logins, user id for new posts).
type Limiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	max      int
	window   time.Duration
}

// NewLimiter creates a Limiter that allows max hits per key per window.
func NewLimiter(max int, window time.Duration) *Limiter {
	return &Limiter{
		attempts: make(map[string][]time.Time),
		max:      max,
		window:   window,
	}
}

// Sweep drops keys with no hits inside the window. The App runs it from the
// same cron scheduler that evicts idle edit sessions.
func (l *Limiter) Sweep() {
	cutoff := time.Now().Add(-l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, hits := range l.attempts {
		kept := prune(hits, cutoff)
		if len(kept) == 0 {
			delete(l.attempts, key)
		} else {
			l.attempts[key] = kept
		}
	}
}

func prune(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// Allow checks the key is under the limit and records the hit.
func (l *Limiter) Allow(key string) bool {
	if !l.Check(key) {
		return false
	}
	l.Record(key)
	return true
}

// Check returns true if the key has not exceeded the limit. It does not
// record a hit; login failures call Record separately.
func (l *Limiter) Check(key string) bool {
	cutoff := time.Now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := prune(l.attempts[key], cutoff)
	l.attempts[key] = kept
	return len(kept) < l.max
}

// Record registers a hit for key.
func (l *Limiter) Record(key string) {
	l.mu.Lock()
	l.attempts[key] = append(l.attempts[key], time.Now())
	l.mu.Unlock()
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts)
}
