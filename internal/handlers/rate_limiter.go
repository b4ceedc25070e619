package handlers

import (
	"strings"
	"sync"
	"time"
)

// rateLimiter throttles repeated attempts from a single caller. Coupon
// validation is the one unauthenticated endpoint that can be used to
// guess codes, so CatalogHandlers keys it by client address.
type rateLimiter interface {
	Allow(key string) bool
}

// fixedWindowLimiter counts attempts per key inside a fixed window and
// refuses further attempts once the limit is hit. Counters reset when
// their window lapses.
type fixedWindowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	attempts map[string]attemptWindow
}

type attemptWindow struct {
	seen    int
	expires time.Time
}

func newFixedWindowLimiter(limit int, window time.Duration, now func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	return &fixedWindowLimiter{
		limit:    limit,
		window:   window,
		now:      now,
		attempts: make(map[string]attemptWindow),
	}
}

// Allow records one attempt for key and reports whether it fits inside
// the current window. A nil limiter admits everything.
func (l *fixedWindowLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	if key = strings.TrimSpace(key); key == "" {
		key = "anonymous"
	}

	at := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	win, tracked := l.attempts[key]
	if !tracked || at.After(win.expires) {
		l.dropLapsedLocked(at)
		l.attempts[key] = attemptWindow{seen: 1, expires: at.Add(l.window)}
		return true
	}
	if win.seen >= l.limit {
		return false
	}
	win.seen++
	l.attempts[key] = win
	return true
}

// dropLapsedLocked evicts counters whose window already ended so the map
// does not grow with one entry per address forever. Callers hold l.mu.
func (l *fixedWindowLimiter) dropLapsedLocked(at time.Time) {
	for key, win := range l.attempts {
		if at.After(win.expires) {
			delete(l.attempts, key)
		}
	}
}
