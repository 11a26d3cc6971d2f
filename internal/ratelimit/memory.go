package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is the in-process fixed-window strategy: a mutex-guarded map
// from composite identifier to its current window. Correct only within a
// single process; it does not coordinate across instances, which is a known
// scaling limit rather than a bug.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window

	now func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Policy() FailPolicy {
	return FailNone
}

// Check counts one request against identifier. Expired windows are swept on
// every call to bound memory growth.
func (l *MemoryLimiter) Check(_ context.Context, identifier string, limit int, windowDur time.Duration) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	w, ok := l.windows[identifier]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(windowDur)}
		l.windows[identifier] = w
		return Decision{Allowed: true, Remaining: limit - 1, ResetAt: w.resetAt}
	}

	w.count++
	if w.count > limit {
		// Denied; resetAt stays at the original window boundary.
		return Decision{Allowed: false, Remaining: 0, ResetAt: w.resetAt}
	}
	return Decision{Allowed: true, Remaining: limit - w.count, ResetAt: w.resetAt}
}

// sweep discards every expired window. Caller holds the lock.
func (l *MemoryLimiter) sweep(now time.Time) {
	for id, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, id)
		}
	}
}

// Len reports the number of live windows. Used by tests.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
