// Package ratelimit gates model calls behind minute, hour, and day
// budgets so a single large document cannot exhaust the API quota.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Scope names one of the three limit windows.
type Scope string

const (
	ScopeMinute Scope = "minute"
	ScopeHour   Scope = "hour"
	ScopeDay    Scope = "day"
)

// LimitExceededError reports a denied acquisition. RetryAfter is the
// longest wait among the exhausted windows, so waiting that long
// guarantees at least those windows have rolled over.
type LimitExceededError struct {
	Scopes     []Scope
	RetryAfter time.Duration
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %v, retry after %s", e.Scopes, e.RetryAfter.Round(time.Second))
}

// Decision is the outcome of a TryAcquire call.
type Decision struct {
	Allowed    bool
	Scopes     []Scope       // exhausted windows when denied
	RetryAfter time.Duration // zero when allowed
}

// Err converts a denial into a *LimitExceededError, nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &LimitExceededError{Scopes: d.Scopes, RetryAfter: d.RetryAfter}
}

type window struct {
	scope Scope
	span  time.Duration
	limit int // <= 0 means unlimited
	start time.Time
	count int
}

func (w *window) roll(now time.Time) {
	if now.Sub(w.start) >= w.span {
		w.start = now.Truncate(w.span)
		w.count = 0
	}
}

func (w *window) exhausted() bool {
	return w.limit > 0 && w.count >= w.limit
}

func (w *window) retryAfter(now time.Time) time.Duration {
	return w.start.Add(w.span).Sub(now)
}

// Limiter enforces fixed minute, hour, and day windows. Windows roll
// over lazily on access. A call consumes budget from all three windows
// atomically or from none.
type Limiter struct {
	mu      sync.Mutex
	windows [3]window
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter with the given per-window budgets. A budget of
// zero or less disables that window.
func New(perMinute, perHour, perDay int, opts ...Option) *Limiter {
	l := &Limiter{
		windows: [3]window{
			{scope: ScopeMinute, span: time.Minute, limit: perMinute},
			{scope: ScopeHour, span: time.Hour, limit: perHour},
			{scope: ScopeDay, span: 24 * time.Hour, limit: perDay},
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	now := l.now()
	for i := range l.windows {
		l.windows[i].start = now.Truncate(l.windows[i].span)
	}
	return l
}

// TryAcquire consumes one unit from every window, or from none when
// any window is exhausted. It never blocks.
func (l *Limiter) TryAcquire() Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for i := range l.windows {
		l.windows[i].roll(now)
	}

	var denied []Scope
	var retryAfter time.Duration
	for i := range l.windows {
		w := &l.windows[i]
		if w.exhausted() {
			denied = append(denied, w.scope)
			if ra := w.retryAfter(now); ra > retryAfter {
				retryAfter = ra
			}
		}
	}
	if len(denied) > 0 {
		return Decision{Allowed: false, Scopes: denied, RetryAfter: retryAfter}
	}

	for i := range l.windows {
		l.windows[i].count++
	}
	return Decision{Allowed: true}
}

// Remaining reports the budget left in each window. Unlimited windows
// report -1.
func (l *Limiter) Remaining() map[Scope]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	out := make(map[Scope]int, len(l.windows))
	for i := range l.windows {
		w := &l.windows[i]
		w.roll(now)
		if w.limit <= 0 {
			out[w.scope] = -1
			continue
		}
		left := w.limit - w.count
		if left < 0 {
			left = 0
		}
		out[w.scope] = left
	}
	return out
}
