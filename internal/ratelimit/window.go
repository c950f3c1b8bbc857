package ratelimit

import (
	"sync"
	"time"
)

// DefaultWindow is the span of one per-provider request budget window.
const DefaultWindow = time.Minute

type window struct {
	count     int
	startedAt time.Time
}

// WindowLimiter enforces a fixed per-minute request budget per provider. It
// is advisory and process-local; the shared hourly ceiling lives in the
// redis-backed Limiter. Safe for concurrent use by in-flight aggregations.
type WindowLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	span    time.Duration
	now     func() time.Time
}

// NewWindowLimiter constructs a limiter with the given window span.
// A non-positive span falls back to DefaultWindow.
func NewWindowLimiter(span time.Duration) *WindowLimiter {
	if span <= 0 {
		span = DefaultWindow
	}
	return &WindowLimiter{
		windows: make(map[string]*window),
		span:    span,
		now:     time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (l *WindowLimiter) WithClock(now func() time.Time) *WindowLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

// Allow reports whether the provider has budget left in its current window.
// A missing or expired window is (re)opened and always allows.
func (l *WindowLimiter) Allow(providerName string, limit int) bool {
	if limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[providerName]
	if !ok || now.Sub(w.startedAt) > l.span {
		l.windows[providerName] = &window{startedAt: now}
		return true
	}
	return w.count < limit
}

// Record counts one request against the provider's current window, opening a
// fresh window when none exists or the previous one aged out.
func (l *WindowLimiter) Record(providerName string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[providerName]
	if !ok || now.Sub(w.startedAt) > l.span {
		l.windows[providerName] = &window{startedAt: now, count: 1}
		return
	}
	w.count++
}
