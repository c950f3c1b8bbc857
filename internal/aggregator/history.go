package aggregator

import (
	"sync"
	"time"
)

// maxFailureEntries bounds the per-provider failure log so a flapping
// upstream cannot grow memory without limit.
const maxFailureEntries = 50

// History tracks recent provider failures per tracking-number-independent
// provider name. The router uses the counts to demote providers that just
// failed, and a single success wipes the provider's slate clean.
type History struct {
	mu       sync.Mutex
	window   time.Duration
	failures map[string][]time.Time
	now      func() time.Time
}

// NewHistory returns a failure history that only counts failures younger
// than window. A non-positive window defaults to ten minutes.
func NewHistory(window time.Duration) *History {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &History{
		window:   window,
		failures: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// WithClock replaces the time source. Tests only.
func (h *History) WithClock(now func() time.Time) *History {
	h.now = now
	return h
}

// Record notes one failure for the provider.
func (h *History) Record(providerName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := h.prune(providerName)
	entries = append(entries, h.now())
	if len(entries) > maxFailureEntries {
		entries = entries[len(entries)-maxFailureEntries:]
	}
	h.failures[providerName] = entries
}

// Clear drops all recorded failures for the provider. Called after any
// successful fetch so one good response restores full routing rank.
func (h *History) Clear(providerName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.failures, providerName)
}

// RecentCount returns how many failures fall inside the window.
func (h *History) RecentCount(providerName string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := h.prune(providerName)
	if len(entries) == 0 {
		delete(h.failures, providerName)
	} else {
		h.failures[providerName] = entries
	}
	return len(entries)
}

// Snapshot returns the in-window failure count for every provider that has
// at least one. The map is a copy safe for the caller to hold.
func (h *History) Snapshot() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int, len(h.failures))
	for name := range h.failures {
		entries := h.prune(name)
		if len(entries) == 0 {
			delete(h.failures, name)
			continue
		}
		h.failures[name] = entries
		out[name] = len(entries)
	}
	return out
}

// prune drops entries older than the window. Caller holds the lock.
func (h *History) prune(providerName string) []time.Time {
	entries := h.failures[providerName]
	cutoff := h.now().Add(-h.window)
	i := 0
	for ; i < len(entries); i++ {
		if entries[i].After(cutoff) {
			break
		}
	}
	return entries[i:]
}
