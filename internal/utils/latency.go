package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a bounded window of recent durations so cycle
// timing percentiles reflect current behavior rather than process lifetime.
type LatencyTracker struct {
	mu      sync.Mutex
	window  []time.Duration
	limit   int
	counted uint64
}

// NewLatencyTracker creates a tracker retaining at most limit samples.
// Non-positive limits fall back to 512.
func NewLatencyTracker(limit int) *LatencyTracker {
	if limit <= 0 {
		limit = 512
	}
	return &LatencyTracker{
		window: make([]time.Duration, 0, limit),
		limit:  limit,
	}
}

// Observe records a duration, evicting the oldest sample when full.
func (t *LatencyTracker) Observe(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.window) == t.limit {
		copy(t.window, t.window[1:])
		t.window = t.window[:t.limit-1]
	}
	t.window = append(t.window, d)
	t.counted++
}

// Percentile returns the pth percentile of the retained window using
// linear rank interpolation on a sorted copy. Zero when no samples exist.
func (t *LatencyTracker) Percentile(p float64) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.window)
	if n == 0 {
		return 0
	}
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}

	sorted := make([]time.Duration, n)
	copy(sorted, t.window)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int((p / 100) * float64(n-1))
	return sorted[idx]
}

// Count reports the total number of observations ever recorded, which
// keeps growing after the window starts evicting.
func (t *LatencyTracker) Count() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counted
}
