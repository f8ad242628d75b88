// Package ratelimit bounds how often each tenant may invoke the content
// pipeline. The limiter keeps a sliding window of invocation timestamps
// per tenant and refuses requests past the quota; refusals are surfaced
// to the caller, never queued.
package ratelimit

import (
	"sync"
	"time"
)

// Defaults match the product quota of six pipeline runs per rolling hour.
const (
	DefaultLimit  = 6
	DefaultWindow = time.Hour
)

// SlidingWindow is a per-key sliding window counter. The zero value is not
// usable; construct with New.
type SlidingWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string][]time.Time
}

// Option configures a SlidingWindow.
type Option func(*SlidingWindow)

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(w *SlidingWindow) {
		if now != nil {
			w.now = now
		}
	}
}

// New creates a limiter allowing limit events per key within window.
// Non-positive arguments fall back to the defaults.
func New(limit int, window time.Duration, opts ...Option) *SlidingWindow {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	w := &SlidingWindow{
		limit:   limit,
		window:  window,
		now:     time.Now,
		buckets: make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Allow records one event for key if the quota permits and reports whether
// it was admitted. Expired timestamps are pruned before evaluation, so a
// fully elapsed window always admits again.
func (w *SlidingWindow) Allow(key string) bool {
	now := w.now()
	cutoff := now.Add(-w.window)

	w.mu.Lock()
	defer w.mu.Unlock()

	recent := w.buckets[key][:0:0]
	for _, t := range w.buckets[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= w.limit {
		w.buckets[key] = recent
		return false
	}

	w.buckets[key] = append(recent, now)
	return true
}

// Remaining reports how many events key may still record in the current
// window.
func (w *SlidingWindow) Remaining(key string) int {
	now := w.now()
	cutoff := now.Add(-w.window)

	w.mu.Lock()
	defer w.mu.Unlock()

	active := 0
	for _, t := range w.buckets[key] {
		if t.After(cutoff) {
			active++
		}
	}
	if active >= w.limit {
		return 0
	}
	return w.limit - active
}

// Reset clears all recorded events for every key.
func (w *SlidingWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buckets = make(map[string][]time.Time)
}
