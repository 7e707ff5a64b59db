// Package dedupe guards the one-row-per-key invariant of forecast tables.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/openclimatefix/uk-pv-backtest/internal/domain/model"
)

// Tracker records row keys so that readers and mergers can detect duplicate
// (issue time, valid time, quantile) triples.
type Tracker interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key model.RowKey) bool

	Size() int64
}

// inMemoryTracker implements Tracker with a set of row keys.
// Unbounded by default; a positive maxSize turns on FIFO eviction for scans
// over archives too large to hold every key, at the cost of missing
// duplicates that are further apart than the bound.
type inMemoryTracker struct {
	mu      sync.Mutex
	seen    map[model.RowKey]struct{}
	order   []model.RowKey // insertion order, only kept in bounded mode
	next    int            // eviction cursor into order
	maxSize int
	size    atomic.Int64
}

// NewInMemoryTracker creates a new in-memory tracker with configuration
// options.
func NewInMemoryTracker(opts ...Option) Tracker {
	t := &inMemoryTracker{}

	for _, opt := range opts {
		opt(t)
	}

	t.seen = make(map[model.RowKey]struct{})
	if t.maxSize > 0 {
		t.order = make([]model.RowKey, 0, t.maxSize)
	}

	return t
}

// SeenAndRecord atomically checks if key was seen and records it if not.
func (t *inMemoryTracker) SeenAndRecord(_ context.Context, key model.RowKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.seen[key]; exists {
		return true
	}

	if t.maxSize > 0 && len(t.seen) >= t.maxSize {
		t.evictOldest()
	}

	t.seen[key] = struct{}{}
	if t.maxSize > 0 {
		t.order = append(t.order, key)
	}
	t.size.Add(1)
	return false
}

// evictOldest drops the earliest still-recorded key.
// Must be called with t.mu held.
func (t *inMemoryTracker) evictOldest() {
	for t.next < len(t.order) {
		key := t.order[t.next]
		t.next++
		if _, exists := t.seen[key]; exists {
			delete(t.seen, key)
			t.size.Add(-1)
			return
		}
	}
}

// Size returns the current number of recorded keys.
func (t *inMemoryTracker) Size() int64 {
	return t.size.Load()
}
