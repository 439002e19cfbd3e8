// Package ratelimit provides the per-tenant request limiter.
//
// The limiter is a sliding window over admitted-request timestamps: every
// check prunes entries older than the window before counting, so a burst
// straddling a fixed-window boundary cannot double the effective rate.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/keithrawlingsbrown/stet/pkg/requestcontext"
)

// Result is the outcome of one admission check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is whole seconds until a retry can succeed. Set only on
	// denial, never below 1.
	RetryAfter int
}

// SlidingWindow admits up to limit requests per key within a rolling window.
// Counters live in process memory; a multi-instance deployment limits per
// instance.
type SlidingWindow struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*bucket
}

type bucket struct {
	timestamps []time.Time
}

// NewSlidingWindow creates a limiter admitting limit requests per window.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
	}
}

// Allow records one request against key if capacity remains. The clock comes
// from the request context so admission decisions share the request's
// timestamp.
func (s *SlidingWindow) Allow(ctx context.Context, key string) (*Result, error) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.buckets[key]
	if b == nil {
		b = &bucket{}
		s.buckets[key] = b
	}
	b.prune(now, s.window)

	if len(b.timestamps) < s.limit {
		b.timestamps = append(b.timestamps, now)
		return &Result{
			Allowed:   true,
			Limit:     s.limit,
			Remaining: s.limit - len(b.timestamps),
			ResetAt:   b.timestamps[0].Add(s.window),
		}, nil
	}

	// Capacity frees when the oldest admitted request leaves the window.
	resetAt := b.timestamps[0].Add(s.window)
	retryAfter := int((resetAt.Sub(now) + time.Second - 1) / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}
	return &Result{
		Allowed:    false,
		Limit:      s.limit,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
	}, nil
}

// Reset clears the counter for a key.
func (s *SlidingWindow) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
}

// prune drops timestamps that have left the window. Callers hold the lock.
func (b *bucket) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(b.timestamps); i++ {
		if b.timestamps[i].After(cutoff) {
			break
		}
	}
	b.timestamps = b.timestamps[i:]
}
