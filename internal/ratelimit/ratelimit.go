// Package ratelimit implements the collection core's admission throttle: a
// per-key token bucket guarding HTTP dispatch, and a bounded sliding-window
// quota enforcer guarding external API calls.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out per-key token bucket permits. Keys are typically
// hostnames (for the HTTP fetcher) or provider names (for enrichment).
// Buckets are created lazily on first use and shared among all callers
// for that key; mutation of the bucket map requires exclusive access only
// for the lookup-or-create step, never while waiting on a token.
type Limiter struct {
	rate  rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New creates a Limiter with a single rate/burst pair applied uniformly
// to every key, per the Rate-Policy.
func New(requestsPerSecond float64, burst int) *Limiter {
	return &Limiter{
		rate:    rate.Limit(requestsPerSecond),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Acquire suspends the caller until a token is available for key, or
// returns ctx.Err() if the context is cancelled first. Cancellation
// removes the waiter without consuming a token.
func (l *Limiter) Acquire(ctx context.Context, key string) error {
	return l.bucketFor(key).Wait(ctx)
}

func (l *Limiter) bucketFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.rate, l.burst)
		l.buckets[key] = b
	}
	return b
}

// Keys reports the set of distinct keys with an active bucket, bounding
// invariant 3: the number of distinct hosts with token-bucket state is
// bounded by the number of distinct hosts seen.
func (l *Limiter) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make([]string, 0, len(l.buckets))
	for k := range l.buckets {
		keys = append(keys, k)
	}
	return keys
}

// Window is a bounded sliding-window quota enforcer for a single named
// API. At most Requests timestamps are ever retained per key.
type Window struct {
	requests int
	window   time.Duration

	mu         sync.Mutex
	timestamps map[string][]time.Time
}

// NewWindow builds a sliding-window enforcer allowing at most requests
// calls per key within the trailing window duration.
func NewWindow(requests int, window time.Duration) *Window {
	return &Window{
		requests:   requests,
		window:     window,
		timestamps: make(map[string][]time.Time),
	}
}

// Allow reports whether a call for key is permitted right now. When not
// permitted, it also returns the delay until the oldest retained
// timestamp falls outside the window. Allow never blocks; it is the
// caller's choice to retry or drop per the spec's "reported, not blocked
// on" failure semantics.
func (w *Window) Allow(key string, now time.Time) (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.window)
	ts := w.timestamps[key]

	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= w.requests {
		w.timestamps[key] = kept
		retryAfter := kept[0].Add(w.window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter
	}

	kept = append(kept, now)
	w.timestamps[key] = kept
	return true, 0
}
