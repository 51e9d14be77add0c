package engine

import (
	"sync/atomic"
	"time"
)

// Stats tracks run-wide counters, including a breakdown by error category
// for the terminal stderr report (§7's user-visible failure behavior).
type Stats struct {
	Attempted  atomic.Int64
	Succeeded  atomic.Int64
	Failed     atomic.Int64
	Cancelled  atomic.Bool

	PolicyBlocked      atomic.Int64
	TransportTimeout   atomic.Int64
	TransportIO        atomic.Int64
	HTTPClientError    atomic.Int64
	HTTPServerError    atomic.Int64
	BodyTooLarge       atomic.Int64
	CacheHits          atomic.Int64
	CacheMisses        atomic.Int64
	ActiveWorkers      atomic.Int32

	StartTime time.Time
}

// Snapshot returns a point-in-time copy of the counters as a plain map,
// suitable for logging or the terminal report.
func (s *Stats) Snapshot() map[string]any {
	return map[string]any{
		"attempted":          s.Attempted.Load(),
		"succeeded":          s.Succeeded.Load(),
		"failed":             s.Failed.Load(),
		"cancelled":          s.Cancelled.Load(),
		"policy_blocked":     s.PolicyBlocked.Load(),
		"transport_timeout":  s.TransportTimeout.Load(),
		"transport_io":       s.TransportIO.Load(),
		"http_client_error":  s.HTTPClientError.Load(),
		"http_server_error":  s.HTTPServerError.Load(),
		"body_too_large":     s.BodyTooLarge.Load(),
		"cache_hits":         s.CacheHits.Load(),
		"cache_misses":       s.CacheMisses.Load(),
		"active_workers":     s.ActiveWorkers.Load(),
		"elapsed":            time.Since(s.StartTime).String(),
	}
}
