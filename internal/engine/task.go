package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/huntlines/marketscout/internal/types"
)

// cachedFetch is the fetch cache's on-disk payload: enough of a Fetch-
// Result to reconstruct a cache hit without re-issuing the request.
type cachedFetch struct {
	StatusCode int    `json:"status_code"`
	Content    []byte `json:"content"`
}

// processCandidate drives one candidate through the full per-task
// pipeline: policy check, cache lookup, fetch-or-cache-hit, optional
// enrichment, and a single Record-Batch append. It never returns an
// error; every failure is recorded as an event and a stat and the task
// simply ends.
func (p *Pool) processCandidate(ctx context.Context, c types.Candidate) {
	p.stats.Attempted.Add(1)
	url := c.Raw

	admit, reason := p.gate.Evaluate(ctx, url, http.MethodGet)
	if !admit {
		p.stats.PolicyBlocked.Add(1)
		p.stats.Failed.Add(1)
		if p.metrics != nil {
			p.metrics.PolicyBlocked.Inc()
		}
		p.log.Emit(types.NewEvent(p.cfg.RunID, types.EventPolicyBlocked, "blocked", "candidate rejected by policy").
			With("url", url).With("reason", string(reason)))
		p.appendResult(ctx, types.BlockedResult(url, reason))
		return
	}

	if payload, ok := p.fetchCache.LookupTTL(ctx, url, p.cfg.CacheTTL); ok {
		p.stats.CacheHits.Add(1)
		if p.metrics != nil {
			p.metrics.CacheHitsTotal.Inc()
		}
		var cached cachedFetch
		if err := json.Unmarshal(payload, &cached); err == nil {
			p.log.Emit(types.NewEvent(p.cfg.RunID, types.EventCacheHit, "ok", "served from cache").With("url", url))
			result := types.FetchResult{URL: url, Success: true, StatusCode: cached.StatusCode, Content: cached.Content}
			p.stats.Succeeded.Add(1)
			p.enrichAndAppend(ctx, result)
			return
		}
	}
	p.stats.CacheMisses.Add(1)
	if p.metrics != nil {
		p.metrics.CacheMissesTotal.Inc()
	}
	p.log.Emit(types.NewEvent(p.cfg.RunID, types.EventCacheMiss, "ok", "not cached").With("url", url))

	p.log.Emit(types.NewEvent(p.cfg.RunID, types.EventFetchStarted, "ok", "fetch started").With("url", url))
	if p.metrics != nil {
		p.metrics.RequestsTotal.Inc()
	}
	result, retried := p.fetcher.Fetch(ctx, url)
	if p.metrics != nil {
		p.metrics.FetchLatency.Observe(result.Duration.Seconds())
		if len(retried) > 0 {
			p.metrics.RequestsRetried.Add(float64(len(retried)))
		}
	}

	for _, r := range retried {
		p.log.Emit(types.NewEvent(p.cfg.RunID, types.EventFetchFailed, "retry", r.Error).
			With("url", r.URL).With("status_code", r.StatusCode))
	}

	if result.Blocked != types.BlockNone {
		p.stats.PolicyBlocked.Add(1)
		p.stats.Failed.Add(1)
		if p.metrics != nil {
			p.metrics.PolicyBlocked.Inc()
		}
		p.log.Emit(types.NewEvent(p.cfg.RunID, types.EventPolicyBlocked, "blocked", "redirect target rejected by policy").
			With("url", result.URL).With("reason", string(result.Blocked)))
		p.appendResult(ctx, result)
		return
	}

	if !result.Success {
		p.classifyFailure(result)
		p.stats.Failed.Add(1)
		if p.metrics != nil {
			p.metrics.RequestsFailed.Inc()
		}
		p.log.Emit(types.NewEvent(p.cfg.RunID, types.EventFetchFailed, "terminal", result.Error).
			With("url", result.URL).With("status_code", result.StatusCode).With("attempts", result.Attempts))
		p.appendResult(ctx, result)
		return
	}

	p.stats.Succeeded.Add(1)
	if p.metrics != nil {
		p.metrics.BytesDownloaded.Add(float64(len(result.Content)))
	}
	p.log.Emit(types.NewEvent(p.cfg.RunID, types.EventFetchSucceeded, "ok", "fetch succeeded").
		With("url", result.URL).With("status_code", result.StatusCode).With("attempts", result.Attempts))

	if payload, err := json.Marshal(cachedFetch{StatusCode: result.StatusCode, Content: result.Content}); err == nil {
		if err := p.fetchCache.Put(ctx, result.URL, payload); err == nil {
			p.log.Emit(types.NewEvent(p.cfg.RunID, types.EventCacheWrite, "ok", "cached fetch result").With("url", result.URL))
		}
	}

	p.enrichAndAppend(ctx, result)
}

// enrichAndAppend runs the optional enrichment stage (a no-op when the
// pool has no orchestrator configured) and appends the resulting row.
func (p *Pool) enrichAndAppend(ctx context.Context, result types.FetchResult) {
	if p.enricher != nil {
		enrichStart := time.Now()
		score := p.enricher.Enrich(ctx, result.URL, 50)
		if p.metrics != nil {
			p.metrics.EnrichmentLatency.Observe(time.Since(enrichStart).Seconds())
		}
		p.log.Emit(types.NewEvent(p.cfg.RunID, types.EventEnrichmentApplied, "ok", "enrichment applied").
			With("url", result.URL).With("final_score", score.Final).With("site_type", string(score.SiteType)))
	}
	p.appendResult(ctx, result)
}

// appendResult writes one row, unless the run was cancelled before the
// write could happen — a task cancelled mid-flight must produce zero
// rows, never a partial or synthesized failure row.
func (p *Pool) appendResult(ctx context.Context, result types.FetchResult) {
	select {
	case <-ctx.Done():
		p.logger.Warn("append skipped, context cancelled", "url", result.URL)
		return
	default:
	}

	if err := p.writer.Append(ctx, result); err != nil {
		p.logger.Error("record batch append failed", "url", result.URL, "error", err)
	}
}

// classifyFailure buckets a terminal failure into the stats category the
// terminal report groups by.
func (p *Pool) classifyFailure(result types.FetchResult) {
	switch {
	case result.StatusCode == 0 && strings.Contains(strings.ToLower(result.Error), "deadline exceeded"):
		p.stats.TransportTimeout.Add(1)
	case result.StatusCode == 0 && strings.Contains(strings.ToLower(result.Error), "too large"):
		p.stats.BodyTooLarge.Add(1)
	case result.StatusCode == 0:
		p.stats.TransportIO.Add(1)
	case result.StatusCode >= 500:
		p.stats.HTTPServerError.Add(1)
	case result.StatusCode >= 400:
		p.stats.HTTPClientError.Add(1)
	default:
		p.stats.TransportIO.Add(1)
	}
}
