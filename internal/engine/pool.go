// Package engine implements the Worker Pool (C7): a bounded-concurrency
// dispatcher over a candidate stream, driving each candidate through
// policy-check -> cache-lookup -> (fetch | cache-hit) -> enrich ->
// writer-append.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/huntlines/marketscout/internal/batch"
	"github.com/huntlines/marketscout/internal/cache"
	"github.com/huntlines/marketscout/internal/enrichment"
	"github.com/huntlines/marketscout/internal/eventlog"
	"github.com/huntlines/marketscout/internal/fetcher"
	"github.com/huntlines/marketscout/internal/observability"
	"github.com/huntlines/marketscout/internal/policy"
	"github.com/huntlines/marketscout/internal/types"
)

// Config parameterizes a Pool for one run.
type Config struct {
	RunID       string
	MaxWorkers  int
	TaskTimeout time.Duration
	CacheTTL    time.Duration
}

// Pool is the run's dispatcher: it holds a counting semaphore of
// capacity MaxWorkers and spawns one goroutine per admitted candidate,
// looping until the input stream is drained or the run is cancelled.
type Pool struct {
	cfg Config

	gate       *policy.Gate
	fetchCache *cache.Store
	fetcher    *fetcher.Fetcher
	enricher   *enrichment.Orchestrator // nil disables enrichment
	writer     *batch.Writer
	log        *eventlog.Log
	logger     *slog.Logger
	metrics    *observability.Metrics // nil disables Prometheus reporting

	stats *Stats
}

// New builds a Pool. enricher may be nil to disable the enrichment step
// entirely (the orchestrator is an optional stage per the data-flow
// contract). metrics may be nil to run without the Prometheus exposition
// endpoint; every metrics.* call in the pool is nil-checked.
func New(cfg Config, gate *policy.Gate, fetchCache *cache.Store, f *fetcher.Fetcher, enricher *enrichment.Orchestrator, writer *batch.Writer, log *eventlog.Log, logger *slog.Logger, metrics *observability.Metrics) *Pool {
	return &Pool{
		cfg:        cfg,
		gate:       gate,
		fetchCache: fetchCache,
		fetcher:    f,
		enricher:   enricher,
		writer:     writer,
		log:        log,
		logger:     logger.With("component", "pool", "run_id", cfg.RunID),
		metrics:    metrics,
		stats:      &Stats{StartTime: time.Now()},
	}
}

// Stats returns the pool's live statistics.
func (p *Pool) Stats() *Stats { return p.stats }

// Run dispatches every candidate on the channel to a worker goroutine,
// bounded by MaxWorkers in-flight at a time. It returns when the
// channel is drained and all dispatched tasks have settled. If the run
// is cancelled before that point it returns ctx.Err(): no further
// candidates are accepted and outstanding tasks are given a chance to
// observe the cancellation before Run returns.
func (p *Pool) Run(ctx context.Context, candidates <-chan types.Candidate) error {
	sem := make(chan struct{}, p.cfg.MaxWorkers)
	var wg sync.WaitGroup

	var cancelled bool
loop:
	for {
		select {
		case <-ctx.Done():
			cancelled = true
			break loop
		case c, ok := <-candidates:
			if !ok {
				break loop
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				cancelled = true
				break loop
			}

			wg.Add(1)
			p.stats.ActiveWorkers.Add(1)
			if p.metrics != nil {
				p.metrics.ActiveWorkers.Inc()
			}
			go func(c types.Candidate) {
				defer wg.Done()
				defer func() { <-sem }()
				defer p.stats.ActiveWorkers.Add(-1)
				if p.metrics != nil {
					defer p.metrics.ActiveWorkers.Dec()
				}

				taskCtx, cancel := context.WithTimeout(ctx, p.cfg.TaskTimeout)
				defer cancel()
				p.processCandidate(taskCtx, c)
			}(c)
		}
	}

	wg.Wait()

	// A cancellation that arrives after the last candidate was dispatched
	// but before its task settled still counts as a cancelled run.
	if !cancelled && ctx.Err() != nil {
		cancelled = true
	}

	if cancelled {
		p.stats.Cancelled.Store(true)
		p.log.Emit(types.NewEvent(p.cfg.RunID, types.EventRunCompleted, "cancelled", "run cancelled before completion"))
		return ctx.Err()
	}

	p.log.Emit(types.NewEvent(p.cfg.RunID, types.EventRunCompleted, "ok", "run completed"))
	return nil
}
