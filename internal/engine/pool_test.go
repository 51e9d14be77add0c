package engine

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/huntlines/marketscout/internal/batch"
	"github.com/huntlines/marketscout/internal/cache"
	"github.com/huntlines/marketscout/internal/eventlog"
	"github.com/huntlines/marketscout/internal/fetcher"
	"github.com/huntlines/marketscout/internal/observability"
	"github.com/huntlines/marketscout/internal/policy"
	"github.com/huntlines/marketscout/internal/ratelimit"
	"github.com/huntlines/marketscout/internal/store"
	"github.com/huntlines/marketscout/internal/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type testHarness struct {
	pool    *Pool
	writer  *batch.Writer
	h       *store.Handle
	metrics *observability.Metrics
}

func newTestHarness(t *testing.T, allowedHost string) *testHarness {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	h, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { h.Close() })

	fetchCache := cache.New(h, "fetch_cache", time.Hour)
	log := eventlog.New(h, "run-1", testLogger)
	t.Cleanup(log.Close)

	allowed := map[string]struct{}{"*": {}}
	if allowedHost != "" {
		allowed = map[string]struct{}{allowedHost: {}}
	}
	gate := policy.New(types.PolicyConfig{
		AllowedHosts:   allowed,
		AllowedMethods: map[string]struct{}{"GET": {}},
		UserAgent:      "marketscout-test/1.0",
	})

	limiter := ratelimit.New(1000, 1000)
	cfg := fetcher.DefaultConfig("marketscout-test/1.0")
	f, err := fetcher.New(cfg, limiter, gate, testLogger)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	t.Cleanup(f.Close)

	outPath := filepath.Join(t.TempDir(), "out.parquet")
	writer, err := batch.Open(outPath)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}

	metrics := observability.NewMetrics(testLogger)

	pool := New(Config{
		RunID:       "run-1",
		MaxWorkers:  4,
		TaskTimeout: 5 * time.Second,
		CacheTTL:    time.Hour,
	}, gate, fetchCache, f, nil, writer, log, testLogger, metrics)

	return &testHarness{pool: pool, writer: writer, h: h, metrics: metrics}
}

func TestPoolRunFetchesAndAppendsSuccessfulCandidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	hn := newTestHarness(t, "")
	candidates := make(chan types.Candidate, 1)
	candidates <- types.NewCandidate(srv.URL)
	close(candidates)

	if err := hn.pool.Run(context.Background(), candidates); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := hn.writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	stats := hn.pool.Stats().Snapshot()
	if stats["attempted"] != int64(1) {
		t.Errorf("expected 1 attempted, got %v", stats["attempted"])
	}
	if stats["succeeded"] != int64(1) {
		t.Errorf("expected 1 succeeded, got %v", stats["succeeded"])
	}
	if hn.writer.RowCount() != 1 {
		t.Errorf("expected 1 row written, got %d", hn.writer.RowCount())
	}
	if got := testutil.ToFloat64(hn.metrics.RequestsTotal); got != 1 {
		t.Errorf("expected metrics.RequestsTotal to report 1, got %v", got)
	}
	if got := testutil.ToFloat64(hn.metrics.CacheMissesTotal); got != 1 {
		t.Errorf("expected metrics.CacheMissesTotal to report 1, got %v", got)
	}
	if got := testutil.ToFloat64(hn.metrics.BytesDownloaded); got != 5 {
		t.Errorf("expected metrics.BytesDownloaded to report 5 (len(\"hello\")), got %v", got)
	}
}

func TestPoolRunBlocksDisallowedHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hn := newTestHarness(t, "only-this-host-is-allowed.invalid")
	candidates := make(chan types.Candidate, 1)
	candidates <- types.NewCandidate(srv.URL)
	close(candidates)

	if err := hn.pool.Run(context.Background(), candidates); err != nil {
		t.Fatalf("run: %v", err)
	}
	hn.writer.Close()

	stats := hn.pool.Stats().Snapshot()
	if stats["policy_blocked"] != int64(1) {
		t.Errorf("expected 1 policy-blocked candidate, got %v", stats["policy_blocked"])
	}
	if stats["failed"] != int64(1) {
		t.Errorf("expected 1 failed candidate, got %v", stats["failed"])
	}
	if got := testutil.ToFloat64(hn.metrics.PolicyBlocked); got != 1 {
		t.Errorf("expected metrics.PolicyBlocked to report 1, got %v", got)
	}
}

func TestPoolRunServesSecondFetchFromCache(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("cached body"))
	}))
	defer srv.Close()

	hn := newTestHarness(t, "")
	ctx := context.Background()

	first := make(chan types.Candidate, 1)
	first <- types.NewCandidate(srv.URL)
	close(first)
	if err := hn.pool.Run(ctx, first); err != nil {
		t.Fatalf("first run: %v", err)
	}

	second := make(chan types.Candidate, 1)
	second <- types.NewCandidate(srv.URL)
	close(second)
	if err := hn.pool.Run(ctx, second); err != nil {
		t.Fatalf("second run: %v", err)
	}

	hn.writer.Close()

	if hits != 1 {
		t.Errorf("expected the origin server to be hit exactly once, got %d hits", hits)
	}
	stats := hn.pool.Stats().Snapshot()
	if stats["cache_hits"] != int64(1) {
		t.Errorf("expected 1 cache hit across both runs, got %v", stats["cache_hits"])
	}
	if hn.writer.RowCount() != 2 {
		t.Errorf("expected 2 rows total (fetch + cache hit), got %d", hn.writer.RowCount())
	}
}

func TestPoolRunHandlesTerminalFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	hn := newTestHarness(t, "")
	candidates := make(chan types.Candidate, 1)
	candidates <- types.NewCandidate(srv.URL)
	close(candidates)

	if err := hn.pool.Run(context.Background(), candidates); err != nil {
		t.Fatalf("run: %v", err)
	}
	hn.writer.Close()

	stats := hn.pool.Stats().Snapshot()
	if stats["http_client_error"] != int64(1) {
		t.Errorf("expected 1 http_client_error, got %v", stats["http_client_error"])
	}
	if stats["failed"] != int64(1) {
		t.Errorf("expected 1 failed, got %v", stats["failed"])
	}
}

func TestPoolRunCancelledContextStopsEarly(t *testing.T) {
	hn := newTestHarness(t, "")
	ctx, cancel := context.WithCancel(context.Background())

	// An empty, never-closed channel: Run can only return via ctx.Done()
	// while blocked waiting for the next candidate, so cancellation is
	// deterministic rather than racing a ready candidate send.
	candidates := make(chan types.Candidate)
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := hn.pool.Run(ctx, candidates)
	if err == nil {
		t.Fatal("expected an error from a cancelled context")
	}
	hn.writer.Close()

	if !hn.pool.Stats().Cancelled.Load() {
		t.Error("expected Stats.Cancelled to be set")
	}
}

// TestPoolRunCancellationAfterDispatchProducesZeroRows covers spec
// invariant #12: a task already dispatched to a worker when the run is
// cancelled must never reach the writer — not even as a failure row.
func TestPoolRunCancellationAfterDispatchProducesZeroRows(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("too slow"))
	}))
	defer srv.Close()

	hn := newTestHarness(t, "")
	ctx, cancel := context.WithCancel(context.Background())

	candidates := make(chan types.Candidate, 1)
	candidates <- types.NewCandidate(srv.URL)
	close(candidates)

	go func() {
		<-started // cancel only once the worker has actually dispatched the fetch
		cancel()
	}()

	if err := hn.pool.Run(ctx, candidates); err == nil {
		t.Fatal("expected an error from a run cancelled mid-flight")
	}
	if err := hn.writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	if hn.writer.RowCount() != 0 {
		t.Errorf("expected zero rows for a task cancelled after dispatch but before completion, got %d", hn.writer.RowCount())
	}
}
