package observability

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes collection-core counters (requests, cache hit rate,
// policy blocks, enrichment latency) via the Prometheus text exposition
// format, generalized from the teacher's crawl-specific metric set.
type Metrics struct {
	RequestsTotal    prometheus.Counter
	RequestsFailed   prometheus.Counter
	RequestsRetried  prometheus.Counter
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	PolicyBlocked    prometheus.Counter
	BytesDownloaded  prometheus.Counter
	ActiveWorkers    prometheus.Gauge

	EnrichmentLatency prometheus.Histogram
	FetchLatency      prometheus.Histogram

	registry *prometheus.Registry
	logger   *slog.Logger
}

// NewMetrics builds a Metrics instance with its own registry, so that a
// run's metrics never collide with the default global registry.
func NewMetrics(logger *slog.Logger) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketscout_requests_total", Help: "Total candidate fetches issued (retries counted separately).",
		}),
		RequestsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketscout_requests_failed_total", Help: "Total fetch attempts that failed terminally.",
		}),
		RequestsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketscout_requests_retried_total", Help: "Total fetch attempts that were retried.",
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketscout_cache_hits_total", Help: "Total cache store lookups that hit.",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketscout_cache_misses_total", Help: "Total cache store lookups that missed.",
		}),
		PolicyBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketscout_policy_blocked_total", Help: "Total candidates rejected by the policy gate.",
		}),
		BytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketscout_bytes_downloaded_total", Help: "Total response bytes read.",
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketscout_active_workers", Help: "Currently active worker pool goroutines.",
		}),
		EnrichmentLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "marketscout_enrichment_seconds", Help: "Enrichment orchestrator fan-out latency.",
			Buckets: prometheus.DefBuckets,
		}),
		FetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "marketscout_fetch_seconds", Help: "HTTP fetcher per-candidate latency.",
			Buckets: prometheus.DefBuckets,
		}),
		registry: reg,
		logger:   logger.With("component", "metrics"),
	}

	reg.MustRegister(
		m.RequestsTotal, m.RequestsFailed, m.RequestsRetried,
		m.CacheHitsTotal, m.CacheMissesTotal, m.PolicyBlocked,
		m.BytesDownloaded, m.ActiveWorkers,
		m.EnrichmentLatency, m.FetchLatency,
	)

	return m
}

// StartServer starts the metrics HTTP server on the given port/path,
// backgrounded so the caller is never blocked by it.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := ":" + strconv.Itoa(port)
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}
