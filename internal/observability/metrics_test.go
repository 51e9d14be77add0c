package observability

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNewMetricsRegistersAllCollectors(t *testing.T) {
	m := NewMetrics(testLogger)
	m.RequestsTotal.Inc()
	m.RequestsTotal.Inc()
	m.CacheHitsTotal.Inc()
	m.ActiveWorkers.Set(3)

	handler := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "marketscout_requests_total 2") {
		t.Errorf("expected requests_total to report 2, body:\n%s", body)
	}
	if !strings.Contains(body, "marketscout_cache_hits_total 1") {
		t.Errorf("expected cache_hits_total to report 1, body:\n%s", body)
	}
	if !strings.Contains(body, "marketscout_active_workers 3") {
		t.Errorf("expected active_workers to report 3, body:\n%s", body)
	}
}

func TestNewMetricsFreshRegistryPerInstance(t *testing.T) {
	a := NewMetrics(testLogger)
	b := NewMetrics(testLogger)

	a.RequestsTotal.Inc()

	handlerA := promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
	handlerB := promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{})

	recA := httptest.NewRecorder()
	handlerA.ServeHTTP(recA, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(recA.Body.String(), "marketscout_requests_total 1") {
		t.Error("expected instance a to show 1 request")
	}

	recB := httptest.NewRecorder()
	handlerB.ServeHTTP(recB, httptest.NewRequest("GET", "/metrics", nil))
	if strings.Contains(recB.Body.String(), "marketscout_requests_total 1") {
		t.Error("expected instance b's independent registry to not see instance a's increments")
	}
}
