package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRegistryObserveAndSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Observe("GET /api/v1/catalog", 200, 15*time.Millisecond)
	r.Observe("GET /api/v1/catalog", 503, 35*time.Millisecond)
	r.IncCacheHit()
	r.IncCacheHit()
	r.IncCacheMiss()
	r.IncDegraded("GATEWAY_UNAVAILABLE")
	r.IncInvalidSession()
	r.SetGauge("cache_entries", 3)

	snap := r.Snapshot()
	ep, ok := snap.Endpoints["GET /api/v1/catalog"]
	if !ok {
		t.Fatal("missing endpoint metric")
	}
	if ep.Count != 2 {
		t.Fatalf("expected count=2 got=%d", ep.Count)
	}
	if ep.ErrorCount != 1 {
		t.Fatalf("expected error_count=1 got=%d", ep.ErrorCount)
	}
	if ep.MaxMillis != 35 {
		t.Fatalf("expected max_millis=35 got=%d", ep.MaxMillis)
	}
	if snap.CacheHits != 2 || snap.CacheMisses != 1 {
		t.Fatalf("expected hits=2 misses=1 got=%d/%d", snap.CacheHits, snap.CacheMisses)
	}
	if snap.DegradedTotals["GATEWAY_UNAVAILABLE"] != 1 {
		t.Fatalf("expected degraded GATEWAY_UNAVAILABLE=1 got=%d", snap.DegradedTotals["GATEWAY_UNAVAILABLE"])
	}
	if snap.InvalidSessions != 1 {
		t.Fatalf("expected invalid_sessions=1 got=%d", snap.InvalidSessions)
	}
	if snap.Gauges["cache_entries"] != 3 {
		t.Fatalf("expected gauge cache_entries=3 got=%v", snap.Gauges["cache_entries"])
	}
}

func TestGatewayLatencyStat(t *testing.T) {
	r := NewRegistry()
	r.ObserveGatewayLatency(10 * time.Millisecond)
	r.ObserveGatewayLatency(30 * time.Millisecond)
	r.ObserveGatewayLatency(-time.Millisecond)

	snap := r.Snapshot()
	if snap.GatewayLatencyMS.Count != 3 {
		t.Fatalf("expected count=3 got=%d", snap.GatewayLatencyMS.Count)
	}
	if snap.GatewayLatencyMS.MaxMS != 30 {
		t.Fatalf("expected max=30 got=%d", snap.GatewayLatencyMS.MaxMS)
	}
	if snap.GatewayLatencyMS.LastMS != 0 {
		t.Fatalf("negative observation must clamp to 0, got=%d", snap.GatewayLatencyMS.LastMS)
	}
}

func TestDegradedReasonDefaultsToUnknown(t *testing.T) {
	r := NewRegistry()
	r.IncDegraded("  ")
	if got := r.Snapshot().DegradedTotals["UNKNOWN"]; got != 1 {
		t.Fatalf("expected UNKNOWN=1 got=%d", got)
	}
}

func TestSortedKeys(t *testing.T) {
	keys := SortedKeys(map[string]int{"b": 2, "a": 1, "c": 3})
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys got=%d", len(keys))
	}
	if keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Fatalf("unexpected order: %#v", keys)
	}
}

func TestPrometheusHandler(t *testing.T) {
	r := NewRegistry()
	r.Observe("GET /api/v1/catalog", 200, 12*time.Millisecond)
	r.Observe("GET /api/v1/catalog", 500, 20*time.Millisecond)
	r.IncCacheHit()
	r.IncDegraded("GATEWAY_BAD_RESPONSE")
	r.SetGauge("cache_entries", 7)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics/prometheus", nil)
	r.PrometheusHandler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "storefront_endpoint_count") {
		t.Fatalf("missing endpoint metric: %s", body)
	}
	if !strings.Contains(body, "storefront_cache_hits_total 1") {
		t.Fatalf("missing cache hit metric: %s", body)
	}
	if !strings.Contains(body, "storefront_degraded_total{reason=\"GATEWAY_BAD_RESPONSE\"} 1") {
		t.Fatalf("missing degraded metric: %s", body)
	}
	if !strings.Contains(body, "storefront_gauge{name=\"cache_entries\"} 7.000") {
		t.Fatalf("missing gauge metric: %s", body)
	}
}

func TestJSONHandlerAndEmptyInputs(t *testing.T) {
	r := NewRegistry()
	r.SetGauge("", 5)
	r.Observe("GET /healthz", 204, 5*time.Millisecond)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected json content type, got %q", got)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "\"generated_at\"") {
		t.Fatalf("expected generated timestamp in body: %s", body)
	}
	if strings.Contains(body, "\"\"") {
		t.Fatalf("did not expect empty-key counters in body: %s", body)
	}
}
