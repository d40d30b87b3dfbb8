package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type Registry struct {
	mu              sync.RWMutex
	endpoint        map[string]*EndpointStat
	degradedReason  map[string]int64
	gauges          map[string]float64
	cacheHits       int64
	cacheMisses     int64
	invalidSessions int64
	gatewayLatency  GatewayLatencyStat
	Histograms      *HistogramRegistry
}

type EndpointStat struct {
	Count          int64   `json:"count"`
	ErrorCount     int64   `json:"error_count"`
	TotalMillis    int64   `json:"total_millis"`
	MaxMillis      int64   `json:"max_millis"`
	AverageMillis  float64 `json:"average_millis"`
	LastStatusCode int     `json:"last_status_code"`
}

// GatewayLatencyStat summarizes round trips to the data gateway.
type GatewayLatencyStat struct {
	Count   int64   `json:"count"`
	TotalMS int64   `json:"total_ms"`
	MaxMS   int64   `json:"max_ms"`
	LastMS  int64   `json:"last_ms"`
	AvgMS   float64 `json:"avg_ms"`
}

type Snapshot struct {
	GeneratedAt      string                  `json:"generated_at"`
	Endpoints        map[string]EndpointStat `json:"endpoints"`
	CacheHits        int64                   `json:"cache_hits_total"`
	CacheMisses      int64                   `json:"cache_misses_total"`
	DegradedTotals   map[string]int64        `json:"degraded_totals"`
	InvalidSessions  int64                   `json:"invalid_sessions_total"`
	Gauges           map[string]float64      `json:"gauges"`
	GatewayLatencyMS GatewayLatencyStat      `json:"gateway_latency_ms"`
	Histograms       []HistogramSnapshot     `json:"histograms,omitempty"`
}

func NewRegistry() *Registry {
	return &Registry{
		endpoint:       map[string]*EndpointStat{},
		degradedReason: map[string]int64{},
		gauges:         map[string]float64{},
		Histograms:     NewHistogramRegistry(),
	}
}

func (r *Registry) ObserveLatency(endpoint string, d time.Duration) {
	r.Histograms.ObserveDuration(endpoint, d)
}

func (r *Registry) Observe(path string, status int, d time.Duration) {
	millis := d.Milliseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	stat, ok := r.endpoint[path]
	if !ok {
		stat = &EndpointStat{}
		r.endpoint[path] = stat
	}
	stat.Count++
	if status >= 400 {
		stat.ErrorCount++
	}
	stat.TotalMillis += millis
	if millis > stat.MaxMillis {
		stat.MaxMillis = millis
	}
	stat.LastStatusCode = status
	stat.AverageMillis = float64(stat.TotalMillis) / float64(stat.Count)
}

func (r *Registry) IncCacheHit() {
	r.mu.Lock()
	r.cacheHits++
	r.mu.Unlock()
}

func (r *Registry) IncCacheMiss() {
	r.mu.Lock()
	r.cacheMisses++
	r.mu.Unlock()
}

// IncDegraded counts a degraded catalog page by its reason code.
func (r *Registry) IncDegraded(reason string) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "UNKNOWN"
	}
	r.mu.Lock()
	r.degradedReason[reason]++
	r.mu.Unlock()
}

// IncInvalidSession counts requests whose bearer token failed verification
// and were downgraded to anonymous.
func (r *Registry) IncInvalidSession() {
	r.mu.Lock()
	r.invalidSessions++
	r.mu.Unlock()
}

func (r *Registry) ObserveGatewayLatency(d time.Duration) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gatewayLatency.Count++
	r.gatewayLatency.TotalMS += ms
	r.gatewayLatency.LastMS = ms
	if ms > r.gatewayLatency.MaxMS {
		r.gatewayLatency.MaxMS = ms
	}
	r.gatewayLatency.AvgMS = float64(r.gatewayLatency.TotalMS) / float64(r.gatewayLatency.Count)
}

func (r *Registry) SetGauge(name string, value float64) {
	if name == "" {
		return
	}
	r.mu.Lock()
	r.gauges[name] = value
	r.mu.Unlock()
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Snapshot{
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
		Endpoints:       make(map[string]EndpointStat, len(r.endpoint)),
		CacheHits:       r.cacheHits,
		CacheMisses:     r.cacheMisses,
		DegradedTotals:  make(map[string]int64, len(r.degradedReason)),
		InvalidSessions: r.invalidSessions,
		Gauges:          make(map[string]float64, len(r.gauges)),
		GatewayLatencyMS: GatewayLatencyStat{
			Count:   r.gatewayLatency.Count,
			TotalMS: r.gatewayLatency.TotalMS,
			MaxMS:   r.gatewayLatency.MaxMS,
			LastMS:  r.gatewayLatency.LastMS,
			AvgMS:   r.gatewayLatency.AvgMS,
		},
	}
	for k, v := range r.endpoint {
		out.Endpoints[k] = *v
	}
	for k, v := range r.degradedReason {
		out.DegradedTotals[k] = v
	}
	for k, v := range r.gauges {
		out.Gauges[k] = v
	}
	out.Histograms = r.Histograms.Snapshots()
	return out
}

func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(snap)
	}
}

func (r *Registry) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		b := &strings.Builder{}
		b.WriteString("# HELP storefront_endpoint_count total requests by endpoint\n")
		b.WriteString("# TYPE storefront_endpoint_count counter\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			stat := snap.Endpoints[ep]
			fmt.Fprintf(b, "storefront_endpoint_count{endpoint=%q} %d\n", ep, stat.Count)
		}
		b.WriteString("# HELP storefront_endpoint_error_count total endpoint errors\n")
		b.WriteString("# TYPE storefront_endpoint_error_count counter\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			stat := snap.Endpoints[ep]
			fmt.Fprintf(b, "storefront_endpoint_error_count{endpoint=%q} %d\n", ep, stat.ErrorCount)
		}
		b.WriteString("# HELP storefront_endpoint_avg_millis endpoint average latency in milliseconds\n")
		b.WriteString("# TYPE storefront_endpoint_avg_millis gauge\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			stat := snap.Endpoints[ep]
			fmt.Fprintf(b, "storefront_endpoint_avg_millis{endpoint=%q} %.3f\n", ep, stat.AverageMillis)
		}
		b.WriteString("# HELP storefront_endpoint_total_millis endpoint total time in milliseconds\n")
		b.WriteString("# TYPE storefront_endpoint_total_millis counter\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			stat := snap.Endpoints[ep]
			fmt.Fprintf(b, "storefront_endpoint_total_millis{endpoint=%q} %d\n", ep, stat.TotalMillis)
		}
		b.WriteString("# HELP storefront_endpoint_max_millis endpoint max latency in milliseconds\n")
		b.WriteString("# TYPE storefront_endpoint_max_millis gauge\n")
		for _, ep := range SortedKeys(snap.Endpoints) {
			stat := snap.Endpoints[ep]
			fmt.Fprintf(b, "storefront_endpoint_max_millis{endpoint=%q} %d\n", ep, stat.MaxMillis)
		}

		b.WriteString("# HELP storefront_cache_hits_total catalog pages served from cache\n")
		b.WriteString("# TYPE storefront_cache_hits_total counter\n")
		fmt.Fprintf(b, "storefront_cache_hits_total %d\n", snap.CacheHits)
		b.WriteString("# HELP storefront_cache_misses_total catalog pages assembled from the gateway\n")
		b.WriteString("# TYPE storefront_cache_misses_total counter\n")
		fmt.Fprintf(b, "storefront_cache_misses_total %d\n", snap.CacheMisses)

		b.WriteString("# HELP storefront_degraded_total degraded catalog pages by reason\n")
		b.WriteString("# TYPE storefront_degraded_total counter\n")
		for _, reason := range SortedKeys(snap.DegradedTotals) {
			fmt.Fprintf(b, "storefront_degraded_total{reason=%q} %d\n", reason, snap.DegradedTotals[reason])
		}

		b.WriteString("# HELP storefront_invalid_sessions_total bearer tokens downgraded to anonymous\n")
		b.WriteString("# TYPE storefront_invalid_sessions_total counter\n")
		fmt.Fprintf(b, "storefront_invalid_sessions_total %d\n", snap.InvalidSessions)

		b.WriteString("# HELP storefront_gauge operational gauge metrics\n")
		b.WriteString("# TYPE storefront_gauge gauge\n")
		for _, name := range SortedKeys(snap.Gauges) {
			fmt.Fprintf(b, "storefront_gauge{name=%q} %.3f\n", name, snap.Gauges[name])
		}
		for _, h := range snap.Histograms {
			b.WriteString("# HELP storefront_latency_seconds latency histogram\n")
			b.WriteString("# TYPE storefront_latency_seconds histogram\n")
			for _, bucket := range h.Buckets {
				fmt.Fprintf(b, "storefront_latency_seconds_bucket{endpoint=%q,le=\"%.3f\"} %d\n", h.Name, bucket.Le, bucket.Count)
			}
			fmt.Fprintf(b, "storefront_latency_seconds_bucket{endpoint=%q,le=\"+Inf\"} %d\n", h.Name, h.Count)
			fmt.Fprintf(b, "storefront_latency_seconds_sum{endpoint=%q} %.6f\n", h.Name, h.Sum)
			fmt.Fprintf(b, "storefront_latency_seconds_count{endpoint=%q} %d\n", h.Name, h.Count)
			fmt.Fprintf(b, "storefront_latency_p50_seconds{endpoint=%q} %.6f\n", h.Name, h.P50)
			fmt.Fprintf(b, "storefront_latency_p95_seconds{endpoint=%q} %.6f\n", h.Name, h.P95)
			fmt.Fprintf(b, "storefront_latency_p99_seconds{endpoint=%q} %.6f\n", h.Name, h.P99)
		}

		b.WriteString("# HELP storefront_gateway_latency_ms data gateway round trip latency in ms\n")
		b.WriteString("# TYPE storefront_gateway_latency_ms gauge\n")
		fmt.Fprintf(b, "storefront_gateway_latency_ms{stat=%q} %d\n", "last", snap.GatewayLatencyMS.LastMS)
		fmt.Fprintf(b, "storefront_gateway_latency_ms{stat=%q} %.3f\n", "avg", snap.GatewayLatencyMS.AvgMS)
		fmt.Fprintf(b, "storefront_gateway_latency_ms{stat=%q} %d\n", "max", snap.GatewayLatencyMS.MaxMS)

		_, _ = w.Write([]byte(b.String()))
	}
}

func SortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
