package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// Inbound request rate by route and status.
	HTTPRequestsTotal *prometheus.CounterVec

	// Inbound request latency by route.
	HTTPRequestDuration *prometheus.HistogramVec

	// Upstream attempts by client (openweather, rte) and outcome.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency per attempt. Watch for p95 > 2s on rte.
	UpstreamDuration *prometheus.HistogramVec

	// Retry attempts after the first one. High values mean an unstable upstream.
	UpstreamRetriesTotal *prometheus.CounterVec

	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Full refresh runs (startup warm-up and scheduler) by outcome.
	RefreshRunsTotal *prometheus.CounterVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsenergy_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wsenergy_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsenergy_upstream_calls_total",
			Help: "Total number of upstream HTTP attempts",
		},
		[]string{"client", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wsenergy_upstream_duration_seconds",
			Help:    "Upstream HTTP latency in seconds (per attempt)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"client"},
	)
	UpstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsenergy_upstream_retries_total",
			Help: "Total number of upstream retry attempts",
		},
		[]string{"client"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsenergy_cache_hits_total",
			Help: "Snapshot cache hits by source",
		},
		[]string{"source"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsenergy_cache_misses_total",
			Help: "Snapshot cache misses by source",
		},
		[]string{"source"},
	)
	RefreshRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsenergy_refresh_runs_total",
			Help: "Full upstream refresh runs by outcome",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration,
		UpstreamCallsTotal, UpstreamDuration, UpstreamRetriesTotal,
		CacheHitsTotal, CacheMissesTotal,
		RefreshRunsTotal,
	)
}

// Handler serves the private registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
