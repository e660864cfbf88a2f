// Package metrics holds the Prometheus counters and histograms exported by
// every component, grounded on the shared politburo MetricsRegistry shape:
// one struct of vectors built once at startup and injected where needed.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all Prometheus metrics for the health monitor.
type Registry struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ProbesTotal     *prometheus.CounterVec
	ProbeDuration   *prometheus.HistogramVec
	ProbeLatencyMs  *prometheus.HistogramVec

	RefreshesTotal    *prometheus.CounterVec
	RefreshCoalesced  *prometheus.CounterVec

	OfficialStatusFetchesTotal *prometheus.CounterVec
}

// NewRegistry builds and registers every metric with the default
// Prometheus registerer.
func NewRegistry() *Registry {
	return &Registry{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkcx_http_requests_total",
				Help: "Total HTTP requests processed by route, method, and status code.",
			},
			[]string{"route", "method", "status_code"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "checkcx_http_request_duration_seconds",
				Help:    "HTTP request latency distribution in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"route", "method"},
		),

		ProbesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkcx_probes_total",
				Help: "Total provider probes run, by provider type and resulting status.",
			},
			[]string{"provider_type", "status"},
		),
		ProbeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "checkcx_probe_duration_seconds",
				Help:    "Provider probe wall-clock duration in seconds.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 6, 10, 20, 45},
			},
			[]string{"provider_type"},
		),
		ProbeLatencyMs: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "checkcx_probe_latency_ms",
				Help:    "Reported probe latency in milliseconds, for successful probes only.",
				Buckets: []float64{50, 100, 250, 500, 1000, 2000, 4000, 6000, 10000},
			},
			[]string{"provider_type"},
		),

		RefreshesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkcx_snapshot_refreshes_total",
				Help: "Total snapshot refreshes actually executed, by scope prefix.",
			},
			[]string{"scope"},
		),
		RefreshCoalesced: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkcx_snapshot_refresh_coalesced_total",
				Help: "Total loadSnapshot calls that coalesced onto an inflight refresh.",
			},
			[]string{"scope"},
		),

		OfficialStatusFetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkcx_official_status_fetches_total",
				Help: "Total official status-page fetches, by provider type and outcome.",
			},
			[]string{"provider_type", "outcome"},
		),
	}
}
