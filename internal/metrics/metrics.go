// Package metrics exposes Prometheus collectors for the document pipeline:
// index build throughput and search query latency. There is no HTTP
// surface here (the core exposes none of its own); callers wire
// Handler into whatever enclosing process they run.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	DocumentsIndexed   *prometheus.CounterVec
	DocumentsSkipped   prometheus.Counter
	BatchCommits       prometheus.Counter
	BuildDuration      prometheus.Histogram
	SearchQueries      *prometheus.CounterVec
	SearchDuration     *prometheus.HistogramVec
	PrivilegeDecisions *prometheus.CounterVec
	BreakerState       prometheus.Gauge
}

// New creates and registers the pipeline's collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DocumentsIndexed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ediscovery_documents_indexed_total",
				Help: "Total documents successfully committed to the index, by doctype.",
			},
			[]string{"doctype"},
		),
		DocumentsSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ediscovery_documents_skipped_total",
				Help: "Total documents skipped during a build (extraction failure or duplicate).",
			},
		),
		BatchCommits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ediscovery_index_batch_commits_total",
				Help: "Total index batch commits.",
			},
		),
		BuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ediscovery_build_duration_seconds",
				Help:    "Wall-clock duration of completed index builds.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		SearchQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ediscovery_search_queries_total",
				Help: "Total search queries, by mode.",
			},
			[]string{"mode"},
		),
		SearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ediscovery_search_duration_seconds",
				Help:    "Search query latency in seconds, by mode.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"mode"},
		),
		PrivilegeDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ediscovery_privilege_decisions_total",
				Help: "Total privilege decisions, by stage and needs_review.",
			},
			[]string{"stage", "needs_review"},
		),
		BreakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ediscovery_breaker_state",
				Help: "External-model circuit breaker state: 0=closed, 1=half_open, 2=open.",
			},
		),
	}

	reg.MustRegister(
		m.DocumentsIndexed, m.DocumentsSkipped, m.BatchCommits, m.BuildDuration,
		m.SearchQueries, m.SearchDuration, m.PrivilegeDecisions, m.BreakerState,
	)
	return m
}

// Handler exposes reg's collectors for scraping.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
