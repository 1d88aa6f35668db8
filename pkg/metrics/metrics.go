// Package metrics defines the Prometheus collectors used by the search
// services and exposes an HTTP handler for scraping.
package metrics

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Search outcomes recorded in SearchesTotal.
const (
	OutcomeMatch   = "match"
	OutcomeNoMatch = "no_match"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	HTTPResponseBytes    *prometheus.HistogramVec
	SearchesTotal        *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchMaxLength      *prometheus.HistogramVec
	SearchWindows        prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocumentsLoadedTotal *prometheus.CounterVec
	CatalogDocuments     prometheus.Gauge
	CatalogTokens        prometheus.Gauge
	IngestEventsTotal    *prometheus.CounterVec
	AnalyticsEventsTotal *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New creates all collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in services and a fresh registry in tests.
// When reg can also be gathered, Handler serves it; otherwise Handler
// serves the default gatherer.
func New(reg prometheus.Registerer) *Metrics {
	gatherer, ok := reg.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	m := &Metrics{
		gatherer: gatherer,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		HTTPResponseBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response body size in bytes.",
				Buckets: prometheus.ExponentialBuckets(64, 4, 8),
			},
			[]string{"path"},
		),
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sequence_searches_total",
				Help: "Total searches by strategy and outcome (match, no_match, error, timeout).",
			},
			[]string{"strategy", "outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sequence_search_latency_seconds",
				Help:    "Search latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
			},
			[]string{"strategy", "cache_status"},
		),
		SearchMaxLength: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sequence_search_max_length",
				Help:    "Longest run length found per search.",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
			},
			[]string{"strategy"},
		),
		SearchWindows: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sequence_search_windows",
				Help:    "Number of windows found per search across all lengths.",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		DocumentsLoadedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documents_loaded_total",
				Help: "Documents loaded into the catalog by source (file, upload, kafka, watch).",
			},
			[]string{"source"},
		),
		CatalogDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_documents",
				Help: "Number of documents held in the catalog.",
			},
		),
		CatalogTokens: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_tokens",
				Help: "Total word occurrences across catalog documents.",
			},
		),
		IngestEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_events_total",
				Help: "Document ingest events consumed by status.",
			},
			[]string{"status"},
		),
		AnalyticsEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_events_total",
				Help: "Search analytics events by status (published, dropped, failed).",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.HTTPResponseBytes,
		m.SearchesTotal,
		m.SearchLatency,
		m.SearchMaxLength,
		m.SearchWindows,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocumentsLoadedTotal,
		m.CatalogDocuments,
		m.CatalogTokens,
		m.IngestEventsTotal,
		m.AnalyticsEventsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler serves the registry m was created with in the Prometheus text or
// OpenMetrics format. Scrape failures are logged and counted in
// promhttp_metric_handler_errors_total.
func (m *Metrics) Handler() http.Handler {
	reg, _ := m.gatherer.(prometheus.Registerer)
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{
		ErrorLog:          slogErrorLog{},
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	}))
}

type slogErrorLog struct{}

func (slogErrorLog) Println(v ...any) {
	slog.Error("metrics scrape error", "error", fmt.Sprint(v...))
}
