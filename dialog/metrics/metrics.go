// Package metrics provides Prometheus metrics export for the dialogue
// pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exports dialogue metrics in Prometheus format.
type Exporter struct {
	registry *prometheus.Registry

	// Turn metrics
	turnLatency  *prometheus.HistogramVec
	turnRequests *prometheus.CounterVec

	// NLU metrics
	nluLatency *prometheus.HistogramVec

	// Handler metrics
	handlerCalls   *prometheus.CounterVec
	handlerLatency *prometheus.HistogramVec

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// Disambiguation metrics
	resolutions *prometheus.CounterVec
}

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default exporter configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}
}

// NewExporter creates a new Prometheus metrics exporter.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.turnLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "intentd",
			Subsystem: "dialog",
			Name:      "turn_latency_seconds",
			Help:      "End-to-end turn latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"status"},
	)

	e.turnRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intentd",
			Subsystem: "dialog",
			Name:      "turns_total",
			Help:      "Total number of processed turns",
		},
		[]string{"status"},
	)

	e.nluLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "intentd",
			Subsystem: "dialog",
			Name:      "nlu_latency_seconds",
			Help:      "Intent classification latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"source"},
	)

	e.handlerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intentd",
			Subsystem: "dialog",
			Name:      "handler_calls_total",
			Help:      "Total number of handler invocations",
		},
		[]string{"handler_type", "status"},
	)

	e.handlerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "intentd",
			Subsystem: "dialog",
			Name:      "handler_latency_seconds",
			Help:      "Handler invocation latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"handler_type"},
	)

	e.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intentd",
			Subsystem: "dialog",
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	e.cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intentd",
			Subsystem: "dialog",
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	e.resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intentd",
			Subsystem: "dialog",
			Name:      "ambiguity_resolutions_total",
			Help:      "Total number of ambiguity resolution attempts",
		},
		[]string{"strategy", "result"},
	)

	registry.MustRegister(
		e.turnLatency,
		e.turnRequests,
		e.nluLatency,
		e.handlerCalls,
		e.handlerLatency,
		e.cacheHits,
		e.cacheMisses,
		e.resolutions,
	)

	return e
}

// RecordTurn records one processed turn with its terminal status.
func (e *Exporter) RecordTurn(status string, latency time.Duration) {
	e.turnRequests.WithLabelValues(status).Inc()
	e.turnLatency.WithLabelValues(status).Observe(latency.Seconds())
}

// RecordNLU records one classification call.
func (e *Exporter) RecordNLU(source string, latency time.Duration) {
	e.nluLatency.WithLabelValues(source).Observe(latency.Seconds())
}

// RecordHandlerCall records one handler invocation.
func (e *Exporter) RecordHandlerCall(handlerType string, latency time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	e.handlerCalls.WithLabelValues(handlerType, status).Inc()
	e.handlerLatency.WithLabelValues(handlerType).Observe(latency.Seconds())
}

// RecordCacheHit records a cache hit.
func (e *Exporter) RecordCacheHit(cacheType string) {
	e.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (e *Exporter) RecordCacheMiss(cacheType string) {
	e.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordResolution records one ambiguity resolution attempt.
func (e *Exporter) RecordResolution(strategy, result string) {
	e.resolutions.WithLabelValues(strategy, result).Inc()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
