// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Personalization and preference analysis
	PersonalizationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otodoki_personalization_total",
			Help: "Personalization attempts by outcome",
		},
		[]string{"outcome"},
	)

	PreferenceAnalyses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otodoki_preference_analyses_total",
			Help: "Preference analyses by outcome",
		},
		[]string{"outcome"},
	)

	PreferenceAnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "otodoki_preference_analysis_duration_seconds",
			Help:    "Time spent reading and aggregating a user's evaluations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// Candidate queue and refill worker
	QueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "otodoki_queue_size",
			Help: "Tracks currently waiting in the candidate queue",
		},
	)

	RefillRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otodoki_refill_runs_total",
			Help: "Queue refill runs by strategy and result",
		},
		[]string{"strategy", "result"},
	)

	RefillTracksAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "otodoki_refill_tracks_added_total",
			Help: "Tracks added to the candidate queue by refills",
		},
	)

	RefillJobsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "otodoki_refill_jobs_dropped_total",
			Help: "Per-user refill jobs dropped because the job queue was full",
		},
	)

	// Upstream catalog
	CatalogRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otodoki_catalog_requests_total",
			Help: "Upstream catalog requests by operation and result",
		},
		[]string{"operation", "result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "otodoki_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// HTTP API
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otodoki_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "otodoki_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	SuggestionsRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "otodoki_suggestions_rate_limited_total",
			Help: "Suggestion requests rejected by the global rate limiter",
		},
	)
)
