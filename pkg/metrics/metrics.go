// Package metrics exposes the process Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// StageDuration observes pipeline stage wall time.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tavola",
		Name:      "pipeline_stage_duration_seconds",
		Help:      "Wall time per pipeline stage.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"stage"})

	// PipelineOutcomes counts terminal job statuses.
	PipelineOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tavola",
		Name:      "pipeline_outcomes_total",
		Help:      "Terminal pipeline outcomes by status.",
	}, []string{"status"})

	// DedupDecisions counts createOrGet decisions by reason code.
	DedupDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tavola",
		Name:      "jobstore_dedup_decisions_total",
		Help:      "Idempotent job creation decisions by reason code.",
	}, []string{"reason"})

	// WSConnections gauges currently registered WebSocket connections.
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tavola",
		Name:      "ws_connections",
		Help:      "Currently registered WebSocket connections.",
	})

	// WSDroppedFrames counts frames dropped or coalesced under backpressure.
	WSDroppedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tavola",
		Name:      "ws_dropped_frames_total",
		Help:      "Outbound WS frames dropped or coalesced, by cause.",
	}, []string{"cause"})

	// ProviderRetries counts provider call retries.
	ProviderRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tavola",
		Name:      "provider_retries_total",
		Help:      "Places provider retry attempts.",
	})

	// ProviderCalls counts provider calls by method and outcome.
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tavola",
		Name:      "provider_calls_total",
		Help:      "Places provider calls by method and outcome.",
	}, []string{"method", "outcome"})
)

// Handler serves the default registry for the /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}
