package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesReceived counts every decoded frame delivered by ingress.
	MessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quantengine_messages_received_total",
			Help: "Total number of market data messages received from ingress.",
		},
	)

	// MessagesSkipped counts messages dropped without producing a book
	// update, tagged by reason.
	MessagesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantengine_messages_skipped_total",
			Help: "Total number of messages skipped, by reason.",
		},
		[]string{"reason"},
	)

	// SignalsPublished counts successfully attempted signal publishes.
	SignalsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quantengine_signals_published_total",
			Help: "Total number of arbitrage signals published.",
		},
	)

	// PublishErrors counts failures in any of the publish sub-steps.
	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantengine_publish_errors_total",
			Help: "Total number of signal publish failures, by stage.",
		},
		[]string{"stage"},
	)

	// BookSize tracks the number of distinct exchanges currently tracked.
	BookSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantengine_book_exchanges",
			Help: "Current number of distinct exchanges with book entries.",
		},
	)

	// StageLatency measures per-stage processing time of the hot loop.
	StageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quantengine_stage_latency_milliseconds",
			Help:    "Per-stage pipeline latency in milliseconds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250},
		},
		[]string{"stage"},
	)
)

// Handler returns the HTTP handler serving Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
