package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions   *prometheus.CounterVec
	modelDuration *prometheus.HistogramVec
	modelFailures *prometheus.CounterVec
	cacheEvents   *prometheus.CounterVec
	queueDepth    prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		predictions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_predictions_total",
				Help: "Predictions by metric type and outcome",
			},
			[]string{"metric", "outcome"},
		),
		modelDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fincast_model_training_seconds",
				Help:    "Training duration per forecasting strategy",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"model"},
		),
		modelFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_model_failures_total",
				Help: "Training and inference failures per strategy",
			},
			[]string{"model"},
		),
		cacheEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_seasonal_cache_events_total",
				Help: "Seasonal cache hits, misses, corruptions and errors",
			},
			[]string{"event"},
		),
		queueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fincast_prediction_queue_depth",
				Help: "Pending async prediction jobs",
			},
		),
	}
}

// RecordPrediction counts one prediction attempt by outcome.
func (r *Recorder) RecordPrediction(metric, outcome string) {
	r.predictions.WithLabelValues(metric, outcome).Inc()
}

// RecordModelDuration observes one training run.
func (r *Recorder) RecordModelDuration(model string, seconds float64) {
	r.modelDuration.WithLabelValues(model).Observe(seconds)
}

// RecordModelFailure counts a strategy failure.
func (r *Recorder) RecordModelFailure(model string) {
	r.modelFailures.WithLabelValues(model).Inc()
}

// RecordCacheEvent counts a seasonal cache event.
func (r *Recorder) RecordCacheEvent(event string) {
	r.cacheEvents.WithLabelValues(event).Inc()
}

// RecordQueueDepth sets the async job backlog gauge.
func (r *Recorder) RecordQueueDepth(depth int) {
	r.queueDepth.Set(float64(depth))
}
