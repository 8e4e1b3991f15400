// Package metrics exposes Prometheus metrics for the prediction
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TrainingRuns counts model training runs by outcome.
	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_training_runs_total",
			Help: "Total number of model training runs",
		},
		[]string{"mode", "status"},
	)

	// TrainingDuration observes wall-clock training time.
	TrainingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_training_duration_seconds",
			Help:    "Duration of model training runs in seconds",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"mode"},
	)

	// ModelAccuracy tracks the holdout accuracy of the active model.
	ModelAccuracy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_model_accuracy",
			Help: "Holdout accuracy of the most recently trained model",
		},
		[]string{"model"},
	)

	// PredictionsGenerated counts generated predictions.
	PredictionsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_predictions_generated_total",
			Help: "Total number of predictions generated",
		},
		[]string{"source"},
	)

	// PredictionErrors counts failed prediction attempts.
	PredictionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_prediction_errors_total",
			Help: "Total number of failed prediction attempts",
		},
		[]string{"reason"},
	)

	// PredictionsValidated counts validated predictions by correctness.
	PredictionsValidated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_predictions_validated_total",
			Help: "Total number of predictions validated against results",
		},
		[]string{"correct"},
	)

	// FeatureCacheEvents counts feature cache hits and misses.
	FeatureCacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_feature_cache_events_total",
			Help: "Feature cache hits and misses",
		},
		[]string{"cache", "event"},
	)
)

// RecordTrainingRun records one training run with its duration.
func RecordTrainingRun(mode string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	TrainingRuns.WithLabelValues(mode, status).Inc()
	TrainingDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordModelAccuracy updates the accuracy gauge for one model.
func RecordModelAccuracy(model string, accuracy float64) {
	ModelAccuracy.WithLabelValues(model).Set(accuracy)
}

// RecordPrediction records one generated prediction.
func RecordPrediction(source string) {
	PredictionsGenerated.WithLabelValues(source).Inc()
}

// RecordPredictionError records one failed prediction attempt.
func RecordPredictionError(reason string) {
	PredictionErrors.WithLabelValues(reason).Inc()
}

// RecordValidation records one validated prediction.
func RecordValidation(correct bool) {
	label := "false"
	if correct {
		label = "true"
	}
	PredictionsValidated.WithLabelValues(label).Inc()
}

// RecordCacheEvent records a cache hit or miss.
func RecordCacheEvent(cache, event string) {
	FeatureCacheEvents.WithLabelValues(cache, event).Inc()
}
