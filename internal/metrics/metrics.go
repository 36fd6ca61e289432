// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package metrics

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry write results.
const (
	RegistryInserted  = "inserted"
	RegistryDuplicate = "duplicate"
	RegistryError     = "error"
)

var (
	// Training Metrics
	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfarer_training_runs_total",
			Help: "Total number of model training runs",
		},
		[]string{"model", "status"}, // status: "success", "stopped_early", "canceled", "error"
	)

	TrainingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wayfarer_training_duration_seconds",
			Help:    "Duration of model training runs in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"model"},
	)

	TrainingFinalLoss = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wayfarer_training_final_loss",
			Help: "Mean loss of the last training epoch",
		},
		[]string{"model"},
	)

	TrainingEpochs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wayfarer_training_epochs",
			Help: "Number of epochs run by the last training run",
		},
		[]string{"model"},
	)

	TrainingInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wayfarer_training_in_progress",
			Help: "1 while a pipeline training run is active",
		},
	)

	// Inference Metrics
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfarer_predictions_total",
			Help: "Total number of scoring calls",
		},
		[]string{"model"},
	)

	PredictionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wayfarer_prediction_duration_seconds",
			Help:    "Scoring latency in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"model"},
	)

	ColdStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfarer_cold_starts_total",
			Help: "Scoring calls answered with zero scores for an unknown identity",
		},
		[]string{"model"},
	)

	TrustGateFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wayfarer_trust_gate_fallbacks_total",
			Help: "Candidates scored with the trust gate fallback",
		},
	)

	// Lifecycle Metrics
	ArtifactBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wayfarer_artifact_bytes",
			Help: "Size of the newest model artifact on disk",
		},
		[]string{"model"},
	)

	RegistryWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfarer_registry_writes_total",
			Help: "Model registry writes by result",
		},
		[]string{"result"},
	)

	DatasetRowsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfarer_dataset_rows_loaded_total",
			Help: "Training rows read through DuckDB",
		},
		[]string{"source"},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfarer_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfarer_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// Ops HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfarer_http_requests_total",
			Help: "Requests served by the ops HTTP endpoint",
		},
		[]string{"method", "path", "code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wayfarer_http_request_duration_seconds",
			Help:    "Ops HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wayfarer_http_active_requests",
			Help: "Ops HTTP requests currently in flight",
		},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wayfarer_app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wayfarer_app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// TrainingStatus maps a training outcome to the status label.
func TrainingStatus(stoppedEarly bool, err error) string {
	switch {
	case err == nil && stoppedEarly:
		return "stopped_early"
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// RecordTraining records one training run. Loss and epochs are only
// published for runs that completed.
func RecordTraining(model string, duration time.Duration, finalLoss float64, epochs int, stoppedEarly bool, err error) {
	TrainingRuns.WithLabelValues(model, TrainingStatus(stoppedEarly, err)).Inc()
	TrainingDuration.WithLabelValues(model).Observe(duration.Seconds())
	if err == nil {
		TrainingFinalLoss.WithLabelValues(model).Set(finalLoss)
		TrainingEpochs.WithLabelValues(model).Set(float64(epochs))
	}
}

// SetTrainingInProgress flips the in-progress gauge.
func SetTrainingInProgress(active bool) {
	if active {
		TrainingInProgress.Set(1)
	} else {
		TrainingInProgress.Set(0)
	}
}

// RecordPrediction records a scoring call.
func RecordPrediction(model string, duration time.Duration, coldStart bool) {
	PredictionsTotal.WithLabelValues(model).Inc()
	PredictionDuration.WithLabelValues(model).Observe(duration.Seconds())
	if coldStart {
		ColdStarts.WithLabelValues(model).Inc()
	}
}

// RecordTrustGateFallbacks adds n gated candidates.
func RecordTrustGateFallbacks(n int) {
	if n > 0 {
		TrustGateFallbacks.Add(float64(n))
	}
}

// RecordArtifact records the size of a freshly written artifact.
func RecordArtifact(model string, sizeBytes int64) {
	ArtifactBytes.WithLabelValues(model).Set(float64(sizeBytes))
}

// RecordRegistryWrite records a registry upsert outcome.
func RecordRegistryWrite(inserted bool, err error) {
	switch {
	case err != nil:
		RegistryWrites.WithLabelValues(RegistryError).Inc()
	case inserted:
		RegistryWrites.WithLabelValues(RegistryInserted).Inc()
	default:
		RegistryWrites.WithLabelValues(RegistryDuplicate).Inc()
	}
}

// RecordRowsLoaded adds n rows read from source.
func RecordRowsLoaded(source string, n int) {
	DatasetRowsLoaded.WithLabelValues(source).Add(float64(n))
}

// RecordCacheLookup records a hit or a miss on the named cache.
func RecordCacheLookup(cache string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cache).Inc()
	} else {
		CacheMisses.WithLabelValues(cache).Inc()
	}
}

// SetAppInfo publishes the build version.
func SetAppInfo(version string) {
	AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
}

// RecordHTTPRequest records one ops HTTP request.
func RecordHTTPRequest(method, path, code string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, code).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		HTTPActiveRequests.Inc()
	} else {
		HTTPActiveRequests.Dec()
	}
}

// UpdateUptime sets the uptime gauge from the process start time.
func UpdateUptime(start time.Time) {
	AppUptime.Set(time.Since(start).Seconds())
}
