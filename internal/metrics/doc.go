// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

/*
Package metrics provides Prometheus metrics for the recommendation backend.

All collectors are registered on the default registry through promauto and
exposed by the supervisor's metrics server at /metrics.

# Available Metrics

Training:
  - wayfarer_training_runs_total{model,status}: completed runs (counter)
  - wayfarer_training_duration_seconds{model}: wall-clock time (histogram)
  - wayfarer_training_final_loss{model}: last epoch loss (gauge)
  - wayfarer_training_epochs{model}: epochs actually run (gauge)
  - wayfarer_training_in_progress: 1 while the pipeline trains (gauge)

Inference:
  - wayfarer_predictions_total{model}: scoring calls (counter)
  - wayfarer_prediction_duration_seconds{model}: scoring latency (histogram)
  - wayfarer_cold_starts_total{model}: calls answered with zero scores (counter)
  - wayfarer_trust_gate_fallbacks_total: DLRM candidates below the gate (counter)

Lifecycle:
  - wayfarer_artifact_bytes{model}: size of the newest artifact (gauge)
  - wayfarer_registry_writes_total{result}: inserted, duplicate or error (counter)
  - wayfarer_dataset_rows_loaded_total{source}: rows read through DuckDB (counter)

Cache:
  - wayfarer_cache_hits_total{cache} / wayfarer_cache_misses_total{cache}

System:
  - wayfarer_app_info{version,go_version}
  - wayfarer_app_uptime_seconds
*/
package metrics
