// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

/*
Package config provides layered configuration for Wayfarer.

# Configuration Sources

Configuration is loaded with koanf in three layers, later layers winning:

 1. Defaults: the built-in values of defaultConfig()
 2. Config file: optional YAML, from --config, WAYFARER_CONFIG or the first
    of DefaultConfigPaths that exists
 3. Environment: variables with the WAYFARER_ prefix

# Environment Variables

Common settings have short names:

  - WAYFARER_LOG_LEVEL: trace, debug, info, warn, error (default: info)
  - WAYFARER_LOG_FORMAT: json or console (default: json)
  - WAYFARER_ARTIFACT_DIR: model artifact directory (default: ./models)
  - WAYFARER_REGISTRY_PATH: DuckDB registry file (default: ./models/registry.duckdb)
  - WAYFARER_METRICS_ADDR: metrics listen address (default: :9090)
  - WAYFARER_TRAIN_INTERVAL: scheduled training interval (default: 24h)

Any other key is reachable by its full path with double underscores
between levels, for example WAYFARER_PIPELINE__LIMITS__MAX_K=100 or
WAYFARER_PIPELINE__SASREC__HEADS=4.

# Validation

Load validates the result with go-playground/validator struct tags plus
the cross-field rules of the pipeline configuration, such as the SASRec
width being divisible by its head count.
*/
package config
