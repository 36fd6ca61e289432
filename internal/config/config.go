// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package config

import (
	"os"
	"time"

	"github.com/tomtom215/wayfarer/internal/dataset"
	"github.com/tomtom215/wayfarer/internal/logging"
	"github.com/tomtom215/wayfarer/internal/recommend/pipeline"
	"github.com/tomtom215/wayfarer/internal/registry"
	"github.com/tomtom215/wayfarer/internal/supervisor"
)

// Config holds all application configuration.
type Config struct {
	Logging    LoggingConfig    `koanf:"logging"`
	Storage    StorageConfig    `koanf:"storage"`
	Registry   RegistryConfig   `koanf:"registry"`
	Data       DataConfig       `koanf:"data"`
	Pipeline   pipeline.Config  `koanf:"pipeline"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// LoggingConfig holds logging settings for zerolog.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`

	// Format is json or console.
	// Default: json
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller includes caller file and line number in logs.
	// Default: false
	Caller bool `koanf:"caller"`
}

// Logging converts to the logging package configuration.
func (c LoggingConfig) Logging() logging.Config {
	return logging.Config{
		Level:     c.Level,
		Format:    c.Format,
		Caller:    c.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	}
}

// StorageConfig locates model artifacts.
type StorageConfig struct {
	// ArtifactDir holds versioned model artifacts.
	// Default: ./models
	ArtifactDir string `koanf:"artifact_dir" validate:"required"`

	// ReloadInterval is how often serve polls ArtifactDir for versions
	// published by other processes. Zero disables polling.
	// Default: 1m
	ReloadInterval time.Duration `koanf:"reload_interval" validate:"gte=0"`
}

// RegistryConfig configures the DuckDB model registry.
type RegistryConfig struct {
	// Enabled records every published artifact in the registry.
	// Default: true
	Enabled bool `koanf:"enabled"`

	// Path is the DuckDB file. ":memory:" keeps the registry in memory.
	// Default: ./models/registry.duckdb
	Path string `koanf:"path" validate:"required_if=Enabled true"`

	// MaxMemory is DuckDB's memory limit.
	// Default: 512MB
	MaxMemory string `koanf:"max_memory"`

	// Threads is DuckDB's thread count. Zero means runtime.NumCPU().
	Threads int `koanf:"threads" validate:"gte=0"`
}

// Registry converts to the registry package configuration.
func (c RegistryConfig) Registry() registry.Config {
	return registry.Config{Path: c.Path, MaxMemory: c.MaxMemory, Threads: c.Threads}
}

// DataConfig selects the training corpus.
type DataConfig struct {
	// Paths lists CSV or Parquet files per model. Empty paths are skipped.
	Paths dataset.Paths `koanf:"paths"`

	// Synthetic trains on a generated corpus instead of Paths.
	// Default: false
	Synthetic bool `koanf:"synthetic"`

	// SyntheticConfig sizes the generated corpus.
	SyntheticConfig dataset.SyntheticConfig `koanf:"synthetic_config"`
}

// HasPaths reports whether any dataset file is configured.
func (c DataConfig) HasPaths() bool {
	return c.Paths != dataset.Paths{}
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled starts the metrics HTTP service under serve.
	// Default: true
	Enabled bool `koanf:"enabled"`

	// Addr is the listen address.
	// Default: :9090
	Addr string `koanf:"addr" validate:"required_if=Enabled true"`

	// Path is the metrics route.
	// Default: /metrics
	Path string `koanf:"path" validate:"required_if=Enabled true"`
}

// SupervisorConfig mirrors supervisor.TreeConfig.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gte=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gte=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gte=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
}

// Tree converts to the supervisor tree configuration.
func (c SupervisorConfig) Tree() supervisor.TreeConfig {
	return supervisor.TreeConfig{
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		ShutdownTimeout:  c.ShutdownTimeout,
	}
}
