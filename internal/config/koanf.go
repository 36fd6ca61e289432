// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/wayfarer/internal/dataset"
	"github.com/tomtom215/wayfarer/internal/recommend/pipeline"
	"github.com/tomtom215/wayfarer/internal/supervisor"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found will be used.
var DefaultConfigPaths = []string{
	"wayfarer.yaml",
	"wayfarer.yml",
	"/etc/wayfarer/config.yaml",
	"/etc/wayfarer/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the
// config file path.
const ConfigPathEnvVar = "WAYFARER_CONFIG"

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "WAYFARER_"

// defaultConfig returns a Config with every default applied.
func defaultConfig() *Config {
	tree := supervisor.DefaultTreeConfig()
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			ArtifactDir:    "./models",
			ReloadInterval: time.Minute,
		},
		Registry: RegistryConfig{
			Enabled:   true,
			Path:      "./models/registry.duckdb",
			MaxMemory: "512MB",
		},
		Data: DataConfig{
			SyntheticConfig: dataset.DefaultSyntheticConfig(),
		},
		Pipeline: *pipeline.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: tree.FailureThreshold,
			FailureDecay:     tree.FailureDecay,
			FailureBackoff:   tree.FailureBackoff,
			ShutdownTimeout:  tree.ShutdownTimeout,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads configuration from defaults, the config file and the
// environment, then validates it. path overrides the config file search;
// an explicit path that does not exist is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	configPath, err := findConfigFile(path)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns explicit when set, then WAYFARER_CONFIG, then
// the first existing default path, or "" when there is no file.
func findConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}

	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// envMappings maps short variable names (without the prefix) to config
// paths.
var envMappings = map[string]string{
	"log_level":          "logging.level",
	"log_format":         "logging.format",
	"log_caller":         "logging.caller",
	"artifact_dir":       "storage.artifact_dir",
	"registry_enabled":   "registry.enabled",
	"registry_path":      "registry.path",
	"registry_memory":    "registry.max_memory",
	"reload_interval":    "storage.reload_interval",
	"metrics_enabled":    "metrics.enabled",
	"metrics_addr":       "metrics.addr",
	"train_interval":     "pipeline.training.interval",
	"train_timeout":      "pipeline.training.timeout",
	"train_on_startup":   "pipeline.training.on_startup",
	"retain_versions":    "pipeline.training.retain_versions",
	"synthetic":          "data.synthetic",
	"triplets_path":      "data.paths.triplets",
	"pairs_path":         "data.paths.pairs",
	"user_features_path": "data.paths.user_features",
	"item_features_path": "data.paths.item_features",
	"sequences_path":     "data.paths.sequences",
	"examples_path":      "data.paths.examples",
}

// envTransformFunc maps WAYFARER_ variables to koanf paths.
//
// Examples:
//   - WAYFARER_LOG_LEVEL -> logging.level
//   - WAYFARER_PIPELINE__LIMITS__MAX_K -> pipeline.limits.max_k
//   - WAYFARER_CONFIG -> skipped
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" {
		return ""
	}
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	if strings.Contains(key, "__") {
		return strings.ReplaceAll(key, "__", ".")
	}

	// Unmapped keys are skipped so stray variables cannot pollute config.
	return ""
}

// WatchConfigFile calls callback whenever the file at path changes.
// The caller is responsible for reloading with Load and for synchronizing
// access to the reloaded configuration.
func WatchConfigFile(path string, callback func()) error {
	return file.Provider(path).Watch(func(_ interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
