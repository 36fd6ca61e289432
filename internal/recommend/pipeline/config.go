// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package pipeline

import (
	"fmt"
	"time"

	"github.com/tomtom215/wayfarer/internal/recommend/algorithms"
	"github.com/tomtom215/wayfarer/internal/validation"
)

// Config contains all configuration for the recommendation engine.
type Config struct {
	// BPR contains parameters for the collaborative ranker.
	BPR algorithms.BPRConfig `json:"bpr" koanf:"bpr"`

	// TwoTower contains parameters for the feature-based retriever.
	TwoTower algorithms.TwoTowerConfig `json:"two_tower" koanf:"two_tower"`

	// SASRec contains parameters for the sequential re-ranker.
	SASRec algorithms.SASRecConfig `json:"sasrec" koanf:"sasrec"`

	// DLRM contains parameters for the final scoring head. Its ContextDim
	// is always overwritten with the SASRec width.
	DLRM algorithms.DLRMConfig `json:"dlrm" koanf:"dlrm"`

	// Diversity contains parameters for the MMR pass.
	Diversity DiversityConfig `json:"diversity" koanf:"diversity"`

	// Training contains training schedule parameters.
	Training TrainingConfig `json:"training" koanf:"training"`

	// Limits contains request limits.
	Limits LimitsConfig `json:"limits" koanf:"limits"`

	// Cache contains result cache parameters.
	Cache CacheConfig `json:"cache" koanf:"cache"`
}

// DiversityConfig contains parameters for diversity reranking.
type DiversityConfig struct {
	// MMRLambda balances relevance and diversity. 1 disables the pass.
	// Default: 1.
	MMRLambda float64 `json:"mmr_lambda" koanf:"mmr_lambda" validate:"gte=0,lte=1"`
}

// TrainingConfig contains training schedule parameters.
type TrainingConfig struct {
	// Interval is the time between scheduled training runs. Zero disables
	// scheduled training.
	// Default: 24h.
	Interval time.Duration `json:"interval" koanf:"interval" validate:"gte=0"`

	// Timeout is the maximum time allowed for a training run.
	// Default: 30m.
	Timeout time.Duration `json:"timeout" koanf:"timeout" validate:"gt=0"`

	// OnStartup runs one training pass when the service starts.
	// Default: false.
	OnStartup bool `json:"on_startup" koanf:"on_startup"`

	// RetainVersions is the number of artifact versions kept per model
	// after each publish. Zero keeps every version.
	// Default: 5.
	RetainVersions int `json:"retain_versions" koanf:"retain_versions" validate:"gte=0"`
}

// LimitsConfig contains operational limits.
type LimitsConfig struct {
	// MaxCandidates is the maximum number of candidates accepted per request.
	// Default: 5000.
	MaxCandidates int `json:"max_candidates" koanf:"max_candidates" validate:"gte=1"`

	// RetrievalK is the number of candidates kept after retrieval.
	// Default: 200.
	RetrievalK int `json:"retrieval_k" koanf:"retrieval_k" validate:"gte=1"`

	// RerankK is the number of candidates kept after sequential reranking.
	// Default: 50.
	RerankK int `json:"rerank_k" koanf:"rerank_k" validate:"gte=1,ltefield=RetrievalK"`

	// DefaultK is the default number of recommendations to return.
	// Default: 10.
	DefaultK int `json:"default_k" koanf:"default_k" validate:"gte=1,ltefield=MaxK"`

	// MaxK is the maximum allowed K value.
	// Default: 50.
	MaxK int `json:"max_k" koanf:"max_k" validate:"gte=1"`

	// PredictionTimeout bounds a single Recommend call.
	// Default: 5s.
	PredictionTimeout time.Duration `json:"prediction_timeout" koanf:"prediction_timeout" validate:"gt=0"`
}

// CacheConfig contains caching parameters.
type CacheConfig struct {
	// Enabled controls whether caching is active.
	// Default: true.
	Enabled bool `json:"enabled" koanf:"enabled"`

	// TTL is the cache entry time-to-live.
	// Default: 5m.
	TTL time.Duration `json:"ttl" koanf:"ttl" validate:"gte=0"`

	// MaxEntries is the maximum number of cached responses.
	// Default: 10000.
	MaxEntries int `json:"max_entries" koanf:"max_entries" validate:"gte=0"`
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() *Config {
	return &Config{
		BPR:      algorithms.DefaultBPRConfig(),
		TwoTower: algorithms.DefaultTwoTowerConfig(),
		SASRec:   algorithms.DefaultSASRecConfig(),
		DLRM:     algorithms.DefaultDLRMConfig(),
		Diversity: DiversityConfig{
			MMRLambda: 1,
		},
		Training: TrainingConfig{
			Interval:       24 * time.Hour,
			Timeout:        30 * time.Minute,
			RetainVersions: 5,
		},
		Limits: LimitsConfig{
			MaxCandidates:     5000,
			RetrievalK:        200,
			RerankK:           50,
			DefaultK:          10,
			MaxK:              50,
			PredictionTimeout: 5 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        5 * time.Minute,
			MaxEntries: 10000,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return fmt.Errorf("pipeline config: %w", verr)
	}
	if err := c.SASRec.Validate(); err != nil {
		return fmt.Errorf("pipeline config: sasrec: %w", err)
	}
	return nil
}

// Clone returns a copy of the configuration. Every nested struct holds
// only value types.
func (c *Config) Clone() *Config {
	out := *c
	return &out
}
