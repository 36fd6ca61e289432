// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/wayfarer/internal/logging"
	"github.com/tomtom215/wayfarer/internal/metrics"
	"github.com/tomtom215/wayfarer/internal/recommend"
	"github.com/tomtom215/wayfarer/internal/recommend/storage"
)

// Persistable is a trained model that can be written as an artifact.
type Persistable interface {
	Artifact() (*storage.Artifact, error)
	ConfigSnapshot() any
}

// Publication is the outcome of one Publish call.
type Publication struct {
	Meta     *storage.ModelMetadata
	Entry    Entry
	Inserted bool
}

// Publisher saves artifacts to a Store and records them in a Registry.
type Publisher struct {
	store    *storage.Store
	registry *Registry
}

// NewPublisher creates a publisher. reg may be nil.
func NewPublisher(store *storage.Store, reg *Registry) *Publisher {
	return &Publisher{store: store, registry: reg}
}

// Store returns the artifact store.
func (p *Publisher) Store() *storage.Store {
	return p.store
}

// Publish writes the next artifact version of m and registers it.
// The artifact stays on disk when the registry write fails.
func (p *Publisher) Publish(ctx context.Context, m Persistable, tm recommend.TrainMetrics) (*Publication, error) {
	a, err := m.Artifact()
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}
	meta, err := p.store.Save(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", a.ModelName, err)
	}
	metrics.RecordArtifact(meta.ModelType, meta.SizeBytes)

	configJSON, err := json.Marshal(m.ConfigSnapshot())
	if err != nil {
		return nil, fmt.Errorf("publish %s: encode config: %w", a.ModelName, err)
	}
	metricsJSON, err := json.Marshal(tm)
	if err != nil {
		return nil, fmt.Errorf("publish %s: encode metrics: %w", a.ModelName, err)
	}

	pub := &Publication{
		Meta: meta,
		Entry: Entry{
			ModelName:    meta.Name,
			ModelVersion: VersionKey(meta.Version, meta.Hash),
			ModelType:    meta.ModelType,
			ArtifactPath: meta.Path,
			ArtifactHash: meta.Hash,
			ConfigJSON:   string(configJSON),
			MetricsJSON:  string(metricsJSON),
			CreatedAt:    time.Now().UTC(),
		},
	}

	logger := logging.Ctx(ctx).With().
		Str("model", meta.Name).
		Str("version", pub.Entry.ModelVersion).
		Str("path", meta.Path).
		Logger()

	if p.registry == nil {
		logger.Info().Int64("bytes", meta.SizeBytes).Msg("Model artifact published")
		return pub, nil
	}

	pub.Inserted, err = p.registry.Register(ctx, pub.Entry)
	metrics.RecordRegistryWrite(pub.Inserted, err)
	if err != nil {
		return pub, fmt.Errorf("publish %s: %w", meta.Name, err)
	}
	logger.Info().
		Int64("bytes", meta.SizeBytes).
		Bool("registered", pub.Inserted).
		Msg("Model artifact published")
	return pub, nil
}
