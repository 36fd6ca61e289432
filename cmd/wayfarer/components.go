// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/wayfarer/internal/dataset"
	"github.com/tomtom215/wayfarer/internal/recommend/pipeline"
	"github.com/tomtom215/wayfarer/internal/recommend/storage"
	"github.com/tomtom215/wayfarer/internal/registry"
	"github.com/tomtom215/wayfarer/internal/supervisor/services"
)

var errNoData = errors.New("no training data configured: set data.paths or data.synthetic")

// components holds the storage and engine shared by the commands.
type components struct {
	store    *storage.Store
	registry *registry.Registry
	engine   *pipeline.Engine
}

// open builds the artifact store, the optional registry and the engine.
// withRegistry is false for read-only commands so a concurrent trainer
// can hold the DuckDB file.
func (a *app) open(ctx context.Context, withRegistry bool) (*components, error) {
	store, err := storage.NewStore(a.cfg.Storage.ArtifactDir)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	c := &components{store: store}

	if withRegistry && a.cfg.Registry.Enabled {
		c.registry, err = registry.Open(ctx, a.cfg.Registry.Registry())
		if err != nil {
			return nil, fmt.Errorf("open registry: %w", err)
		}
	}

	c.engine, err = pipeline.NewEngine(&a.cfg.Pipeline, registry.NewPublisher(store, c.registry))
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}
	return c, nil
}

// Close releases the registry connection.
func (c *components) Close() error {
	if c.registry == nil {
		return nil
	}
	return c.registry.Close()
}

// corpusSource returns a loader for the configured training corpus.
func (a *app) corpusSource() services.CorpusSource {
	data := a.cfg.Data
	return func(ctx context.Context) (*dataset.Corpus, error) {
		if data.Synthetic {
			return dataset.Synthetic(data.SyntheticConfig), nil
		}
		if !data.HasPaths() {
			return nil, errNoData
		}
		loader, err := dataset.NewLoader(ctx)
		if err != nil {
			return nil, err
		}
		defer func() { _ = loader.Close() }()
		return loader.LoadCorpus(ctx, data.Paths)
	}
}
