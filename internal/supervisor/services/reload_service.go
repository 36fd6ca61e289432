// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/wayfarer/internal/logging"
)

// Refresher is the reload side of *pipeline.Engine.
type Refresher interface {
	Refresh(ctx context.Context) (int, error)
}

// ModelReloadService polls the artifact store and swaps in model versions
// published by other processes.
type ModelReloadService struct {
	refresher Refresher
	interval  time.Duration
	logger    zerolog.Logger
	name      string
}

// NewModelReloadService creates a reload service. A non-positive interval
// defaults to one minute.
func NewModelReloadService(refresher Refresher, interval time.Duration) *ModelReloadService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ModelReloadService{
		refresher: refresher,
		interval:  interval,
		logger:    logging.WithComponent("model-reload"),
		name:      "model-reload",
	}
}

// Serve implements suture.Service. A failed refresh is returned so the
// supervisor restarts the poll loop with backoff.
func (s *ModelReloadService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := s.refresher.Refresh(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("refresh models: %w", err)
			}
			if n > 0 {
				s.logger.Info().Int("models", n).Msg("Reloaded models from artifact store")
			}
		}
	}
}

// String implements fmt.Stringer.
func (s *ModelReloadService) String() string {
	return s.name
}
