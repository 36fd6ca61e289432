// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/wayfarer/internal/dataset"
	"github.com/tomtom215/wayfarer/internal/logging"
	"github.com/tomtom215/wayfarer/internal/recommend"
	"github.com/tomtom215/wayfarer/internal/recommend/pipeline"
)

// Trainer is the training side of *pipeline.Engine.
type Trainer interface {
	Train(ctx context.Context, corpus *dataset.Corpus) (*pipeline.TrainReport, error)
}

// CorpusSource produces a fresh training corpus for each run.
type CorpusSource func(ctx context.Context) (*dataset.Corpus, error)

// TrainingServiceConfig holds configuration for the training service.
type TrainingServiceConfig struct {
	// TrainOnStartup triggers a run as soon as the service starts.
	TrainOnStartup bool

	// TrainInterval is the retraining period. Zero disables scheduled runs.
	TrainInterval time.Duration
}

// TrainingService runs the engine's training lifecycle under supervision.
// A failed run is logged and retried at the next tick; only a panic or a
// nil trainer makes Serve return early.
type TrainingService struct {
	trainer Trainer
	source  CorpusSource
	config  TrainingServiceConfig
	logger  zerolog.Logger
	name    string
}

// NewTrainingService creates a new training service.
func NewTrainingService(trainer Trainer, source CorpusSource, cfg TrainingServiceConfig) *TrainingService {
	return &TrainingService{
		trainer: trainer,
		source:  source,
		config:  cfg,
		logger:  logging.WithComponent("training-service"),
		name:    "training-service",
	}
}

// Serve implements suture.Service.
func (s *TrainingService) Serve(ctx context.Context) error {
	if s.trainer == nil || s.source == nil {
		return fmt.Errorf("%s: trainer and corpus source are required", s.name)
	}
	s.logger.Info().
		Bool("train_on_startup", s.config.TrainOnStartup).
		Dur("train_interval", s.config.TrainInterval).
		Msg("Training service starting")

	if s.config.TrainOnStartup {
		s.runOnce(ctx, "startup")
	}

	if s.config.TrainInterval <= 0 {
		<-ctx.Done()
		s.logger.Info().Msg("Training service shutting down")
		return ctx.Err()
	}

	ticker := time.NewTicker(s.config.TrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Training service shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx, "schedule")
		}
	}
}

// runOnce loads a corpus and trains on it, logging rather than returning
// failures.
func (s *TrainingService) runOnce(ctx context.Context, trigger string) {
	corpus, err := s.source(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("trigger", trigger).Msg("Failed to load training corpus")
		return
	}

	report, err := s.trainer.Train(ctx, corpus)
	switch {
	case err == nil:
		s.logger.Info().
			Str("trigger", trigger).
			Str("run_id", report.RunID).
			Int("models", len(report.Models)).
			Dur("duration", report.Duration).
			Msg("Training run complete")
	case errors.Is(err, recommend.ErrTrainingInProgress):
		s.logger.Debug().Str("trigger", trigger).Msg("Training already in progress, skipping")
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		s.logger.Debug().Str("trigger", trigger).Msg("Training interrupted by shutdown")
	default:
		s.logger.Warn().Err(err).Str("trigger", trigger).Msg("Training run failed")
	}
}

// String implements fmt.Stringer.
func (s *TrainingService) String() string {
	return s.name
}
