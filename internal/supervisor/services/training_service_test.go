// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/wayfarer/internal/dataset"
	"github.com/tomtom215/wayfarer/internal/recommend"
	"github.com/tomtom215/wayfarer/internal/recommend/algorithms"
	"github.com/tomtom215/wayfarer/internal/recommend/pipeline"
)

type mockTrainer struct {
	mu      sync.Mutex
	calls   int
	corpora []*dataset.Corpus
	err     error
}

func (m *mockTrainer) Train(_ context.Context, corpus *dataset.Corpus) (*pipeline.TrainReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.corpora = append(m.corpora, corpus)
	if m.err != nil {
		return nil, m.err
	}
	return &pipeline.TrainReport{RunID: "run", Models: []pipeline.ModelReport{{Model: "bpr"}}}, nil
}

func (m *mockTrainer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func staticSource(c *dataset.Corpus) CorpusSource {
	return func(context.Context) (*dataset.Corpus, error) { return c, nil }
}

func runFor(t *testing.T, svc *TrainingService, d time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return svc.Serve(ctx)
}

func TestTrainingService_String(t *testing.T) {
	t.Parallel()
	svc := NewTrainingService(&mockTrainer{}, staticSource(nil), TrainingServiceConfig{})
	if got := svc.String(); got != "training-service" {
		t.Errorf("String() = %q, want training-service", got)
	}
}

func TestTrainingService_Serve(t *testing.T) {
	t.Parallel()

	corpus := &dataset.Corpus{Triplets: []algorithms.Triplet{{UserID: "u", PosItemID: "a", NegItemID: "b"}}}
	tests := []struct {
		name     string
		cfg      TrainingServiceConfig
		trainErr error
		run      time.Duration
		minCalls int
		maxCalls int
	}{
		{"startup only", TrainingServiceConfig{TrainOnStartup: true}, nil, 100 * time.Millisecond, 1, 1},
		{"no startup no interval", TrainingServiceConfig{}, nil, 100 * time.Millisecond, 0, 0},
		{"interval", TrainingServiceConfig{TrainInterval: 20 * time.Millisecond}, nil, 150 * time.Millisecond, 2, 8},
		{"failures keep running", TrainingServiceConfig{TrainOnStartup: true, TrainInterval: 20 * time.Millisecond}, errors.New("boom"), 150 * time.Millisecond, 3, 9},
		{"in progress is skipped", TrainingServiceConfig{TrainOnStartup: true}, recommend.ErrTrainingInProgress, 50 * time.Millisecond, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			trainer := &mockTrainer{err: tt.trainErr}
			svc := NewTrainingService(trainer, staticSource(corpus), tt.cfg)

			if err := runFor(t, svc, tt.run); !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("Serve() = %v, want context.DeadlineExceeded", err)
			}
			if got := trainer.Calls(); got < tt.minCalls || got > tt.maxCalls {
				t.Errorf("Train() called %d times, want [%d, %d]", got, tt.minCalls, tt.maxCalls)
			}
			for _, c := range trainer.corpora {
				if c != corpus {
					t.Error("Train() received a different corpus")
				}
			}
		})
	}
}

func TestTrainingService_SourceError(t *testing.T) {
	t.Parallel()

	trainer := &mockTrainer{}
	source := func(context.Context) (*dataset.Corpus, error) { return nil, errors.New("missing file") }
	svc := NewTrainingService(trainer, source, TrainingServiceConfig{TrainOnStartup: true})

	if err := runFor(t, svc, 50*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve() = %v", err)
	}
	if trainer.Calls() != 0 {
		t.Errorf("Train() called %d times after source error", trainer.Calls())
	}
}

func TestTrainingService_RequiresDependencies(t *testing.T) {
	t.Parallel()

	if err := NewTrainingService(nil, staticSource(nil), TrainingServiceConfig{}).Serve(context.Background()); err == nil {
		t.Error("Serve() with nil trainer succeeded")
	}
	if err := NewTrainingService(&mockTrainer{}, nil, TrainingServiceConfig{}).Serve(context.Background()); err == nil {
		t.Error("Serve() with nil source succeeded")
	}
}
