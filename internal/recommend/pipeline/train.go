// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/wayfarer/internal/dataset"
	"github.com/tomtom215/wayfarer/internal/logging"
	"github.com/tomtom215/wayfarer/internal/metrics"
	"github.com/tomtom215/wayfarer/internal/recommend"
	"github.com/tomtom215/wayfarer/internal/recommend/algorithms"
	"github.com/tomtom215/wayfarer/internal/recommend/storage"
	"github.com/tomtom215/wayfarer/internal/registry"
)

// ModelReport is the outcome of training one model.
type ModelReport struct {
	Model   string                 `json:"model"`
	Metrics recommend.TrainMetrics `json:"metrics"`

	// Skipped is set when the corpus had nothing this model can use.
	Skipped bool `json:"skipped,omitempty"`

	// Version is the registry version key, empty when not published.
	Version string `json:"version,omitempty"`
	Path    string `json:"path,omitempty"`
}

// TrainReport is the outcome of one Engine.Train call.
type TrainReport struct {
	RunID    string        `json:"run_id"`
	Models   []ModelReport `json:"models"`
	Duration time.Duration `json:"duration_ns"`
}

// Train fits BPR, Two-Tower, SASRec and DLRM on corpus in that order and
// publishes each one. DLRM contexts are the SASRec encodings of each
// example user's history, so SASRec always trains first.
// A second call while a run is active fails with recommend.ErrTrainingInProgress.
func (e *Engine) Train(ctx context.Context, corpus *dataset.Corpus) (*TrainReport, error) {
	if !e.trainMu.TryLock() {
		return nil, recommend.ErrTrainingInProgress
	}
	defer e.trainMu.Unlock()

	if corpus == nil || corpus.Empty() {
		return nil, recommend.ErrEmptyTrainingSet
	}

	start := time.Now()
	report := &TrainReport{RunID: logging.GenerateRunID()}
	ctx = logging.ContextWithRunID(ctx, report.RunID)
	if e.config.Training.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Training.Timeout)
		defer cancel()
	}
	logger := e.logger.With().Str("run_id", report.RunID).Logger()

	e.setStatus(func(s *recommend.TrainingStatus) {
		s.IsTraining = true
		s.LastError = ""
	})
	metrics.SetTrainingInProgress(true)
	logger.Info().
		Int("triplets", len(corpus.Triplets)).
		Int("pairs", len(corpus.Towers.Pairs)).
		Int("sequences", len(corpus.Sequences)).
		Int("examples", len(corpus.Examples)).
		Msg("Starting model training")

	err := e.trainAll(ctx, corpus, report)
	report.Duration = time.Since(start)

	metrics.SetTrainingInProgress(false)
	e.setStatus(func(s *recommend.TrainingStatus) {
		s.IsTraining = false
		s.CurrentModel = ""
		s.LastDurationMS = report.Duration.Milliseconds()
		s.Runs++
		if err != nil {
			s.LastError = err.Error()
		} else {
			s.LastTrainedAt = time.Now().UTC()
		}
	})
	// Models that finished before a failure are already live.
	e.purgeCache()

	if err != nil {
		logger.Error().Err(err).Dur("duration", report.Duration).Msg("Model training failed")
		return report, err
	}
	logger.Info().Dur("duration", report.Duration).Msg("Model training complete")
	return report, nil
}

func (e *Engine) trainAll(ctx context.Context, corpus *dataset.Corpus, report *TrainReport) error {
	users, items := corpus.Users(), corpus.Items()

	steps := []struct {
		model algorithms.Model
		skip  string
		train func() (recommend.TrainMetrics, error)
	}{
		{
			model: e.bpr,
			train: func() (recommend.TrainMetrics, error) {
				return e.bpr.Train(ctx, corpus.Triplets, users, items)
			},
		},
		{
			model: e.twoTower,
			skip:  towerSkipReason(corpus),
			train: func() (recommend.TrainMetrics, error) {
				return e.twoTower.Train(ctx, corpus.Towers)
			},
		},
		{
			model: e.sasrec,
			train: func() (recommend.TrainMetrics, error) {
				return e.sasrec.Train(ctx, corpus.Sequences, items)
			},
		},
		{
			model: e.dlrm,
			train: func() (recommend.TrainMetrics, error) {
				return e.dlrm.Fit(ctx, e.labeledExamples(corpus))
			},
		},
	}

	for _, step := range steps {
		name := step.model.Type()
		if step.skip != "" {
			logging.Ctx(ctx).Info().Str("model", name).Str("reason", step.skip).Msg("Model skipped")
			report.Models = append(report.Models, ModelReport{Model: name, Skipped: true})
			continue
		}
		e.setStatus(func(s *recommend.TrainingStatus) { s.CurrentModel = name })

		tm, err := step.train()
		metrics.RecordTraining(name, tm.Duration, tm.FinalLoss, tm.Epochs, tm.StoppedEarly, err)
		if err != nil {
			return fmt.Errorf("train %s: %w", name, err)
		}
		logging.Ctx(ctx).Info().
			Str("model", name).
			Int("epochs", tm.Epochs).
			Int("examples", tm.Examples).
			Float64("final_loss", tm.FinalLoss).
			Bool("stopped_early", tm.StoppedEarly).
			Str("stop_reason", tm.StopReason).
			Dur("duration", tm.Duration).
			Msg("Model trained")

		mr := ModelReport{Model: name, Metrics: tm}
		if err := e.publish(ctx, step.model, tm, &mr); err != nil {
			return err
		}
		report.Models = append(report.Models, mr)
	}
	return nil
}

// towerSkipReason explains why Two-Tower cannot train on corpus, or
// returns "".
func towerSkipReason(corpus *dataset.Corpus) string {
	if len(corpus.Towers.UserFeatures) == 0 || len(corpus.Towers.ItemFeatures) == 0 {
		return "no user or item features"
	}
	return ""
}

// labeledExamples attaches the SASRec context of each example's user.
func (e *Engine) labeledExamples(corpus *dataset.Corpus) []algorithms.LabeledExample {
	histories := make(map[string][]string, len(corpus.SequenceUsers))
	for i, u := range corpus.SequenceUsers {
		histories[u] = corpus.Sequences[i]
	}
	contexts := make(map[string][]float64)

	out := make([]algorithms.LabeledExample, len(corpus.Examples))
	for i, ex := range corpus.Examples {
		ctxVec, ok := contexts[ex.UserID]
		if !ok {
			ctxVec = e.sasrec.Encode(histories[ex.UserID])
			contexts[ex.UserID] = ctxVec
		}
		out[i] = algorithms.LabeledExample{Features: ex.Features, Context: ctxVec, Label: ex.Label}
	}
	return out
}

// publish persists m when the engine has a publisher and prunes old
// versions.
func (e *Engine) publish(ctx context.Context, m registry.Persistable, tm recommend.TrainMetrics, mr *ModelReport) error {
	if e.publisher == nil {
		return nil
	}
	pub, err := e.publisher.Publish(ctx, m, tm)
	if err != nil {
		return err
	}
	mr.Version = pub.Entry.ModelVersion
	mr.Path = pub.Meta.Path
	e.markServed(pub.Meta.Name, pub.Meta.Version)

	if keep := e.config.Training.RetainVersions; keep > 0 {
		removed, err := e.publisher.Store().Prune(ctx, pub.Meta.Name, keep)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("model", pub.Meta.Name).Msg("Failed to prune old artifacts")
		} else if removed > 0 {
			logging.Ctx(ctx).Debug().Str("model", pub.Meta.Name).Int("removed", removed).Msg("Pruned old artifacts")
		}
	}
	return nil
}

// LoadLatest restores every model from its latest verified artifact and
// returns the number of models loaded. Models with no stored artifact keep
// their current parameters. It fails with recommend.ErrTrainingInProgress
// while a training run is active so a stored version never replaces the
// one being trained.
func (e *Engine) LoadLatest(ctx context.Context) (int, error) {
	if e.publisher == nil {
		return 0, ErrNoStore
	}
	if !e.trainMu.TryLock() {
		return 0, recommend.ErrTrainingInProgress
	}
	defer e.trainMu.Unlock()
	return e.load(ctx, false)
}

// Refresh rescans the artifact store and restores only the models whose
// latest stored version differs from the one being served. It does nothing
// while a training run is active, since that run publishes its own versions.
func (e *Engine) Refresh(ctx context.Context) (int, error) {
	if e.publisher == nil {
		return 0, ErrNoStore
	}
	if !e.trainMu.TryLock() {
		return 0, nil
	}
	defer e.trainMu.Unlock()

	if err := e.publisher.Store().Rescan(ctx); err != nil {
		return 0, fmt.Errorf("rescan artifact store: %w", err)
	}
	return e.load(ctx, true)
}

func (e *Engine) load(ctx context.Context, changedOnly bool) (int, error) {
	store := e.publisher.Store()
	loaded := 0
	for _, m := range e.models() {
		if changedOnly {
			latest, ok := store.Latest(m.Name())
			if !ok || latest == e.servedVersion(m.Name()) {
				continue
			}
		}
		a, meta, err := store.Load(ctx, m.Name(), 0)
		if errors.Is(err, storage.ErrModelNotFound) {
			continue
		}
		if err != nil {
			return loaded, err
		}
		if err := m.Restore(a); err != nil {
			return loaded, fmt.Errorf("restore %s v%d: %w", meta.Name, meta.Version, err)
		}
		e.markServed(meta.Name, meta.Version)
		loaded++
		e.logger.Info().
			Str("model", meta.Name).
			Int("version", meta.Version).
			Str("hash", meta.Hash).
			Msg("Model loaded")
	}

	if e.sasrec.IsTrained() && e.dlrm.IsTrained() && e.dlrm.Config().ContextDim != e.sasrec.Dim() {
		e.logger.Warn().
			Int("sasrec_dim", e.sasrec.Dim()).
			Int("dlrm_context_dim", e.dlrm.Config().ContextDim).
			Msg("Loaded DLRM context width does not match SASRec; DLRM scoring will fail until retrained")
	}
	if loaded > 0 {
		e.setStatus(func(s *recommend.TrainingStatus) {
			s.LastTrainedAt = time.Now().UTC()
		})
		e.purgeCache()
	}
	return loaded, nil
}

// ServedVersions returns the stored version of each model currently live.
// Models trained in memory without a store are absent.
func (e *Engine) ServedVersions() map[string]int {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	out := make(map[string]int, len(e.served))
	for k, v := range e.served {
		out[k] = v
	}
	return out
}

func (e *Engine) servedVersion(name string) int {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.served[name]
}

func (e *Engine) markServed(name string, version int) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	if e.served == nil {
		e.served = make(map[string]int)
	}
	e.served[name] = version
}

// Status returns the current training status.
func (e *Engine) Status() recommend.TrainingStatus {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

func (e *Engine) setStatus(update func(s *recommend.TrainingStatus)) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	update(&e.status)
}
