// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package algorithms

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/wayfarer/internal/recommend"
	"github.com/tomtom215/wayfarer/internal/recommend/storage"
)

// Model is the lifecycle surface shared by all four models.
type Model interface {
	// Name is the model name used for artifact files and registry rows.
	Name() string

	// Type is one of the recommend.ModelType* constants.
	Type() string

	// IsTrained reports whether parameters are available for scoring.
	IsTrained() bool

	// Version counts successful Train and Restore calls.
	Version() int

	// Artifact snapshots the current parameters.
	Artifact() (*storage.Artifact, error)

	// Restore replaces the parameters with those in a.
	Restore(a *storage.Artifact) error

	// Save writes the current parameters to path and returns the hash.
	Save(path string) (string, error)

	// ConfigSnapshot returns the effective configuration.
	ConfigSnapshot() any
}

// baseModel carries the bookkeeping common to every model.
type baseModel struct {
	name      string
	modelType string

	// trainMu serializes Train and Restore. Predict never takes it.
	trainMu sync.Mutex

	version       atomic.Int64
	lastTrainedAt atomic.Int64
}

func newBaseModel(name, modelType string) baseModel {
	if name == "" {
		name = modelType
	}
	return baseModel{name: name, modelType: modelType}
}

// Name returns the model name.
func (b *baseModel) Name() string {
	return b.name
}

// Type returns the model type identifier.
func (b *baseModel) Type() string {
	return b.modelType
}

// Version counts parameter swaps.
func (b *baseModel) Version() int {
	return int(b.version.Load())
}

// LastTrainedAt returns the zero time before the first swap.
func (b *baseModel) LastTrainedAt() time.Time {
	ns := b.lastTrainedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// markTrained must be called right after a parameter swap.
func (b *baseModel) markTrained(at time.Time) {
	b.version.Add(1)
	b.lastTrainedAt.Store(at.UnixNano())
}

// ContextCancelled checks if the context has been canceled.
func ContextCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// newRNG returns the generator every stochastic step of one training run
// draws from.
func newRNG(seed int64) *rand.Rand {
	//nolint:gosec // G404: math/rand is acceptable for ML initialization (not security)
	return rand.New(rand.NewSource(seed))
}

// rankCandidates scores every candidate and sorts the result, highest first.
func rankCandidates(candidates []string, score func(id string) float64) []recommend.ScoredItem {
	out := make([]recommend.ScoredItem, len(candidates))
	for i, id := range candidates {
		out[i] = recommend.ScoredItem{ItemID: id, Score: score(id)}
	}
	recommend.SortByScore(out)
	return out
}

// meanLoss guards against dividing by an empty epoch.
func meanLoss(total float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// sgdStep applies w -= lr * (g + reg*w) elementwise.
func sgdStep(w, g []float64, lr, reg float64) {
	for i := range w {
		w[i] -= lr * (g[i] + reg*w[i])
	}
}

var (
	_ Model = (*BPR)(nil)
	_ Model = (*TwoTower)(nil)
	_ Model = (*SASRec)(nil)
	_ Model = (*DLRM)(nil)

	_ recommend.Searcher = (*BPR)(nil)
	_ recommend.Searcher = (*TwoTower)(nil)
)
