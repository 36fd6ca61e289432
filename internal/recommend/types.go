// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package recommend

import (
	"context"
	"sort"
	"time"
)

// Model type identifiers, used in artifacts and the registry.
const (
	ModelTypeBPR      = "bpr"
	ModelTypeTwoTower = "two_tower"
	ModelTypeSASRec   = "sasrec"
	ModelTypeDLRM     = "dlrm"
)

// ScoredItem is one candidate with its model score.
type ScoredItem struct {
	// ItemID is the opaque item identifier supplied by the caller.
	ItemID string `json:"item_id"`

	// Score is the raw model score. Its scale depends on the model.
	Score float64 `json:"score"`
}

// SortByScore orders items by descending score. The sort is stable, so
// equal scores keep their input order.
func SortByScore(items []ScoredItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
}

// TopK returns the first k items, or all of them when k <= 0 or k exceeds
// the length.
func TopK(items []ScoredItem, k int) []ScoredItem {
	if k <= 0 || k >= len(items) {
		return items
	}
	return items[:k]
}

// ZeroScores returns every candidate with score 0, in input order.
func ZeroScores(candidates []string) []ScoredItem {
	out := make([]ScoredItem, len(candidates))
	for i, id := range candidates {
		out[i] = ScoredItem{ItemID: id}
	}
	return out
}

// QueryKind tags which field of a Query is populated.
type QueryKind int

const (
	// QueryByUser looks the user up in the model's own index.
	QueryByUser QueryKind = iota
	// QueryByFeatures supplies a raw user feature vector.
	QueryByFeatures
)

// String returns the kind name.
func (k QueryKind) String() string {
	switch k {
	case QueryByUser:
		return "user"
	case QueryByFeatures:
		return "features"
	default:
		return "unknown"
	}
}

// Query identifies whom a Searcher ranks candidates for.
type Query struct {
	Kind     QueryKind
	UserID   string
	Features []float64
}

// UserQuery returns a QueryByUser query.
func UserQuery(userID string) Query {
	return Query{Kind: QueryByUser, UserID: userID}
}

// FeatureQuery returns a QueryByFeatures query.
func FeatureQuery(features []float64) Query {
	return Query{Kind: QueryByFeatures, Features: features}
}

// Searcher is a candidate retrieval backend. Search ranks candidates for
// the query and returns at most topK of them (all when topK <= 0).
// A backend that cannot interpret the query kind returns ErrUnsupportedQuery.
type Searcher interface {
	Search(ctx context.Context, q Query, candidates []string, topK int) ([]ScoredItem, error)
}

// TrainMetrics summarizes one training run.
type TrainMetrics struct {
	// Model is the model type identifier.
	Model string `json:"model"`

	// Epochs is the number of epochs actually run.
	Epochs int `json:"epochs"`

	// Examples is the number of training units used per epoch.
	Examples int `json:"examples"`

	// LossHistory holds the mean loss of each epoch.
	LossHistory []float64 `json:"loss_history"`

	// FinalLoss is the last entry of LossHistory, or 0.
	FinalLoss float64 `json:"final_loss"`

	// StoppedEarly is set when degenerate input ended training before
	// the configured number of epochs.
	StoppedEarly bool `json:"stopped_early,omitempty"`

	// StopReason explains StoppedEarly.
	StopReason string `json:"stop_reason,omitempty"`

	// Duration is wall-clock training time.
	Duration time.Duration `json:"duration_ns"`
}

// AppendLoss records an epoch loss and keeps FinalLoss and Epochs in step.
func (m *TrainMetrics) AppendLoss(loss float64) {
	m.LossHistory = append(m.LossHistory, loss)
	m.FinalLoss = loss
	m.Epochs = len(m.LossHistory)
}

// StopEarly marks the run as ended by degenerate input.
func (m *TrainMetrics) StopEarly(reason string) {
	m.StoppedEarly = true
	m.StopReason = reason
}

// TrainingStatus reports the pipeline's background training state.
type TrainingStatus struct {
	IsTraining     bool      `json:"is_training"`
	CurrentModel   string    `json:"current_model,omitempty"`
	LastTrainedAt  time.Time `json:"last_trained_at"`
	LastDurationMS int64     `json:"last_duration_ms"`
	LastError      string    `json:"last_error,omitempty"`
	Runs           int64     `json:"runs"`
}
