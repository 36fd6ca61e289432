// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package algorithms

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/wayfarer/internal/recommend"
	"github.com/tomtom215/wayfarer/internal/recommend/storage"
)

func TestNewBPR(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config BPRConfig
		want   BPRConfig
	}{
		{
			name:   "default config",
			config: DefaultBPRConfig(),
			want:   DefaultBPRConfig(),
		},
		{
			name:   "zero values get defaults",
			config: BPRConfig{},
			want:   DefaultBPRConfig(),
		},
		{
			name:   "custom config",
			config: BPRConfig{Factors: 8, LearningRate: 0.1, RegUser: 0.2, RegPos: 0.3, RegNeg: 0.4, InitStd: 0.05, Epochs: 3, Seed: 7},
			want:   BPRConfig{Factors: 8, LearningRate: 0.1, RegUser: 0.2, RegPos: 0.3, RegNeg: 0.4, InitStd: 0.05, Epochs: 3, Seed: 7},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := NewBPR(tt.config)
			if b.Name() != "bpr" || b.Type() != recommend.ModelTypeBPR {
				t.Errorf("Name() = %q, Type() = %q", b.Name(), b.Type())
			}
			if got := b.Config(); got != tt.want {
				t.Errorf("Config() = %+v, want %+v", got, tt.want)
			}
			if b.IsTrained() {
				t.Error("new model should not be trained")
			}
		})
	}
}

func TestBPR_TwoClusterScenario(t *testing.T) {
	t.Parallel()

	triplets, users, items := twoClusterTriplets(100, 1)
	b := NewBPR(BPRConfig{Factors: 8, Epochs: 20, Seed: 42})

	metrics, err := b.Train(context.Background(), triplets, users, items)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if metrics.Epochs != 20 || len(metrics.LossHistory) != 20 {
		t.Fatalf("Epochs = %d, history = %d, want 20", metrics.Epochs, len(metrics.LossHistory))
	}
	if metrics.Examples != 100 {
		t.Errorf("Examples = %d, want 100", metrics.Examples)
	}
	if last, first := metrics.LossHistory[19], metrics.LossHistory[0]; !(last < first) {
		t.Errorf("epoch 20 loss %.6f not below epoch 1 loss %.6f", last, first)
	}
	assertConverges(t, metrics.LossHistory, 3)

	ranked, err := b.Predict(context.Background(), "user_0", items)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	assertSorted(t, ranked)
	liked := 0
	for _, it := range ranked[:5] {
		switch it.ItemID {
		case "item_0", "item_1", "item_2", "item_3", "item_4":
			liked++
		}
	}
	if liked < 3 {
		t.Errorf("top-5 for user_0 holds %d of items 0-4, want >= 3: %v", liked, ranked[:5])
	}
}

func TestBPR_Deterministic(t *testing.T) {
	t.Parallel()

	triplets, users, items := twoClusterTriplets(50, 3)
	cfg := BPRConfig{Factors: 4, Epochs: 5, Seed: 11}

	a := NewBPR(cfg)
	b := NewBPR(cfg)
	ma, err := a.Train(context.Background(), append([]Triplet(nil), triplets...), users, items)
	if err != nil {
		t.Fatal(err)
	}
	mb, err := b.Train(context.Background(), append([]Triplet(nil), triplets...), users, items)
	if err != nil {
		t.Fatal(err)
	}
	for i := range ma.LossHistory {
		if ma.LossHistory[i] != mb.LossHistory[i] {
			t.Fatalf("epoch %d loss differs: %v vs %v", i, ma.LossHistory[i], mb.LossHistory[i])
		}
	}
}

func TestBPR_ColdStart(t *testing.T) {
	t.Parallel()

	triplets, users, items := twoClusterTriplets(40, 2)
	b := NewBPR(BPRConfig{Factors: 4, Epochs: 2})
	if _, err := b.Train(context.Background(), triplets, users, items); err != nil {
		t.Fatal(err)
	}

	ranked, err := b.Predict(context.Background(), "stranger", items)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	assertAllZero(t, ranked, len(items))

	ranked, err = b.Predict(context.Background(), "user_0", []string{"unknown_item"})
	if err != nil {
		t.Fatal(err)
	}
	assertAllZero(t, ranked, 1)
	if b.KnowsUser("stranger") || !b.KnowsUser("user_1") {
		t.Error("KnowsUser mismatch")
	}
}

func TestBPR_PredictBeforeTrain(t *testing.T) {
	t.Parallel()

	b := NewBPR(DefaultBPRConfig())
	if _, err := b.Predict(context.Background(), "user_0", []string{"item_0"}); !errors.Is(err, recommend.ErrModelNotTrained) {
		t.Errorf("Predict() error = %v, want ErrModelNotTrained", err)
	}
	if _, err := b.Save(filepath.Join(t.TempDir(), "bpr.json")); !errors.Is(err, recommend.ErrModelNotTrained) {
		t.Errorf("Save() error = %v, want ErrModelNotTrained", err)
	}
}

func TestBPR_InvalidTriplets(t *testing.T) {
	t.Parallel()

	users := []string{"u"}
	items := []string{"a", "b"}
	tests := []struct {
		name    string
		triplet Triplet
	}{
		{"unknown user", Triplet{"x", "a", "b"}},
		{"unknown positive", Triplet{"u", "z", "b"}},
		{"unknown negative", Triplet{"u", "a", "z"}},
		{"same item twice", Triplet{"u", "a", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := NewBPR(BPRConfig{Factors: 2, Epochs: 1})
			_, err := b.Train(context.Background(), []Triplet{tt.triplet}, users, items)
			if !errors.Is(err, recommend.ErrInvalidTriplet) {
				t.Errorf("Train() error = %v, want ErrInvalidTriplet", err)
			}
			if b.IsTrained() {
				t.Error("rejected training must not publish parameters")
			}
		})
	}
}

func TestBPR_EmptyTripletsStopEarly(t *testing.T) {
	t.Parallel()

	b := NewBPR(BPRConfig{Factors: 2})
	metrics, err := b.Train(context.Background(), nil, []string{"u"}, []string{"a"})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if !metrics.StoppedEarly || metrics.Epochs != 0 {
		t.Errorf("metrics = %+v, want early stop with no epochs", metrics)
	}
	if !b.IsTrained() {
		t.Error("initialized parameters should still be published")
	}
}

func TestBPR_ContextCancellation(t *testing.T) {
	t.Parallel()

	triplets, users, items := twoClusterTriplets(20, 1)
	b := NewBPR(BPRConfig{Factors: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.Train(ctx, triplets, users, items); !errors.Is(err, context.Canceled) {
		t.Errorf("Train() error = %v, want context.Canceled", err)
	}
	if b.IsTrained() {
		t.Error("cancelled training must not publish parameters")
	}
}

func TestBPR_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	triplets, users, items := twoClusterTriplets(60, 5)
	b := NewBPR(BPRConfig{Factors: 6, Epochs: 4})
	if _, err := b.Train(context.Background(), triplets, users, items); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "bpr.json.gz")
	hash, err := b.Save(path)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := LoadBPR(path)
	if err != nil {
		t.Fatalf("LoadBPR() error = %v", err)
	}
	if got, err := storage.VerifyArtifact(path); err != nil || got != hash {
		t.Errorf("VerifyArtifact() = %s, %v, want %s", got, err, hash)
	}

	for _, user := range []string{"user_0", "user_4", "nobody"} {
		want, _ := b.Predict(context.Background(), user, items)
		got, err := loaded.Predict(context.Background(), user, items)
		if err != nil {
			t.Fatal(err)
		}
		assertScoresClose(t, got, want, 1e-10)
	}
	if len(loaded.LossHistory()) != 4 || loaded.Config() != b.Config() {
		t.Errorf("loaded history = %v, config = %+v", loaded.LossHistory(), loaded.Config())
	}
}

func TestBPR_LoadRejectsWrongModelType(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "other.json")
	a, err := storage.NewArtifact(recommend.ModelTypeDLRM, "", struct{}{}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := storage.WriteArtifact(path, a); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadBPR(path); !errors.Is(err, storage.ErrModelTypeMismatch) {
		t.Errorf("LoadBPR() error = %v, want ErrModelTypeMismatch", err)
	}
}

func TestBPR_Search(t *testing.T) {
	t.Parallel()

	triplets, users, items := twoClusterTriplets(60, 5)
	b := NewBPR(BPRConfig{Factors: 4, Epochs: 3})
	if _, err := b.Train(context.Background(), triplets, users, items); err != nil {
		t.Fatal(err)
	}

	var s recommend.Searcher = b
	top, err := s.Search(context.Background(), recommend.UserQuery("user_3"), items, 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	full, _ := b.Predict(context.Background(), "user_3", items)
	assertScoresClose(t, top, full[:3], 0)

	_, err = s.Search(context.Background(), recommend.FeatureQuery([]float64{1}), items, 3)
	if !errors.Is(err, recommend.ErrUnsupportedQuery) || !strings.Contains(err.Error(), "features") {
		t.Errorf("Search(features) error = %v, want ErrUnsupportedQuery", err)
	}
}
