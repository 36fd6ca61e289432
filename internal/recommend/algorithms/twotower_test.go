// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package algorithms

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/tomtom215/wayfarer/internal/recommend"
)

// clusteredTowerData gives every user and item a noisy two-cluster
// feature vector and pairs each user with items from its own cluster.
func clusteredTowerData(nUsers, nItems, pairsPerUser int, seed int64) TwoTowerData {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // test data
	feat := func(c int) []float64 {
		return []float64{
			float64(1-c) + rng.NormFloat64()*0.1,
			float64(c) + rng.NormFloat64()*0.1,
			rng.NormFloat64() * 0.1,
			1,
		}
	}
	data := TwoTowerData{UserIDs: ids("user", nUsers), ItemIDs: ids("item", nItems)}
	for u := 0; u < nUsers; u++ {
		data.UserFeatures = append(data.UserFeatures, feat(u%2))
	}
	for i := 0; i < nItems; i++ {
		data.ItemFeatures = append(data.ItemFeatures, feat(i%2))
	}
	for u := 0; u < nUsers; u++ {
		for k := 0; k < pairsPerUser; k++ {
			i := 2*rng.Intn(nItems/2) + u%2
			data.Pairs = append(data.Pairs, PositivePair{UserID: data.UserIDs[u], ItemID: data.ItemIDs[i]})
		}
	}
	return data
}

func testTowerConfig() TwoTowerConfig {
	return TwoTowerConfig{EmbeddingDim: 8, Temperature: 0.5, BatchSize: 16, LearningRate: 0.05, Epochs: 30, Seed: 42}
}

func TestNewTwoTowerDefaults(t *testing.T) {
	t.Parallel()

	m := NewTwoTower(TwoTowerConfig{})
	want := DefaultTwoTowerConfig()
	if got := m.Config(); got != want {
		t.Errorf("Config() = %+v, want %+v", got, want)
	}
	if want.BatchSize != 64 {
		t.Errorf("default BatchSize = %d, want 64", want.BatchSize)
	}
}

func TestTwoTower_Converges(t *testing.T) {
	t.Parallel()

	data := clusteredTowerData(20, 20, 5, 1)
	m := NewTwoTower(testTowerConfig())
	metrics, err := m.Train(context.Background(), data)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if metrics.Examples != 100 || metrics.Epochs != 30 {
		t.Errorf("metrics = %+v", metrics)
	}
	assertConverges(t, metrics.LossHistory, 3)

	cfg := m.Config()
	if cfg.UserDim != 4 || cfg.ItemDim != 4 {
		t.Errorf("inferred dims = %d/%d, want 4/4", cfg.UserDim, cfg.ItemDim)
	}

	// user_0 is in cluster 0, so even items should lead.
	ranked, err := m.PredictForUser(context.Background(), "user_0", data.ItemIDs)
	if err != nil {
		t.Fatal(err)
	}
	assertSorted(t, ranked)
	even := 0
	for _, it := range ranked[:5] {
		var n int
		if _, err := fmt.Sscanf(it.ItemID, "item_%d", &n); err == nil && n%2 == 0 {
			even++
		}
	}
	if even < 3 {
		t.Errorf("top-5 for user_0 holds %d same-cluster items, want >= 3: %v", even, ranked[:5])
	}
}

func TestTwoTower_GradientMatchesFiniteDifference(t *testing.T) {
	t.Parallel()

	data := clusteredTowerData(6, 6, 2, 9)
	cfg := testTowerConfig()
	cfg.Epochs = 1
	cfg.UserDim, cfg.ItemDim = 4, 4
	cfg = cfg.withDefaults()

	m := NewTwoTower(cfg)
	if _, err := m.Train(context.Background(), data); err != nil {
		t.Fatal(err)
	}
	st := m.state.Load()
	batch := []ttPair{{0, 0}, {1, 1}, {2, 4}, {3, 3}}

	tr := newTwoTowerTrainer(st, cfg)
	tr.backward(batch)
	analytic := append([]float64(nil), tr.gWu.Data...)
	analyticItem := append([]float64(nil), tr.gWi.Data...)

	const h = 1e-6
	check := func(w []float64, grad []float64, label string) {
		for _, k := range []int{0, 3, 9, len(w) - 1} {
			orig := w[k]
			w[k] = orig + h
			plus := newTwoTowerTrainer(st, cfg).backward(batch)
			w[k] = orig - h
			minus := newTwoTowerTrainer(st, cfg).backward(batch)
			w[k] = orig
			num := (plus - minus) / (2 * h)
			if math.Abs(num-grad[k]) > 1e-5*math.Max(1, math.Abs(num)) {
				t.Errorf("%s grad[%d] = %.8f, finite difference %.8f", label, k, grad[k], num)
			}
		}
	}
	check(st.userTower.W.Data, analytic, "user W")
	check(st.itemTower.W.Data, analyticItem, "item W")
}

func TestTwoTower_DimensionMismatch(t *testing.T) {
	t.Parallel()

	data := clusteredTowerData(4, 4, 2, 1)
	m := NewTwoTower(testTowerConfig())
	if _, err := m.Train(context.Background(), data); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Predict(context.Background(), []float64{1, 2}, data.ItemIDs); !errors.Is(err, recommend.ErrDimensionMismatch) {
		t.Errorf("Predict() error = %v, want ErrDimensionMismatch", err)
	}

	bad := clusteredTowerData(4, 4, 2, 1)
	bad.UserFeatures[2] = []float64{1, 2, 3}
	if _, err := NewTwoTower(testTowerConfig()).Train(context.Background(), bad); !errors.Is(err, recommend.ErrDimensionMismatch) {
		t.Errorf("Train(ragged) error = %v, want ErrDimensionMismatch", err)
	}

	fixed := testTowerConfig()
	fixed.UserDim = 7
	if _, err := NewTwoTower(fixed).Train(context.Background(), data); !errors.Is(err, recommend.ErrDimensionMismatch) {
		t.Errorf("Train(configured width) error = %v, want ErrDimensionMismatch", err)
	}
}

func TestTwoTower_ColdStartAndNotTrained(t *testing.T) {
	t.Parallel()

	m := NewTwoTower(testTowerConfig())
	if _, err := m.Predict(context.Background(), []float64{1, 0, 0, 1}, []string{"item_0"}); !errors.Is(err, recommend.ErrModelNotTrained) {
		t.Errorf("Predict() before train error = %v", err)
	}

	data := clusteredTowerData(4, 4, 2, 1)
	if _, err := m.Train(context.Background(), data); err != nil {
		t.Fatal(err)
	}
	ranked, err := m.PredictForUser(context.Background(), "ghost", data.ItemIDs)
	if err != nil {
		t.Fatal(err)
	}
	assertAllZero(t, ranked, len(data.ItemIDs))

	ranked, err = m.Predict(context.Background(), data.UserFeatures[0], []string{"unknown_a", "unknown_b"})
	if err != nil {
		t.Fatal(err)
	}
	assertAllZero(t, ranked, 2)
}

func TestTwoTower_InvalidPair(t *testing.T) {
	t.Parallel()

	data := clusteredTowerData(4, 4, 1, 1)
	data.Pairs = append(data.Pairs, PositivePair{UserID: "user_0", ItemID: "nope"})
	if _, err := NewTwoTower(testTowerConfig()).Train(context.Background(), data); !errors.Is(err, recommend.ErrInvalidExample) {
		t.Errorf("Train() error = %v, want ErrInvalidExample", err)
	}
}

func TestTwoTower_NoPairsStopsEarly(t *testing.T) {
	t.Parallel()

	data := clusteredTowerData(4, 4, 0, 1)
	m := NewTwoTower(testTowerConfig())
	metrics, err := m.Train(context.Background(), data)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if !metrics.StoppedEarly || !m.IsTrained() {
		t.Errorf("StoppedEarly = %v, IsTrained = %v", metrics.StoppedEarly, m.IsTrained())
	}
}

func TestTwoTower_SearchAndRoundTrip(t *testing.T) {
	t.Parallel()

	data := clusteredTowerData(10, 10, 3, 4)
	cfg := testTowerConfig()
	cfg.Epochs = 5
	m := NewTwoTower(cfg)
	if _, err := m.Train(context.Background(), data); err != nil {
		t.Fatal(err)
	}

	var s recommend.Searcher = m
	query := recommend.FeatureQuery(data.UserFeatures[1])
	top, err := s.Search(context.Background(), query, data.ItemIDs, 4)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	full, _ := m.Predict(context.Background(), data.UserFeatures[1], data.ItemIDs)
	if len(top) != 4 {
		t.Fatalf("len(Search) = %d, want 4", len(top))
	}
	assertScoresClose(t, top, full[:4], 0)

	path := filepath.Join(t.TempDir(), "two_tower.json.gz")
	if _, err := m.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := LoadTwoTower(path)
	if err != nil {
		t.Fatalf("LoadTwoTower() error = %v", err)
	}
	got, err := loaded.Search(context.Background(), query, data.ItemIDs, 0)
	if err != nil {
		t.Fatal(err)
	}
	assertScoresClose(t, got, full, 1e-10)

	byUser, _ := m.PredictForUser(context.Background(), "user_3", data.ItemIDs)
	loadedByUser, _ := loaded.PredictForUser(context.Background(), "user_3", data.ItemIDs)
	assertScoresClose(t, loadedByUser, byUser, 1e-10)
}
