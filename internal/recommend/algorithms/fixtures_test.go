// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package algorithms

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/tomtom215/wayfarer/internal/recommend"
)

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s_%d", prefix, i)
	}
	return out
}

// twoClusterTriplets builds the canonical BPR scenario: users 0-2 prefer
// items 0-4, users 3-4 prefer items 5-9.
func twoClusterTriplets(n int, seed int64) (triplets []Triplet, users, items []string) {
	users = ids("user", 5)
	items = ids("item", 10)
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // test data
	for k := 0; k < n; k++ {
		u := k % 5
		liked, other := 0, 5
		if u >= 3 {
			liked, other = 5, 0
		}
		triplets = append(triplets, Triplet{
			UserID:    users[u],
			PosItemID: items[liked+rng.Intn(5)],
			NegItemID: items[other+rng.Intn(5)],
		})
	}
	return triplets, users, items
}

func assertSorted(t *testing.T, items []recommend.ScoredItem) {
	t.Helper()
	for i := 1; i < len(items); i++ {
		if items[i].Score > items[i-1].Score {
			t.Fatalf("results not sorted at %d: %v > %v", i, items[i].Score, items[i-1].Score)
		}
	}
}

func assertAllZero(t *testing.T, items []recommend.ScoredItem, wantLen int) {
	t.Helper()
	if len(items) != wantLen {
		t.Fatalf("len = %d, want %d", len(items), wantLen)
	}
	for _, it := range items {
		if it.Score != 0 {
			t.Errorf("score for %s = %v, want 0", it.ItemID, it.Score)
		}
	}
}

func assertScoresClose(t *testing.T, got, want []recommend.ScoredItem, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ItemID != want[i].ItemID || math.Abs(got[i].Score-want[i].Score) > tol {
			t.Errorf("[%d] = %s %.15g, want %s %.15g", i, got[i].ItemID, got[i].Score, want[i].ItemID, want[i].Score)
		}
	}
}

// meanOf averages history[from:to].
func meanOf(history []float64, from, to int) float64 {
	var s float64
	for _, v := range history[from:to] {
		s += v
	}
	return s / float64(to-from)
}

func assertConverges(t *testing.T, history []float64, window int) {
	t.Helper()
	if len(history) < 2*window {
		t.Fatalf("loss history too short: %d epochs", len(history))
	}
	first := meanOf(history, 0, window)
	last := meanOf(history, len(history)-window, len(history))
	if !(last < first) {
		t.Errorf("loss did not decrease: first %d epochs %.6f, last %d epochs %.6f", window, first, window, last)
	}
	for i, v := range history {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("loss[%d] = %v", i, v)
		}
	}
}
