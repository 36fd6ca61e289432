// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package numeric

import (
	"math"
	"math/rand"
	"testing"
)

func TestLayerNorm(t *testing.T) {
	t.Parallel()

	x := []float64{1, 2, 3, 4}
	gamma := []float64{1, 1, 1, 1}
	beta := []float64{0, 0, 0, 0}
	dst := make([]float64, 4)
	mean, invStd := LayerNorm(dst, x, gamma, beta, DefaultLayerNormEps)
	if mean != 2.5 {
		t.Errorf("mean = %v, want 2.5", mean)
	}
	if invStd <= 0 {
		t.Errorf("invStd = %v, want > 0", invStd)
	}
	if m := Mean(dst); math.Abs(m) > 1e-12 {
		t.Errorf("normalized mean = %v, want 0", m)
	}
	var variance float64
	for _, v := range dst {
		variance += v * v
	}
	variance /= 4
	if math.Abs(variance-1) > 1e-5 {
		t.Errorf("normalized variance = %v, want 1", variance)
	}
}

func TestMatrixMulVec(t *testing.T) {
	t.Parallel()

	// W is 2x3: x·W with x = [1, 2]
	w, err := MatrixFromData(2, 3, []float64{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("MatrixFromData: %v", err)
	}
	got := w.MulVec(nil, []float64{1, 2})
	want := []float64{9, 12, 15}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("MulVec[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	back := w.MulVecT(nil, []float64{1, 0, 1})
	wantBack := []float64{4, 10}
	for i := range wantBack {
		if back[i] != wantBack[i] {
			t.Errorf("MulVecT[%d] = %v, want %v", i, back[i], wantBack[i])
		}
	}
}

func TestMatrixAddOuter(t *testing.T) {
	t.Parallel()

	m := NewMatrix(2, 2)
	m.AddOuter(0.5, []float64{1, 2}, []float64{3, 4})
	want := []float64{1.5, 2, 3, 4}
	for i := range want {
		if m.Data[i] != want[i] {
			t.Errorf("Data[%d] = %v, want %v", i, m.Data[i], want[i])
		}
	}
}

func TestMatrixFromDataRejectsBadShape(t *testing.T) {
	t.Parallel()

	if _, err := MatrixFromData(2, 2, []float64{1, 2, 3}); err == nil {
		t.Error("expected error for mismatched data length")
	}
}

func TestGaussianMatrixDeterministic(t *testing.T) {
	t.Parallel()

	a := NewGaussianMatrix(rand.New(rand.NewSource(7)), 4, 5, 0.1) //nolint:gosec // test data
	b := NewGaussianMatrix(rand.New(rand.NewSource(7)), 4, 5, 0.1) //nolint:gosec // test data
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("same seed produced different matrices at %d", i)
		}
	}
	c := a.Clone()
	c.Data[0] = 99
	if a.Data[0] == 99 {
		t.Error("Clone should not alias the source buffer")
	}
	if row := a.Row(1); len(row) != 5 || row[0] != a.At(1, 0) {
		t.Error("Row view mismatch")
	}
}
