// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package numeric

import (
	"math"
	"testing"
)

func TestSigmoidStable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		x    float64
		want float64
	}{
		{0, 0.5},
		{1000, 1},
		{-1000, 0},
		{2, 1 / (1 + math.Exp(-2))},
		{-2, 1 / (1 + math.Exp(2))},
	}
	for _, tt := range tests {
		got := Sigmoid(tt.x)
		if math.IsNaN(got) || math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Sigmoid(%v) = %v, want %v", tt.x, got, tt.want)
		}
	}
}

func TestLogSigmoid(t *testing.T) {
	t.Parallel()

	for _, x := range []float64{-5, -0.5, 0, 0.5, 5} {
		want := math.Log(Sigmoid(x))
		if got := LogSigmoid(x); math.Abs(got-want) > 1e-12 {
			t.Errorf("LogSigmoid(%v) = %v, want %v", x, got, want)
		}
	}
	if got := LogSigmoid(-800); math.IsInf(got, 0) || math.Abs(got+800) > 1e-9 {
		t.Errorf("LogSigmoid(-800) = %v, want about -800", got)
	}
}

func TestClipSigmoid(t *testing.T) {
	t.Parallel()

	if got := ClipSigmoid(100, 1e-7); got != 1-1e-7 {
		t.Errorf("ClipSigmoid(100) = %v, want %v", got, 1-1e-7)
	}
	if got := ClipSigmoid(-100, 1e-7); got != 1e-7 {
		t.Errorf("ClipSigmoid(-100) = %v, want %v", got, 1e-7)
	}
}

func TestSoftmaxLargeInputs(t *testing.T) {
	t.Parallel()

	x := []float64{1000, 1001, 1002}
	p := Softmax(nil, x)
	var sum float64
	for _, v := range p {
		if math.IsNaN(v) {
			t.Fatalf("Softmax produced NaN: %v", p)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("sum(Softmax) = %v, want 1", sum)
	}
	if !(p[2] > p[1] && p[1] > p[0]) {
		t.Errorf("Softmax should preserve order, got %v", p)
	}

	lp := LogSoftmax(nil, x)
	for i := range x {
		if math.Abs(lp[i]-math.Log(p[i])) > 1e-12 {
			t.Errorf("LogSoftmax[%d] = %v, want %v", i, lp[i], math.Log(p[i]))
		}
	}
}

func TestSoftmaxMaskedEntriesGetNoMass(t *testing.T) {
	t.Parallel()

	p := Softmax(nil, []float64{0.3, MaskedScore, 0.1})
	if p[1] != 0 {
		t.Errorf("masked probability = %v, want 0", p[1])
	}
}

func TestReLU(t *testing.T) {
	t.Parallel()

	if ReLU(-1) != 0 || ReLU(2) != 2 {
		t.Error("ReLU mismatch")
	}
	if ReLUGrad(0) != 0 || ReLUGrad(0.1) != 1 {
		t.Error("ReLUGrad mismatch")
	}
}

func TestGELU(t *testing.T) {
	t.Parallel()

	tests := []struct {
		x, want float64
	}{
		{0, 0},
		{1, 0.8411919906082768},
		{-1, -0.15880800939172324},
		{3, 2.996362607918227},
	}
	for _, tt := range tests {
		if got := GELU(tt.x); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("GELU(%v) = %v, want %v", tt.x, got, tt.want)
		}
	}
}
