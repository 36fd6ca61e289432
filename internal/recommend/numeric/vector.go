// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package numeric

import "math"

// DefaultLayerNormEps is added to the variance before the square root.
const DefaultLayerNormEps = 1e-6

// Dot returns the inner product of a and b over min(len(a), len(b)).
func Dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += a[i] * b[i]
	}
	return s
}

// Axpy computes dst += alpha * x.
func Axpy(dst []float64, alpha float64, x []float64) {
	for i := range dst {
		dst[i] += alpha * x[i]
	}
}

// Scale multiplies every element of x by alpha in place.
func Scale(x []float64, alpha float64) {
	for i := range x {
		x[i] *= alpha
	}
}

// Mean returns 0 for an empty slice.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var s float64
	for _, v := range x {
		s += v
	}
	return s / float64(len(x))
}

// Max returns -Inf for an empty slice.
func Max(x []float64) float64 {
	m := math.Inf(-1)
	for _, v := range x {
		if v > m {
			m = v
		}
	}
	return m
}

// Zero sets every element to 0.
func Zero(x []float64) {
	for i := range x {
		x[i] = 0
	}
}

// IsZero reports whether every element is exactly 0.
func IsZero(x []float64) bool {
	for _, v := range x {
		if v != 0 {
			return false
		}
	}
	return true
}

// LayerNorm normalizes x to zero mean and unit variance, then applies
// gamma and beta. It returns the mean and inverse standard deviation used.
func LayerNorm(dst, x, gamma, beta []float64, eps float64) (mean, invStd float64) {
	dst = ensure(dst, len(x))
	mean = Mean(x)
	var variance float64
	for _, v := range x {
		d := v - mean
		variance += d * d
	}
	if len(x) > 0 {
		variance /= float64(len(x))
	}
	invStd = 1 / math.Sqrt(variance+eps)
	for i, v := range x {
		dst[i] = (v-mean)*invStd*gamma[i] + beta[i]
	}
	return mean, invStd
}
