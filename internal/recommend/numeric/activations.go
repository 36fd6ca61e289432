// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package numeric

import "math"

// geluCoeff is sqrt(2/pi) for the tanh approximation of GELU.
const geluCoeff = 0.7978845608028654

// MaskedScore is the value written into attention scores that must not
// receive probability mass.
const MaskedScore = -1e9

// Sigmoid is the logistic function. It branches on the sign of x so that
// exp never sees a large positive argument.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	z := math.Exp(x)
	return z / (1 + z)
}

// LogSigmoid returns log(Sigmoid(x)) without underflowing to -Inf for
// large negative x.
func LogSigmoid(x float64) float64 {
	if x >= 0 {
		return -math.Log1p(math.Exp(-x))
	}
	return x - math.Log1p(math.Exp(x))
}

// ClipSigmoid is Sigmoid clamped to [eps, 1-eps].
func ClipSigmoid(x, eps float64) float64 {
	return Clip(Sigmoid(x), eps, 1-eps)
}

// Clip clamps x to [lo, hi].
func Clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Softmax writes softmax(x) into dst and returns it. dst may alias x and is
// allocated when nil.
func Softmax(dst, x []float64) []float64 {
	dst = ensure(dst, len(x))
	if len(x) == 0 {
		return dst
	}
	maxV := Max(x)
	var sum float64
	for i, v := range x {
		e := math.Exp(v - maxV)
		dst[i] = e
		sum += e
	}
	for i := range dst {
		dst[i] /= sum
	}
	return dst
}

// LogSoftmax writes log(softmax(x)) into dst and returns it.
func LogSoftmax(dst, x []float64) []float64 {
	dst = ensure(dst, len(x))
	if len(x) == 0 {
		return dst
	}
	lse := LogSumExp(x)
	for i, v := range x {
		dst[i] = v - lse
	}
	return dst
}

// LogSumExp returns log(sum(exp(x))) computed around the max element.
func LogSumExp(x []float64) float64 {
	maxV := Max(x)
	var sum float64
	for _, v := range x {
		sum += math.Exp(v - maxV)
	}
	return maxV + math.Log(sum)
}

// ReLU returns max(0, x).
func ReLU(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// ReLUGrad is the derivative of ReLU, taking 0 at x == 0.
func ReLUGrad(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

// GELU uses the tanh approximation.
func GELU(x float64) float64 {
	return 0.5 * x * (1 + math.Tanh(geluCoeff*(x+0.044715*x*x*x)))
}

func ensure(dst []float64, n int) []float64 {
	if len(dst) < n {
		return make([]float64, n)
	}
	return dst[:n]
}
