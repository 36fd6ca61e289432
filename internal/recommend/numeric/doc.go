// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

// Package numeric holds the dense float64 kernels shared by the
// recommendation models: stable sigmoid and softmax, ReLU and its
// derivative, GELU, layer normalization, and a contiguous row-major Matrix.
//
// Everything here is pure. Functions that need randomness take an explicit
// *rand.Rand so that training is reproducible from a seed.
package numeric
