// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package recommend

import "errors"

var (
	// ErrModelNotTrained is returned by scoring calls made before Train or Load.
	ErrModelNotTrained = errors.New("model not trained")

	// ErrDimensionMismatch is returned when a vector's width differs from
	// the configured width.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidTriplet is returned when a training triplet names an id
	// outside the supplied user or item lists.
	ErrInvalidTriplet = errors.New("invalid training triplet")

	// ErrInvalidExample is returned for malformed training rows other than
	// triplets, such as a label outside [0, 1].
	ErrInvalidExample = errors.New("invalid training example")

	// ErrEmptyTrainingSet is returned when a training run has no usable
	// input at all.
	ErrEmptyTrainingSet = errors.New("empty training set")

	// ErrUnsupportedQuery is returned by a Searcher that cannot serve the
	// query kind.
	ErrUnsupportedQuery = errors.New("unsupported query kind")

	// ErrTrainingInProgress is returned when a second training run is
	// requested while one is active.
	ErrTrainingInProgress = errors.New("training already in progress")
)
