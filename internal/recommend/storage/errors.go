// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package storage

import "errors"

var (
	// ErrChecksumMismatch means the artifact bytes do not hash to the
	// recorded value.
	ErrChecksumMismatch = errors.New("artifact checksum mismatch")

	// ErrChecksumMissing means no .sha256 file sits next to the artifact.
	ErrChecksumMissing = errors.New("artifact checksum file missing")

	// ErrArtifactCorrupt means the artifact could not be decoded or its
	// arrays are inconsistent with their declared shapes.
	ErrArtifactCorrupt = errors.New("artifact corrupt")

	// ErrUnsupportedFormat means the artifact's format_version is unknown.
	ErrUnsupportedFormat = errors.New("unsupported artifact format version")

	// ErrModelTypeMismatch means a loader was handed another model's artifact.
	ErrModelTypeMismatch = errors.New("artifact model type mismatch")

	// ErrModelNotFound means the store holds no such model or version.
	ErrModelNotFound = errors.New("model not found")
)
