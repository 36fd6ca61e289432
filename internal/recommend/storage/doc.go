// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

// Package storage persists trained recommendation models as versioned,
// hash-verified artifacts.
//
// # Artifact Format
//
// An artifact is one JSON document (optionally gzip-compressed):
//
//	{
//	  "format_version": 1,
//	  "model_type": "bpr",
//	  "model_name": "bpr",
//	  "config": {...},
//	  "arrays": [{"name": "user_factors", "dtype": "float64", "shape": [5, 8], "data": [...]}],
//	  "id_maps": {"users": [...], "items": [...]},
//	  "loss_history": [...],
//	  "trained_at": "2026-01-02T15:04:05Z"
//	}
//
// The SHA-256 of the uncompressed JSON bytes is the artifact hash. It is
// written next to the artifact as {path}.sha256 and checked on every read;
// an artifact whose bytes no longer match is refused with
// ErrChecksumMismatch.
//
// # Versioned Store
//
// Store lays artifacts out as {name}_v{version}.json.gz in one directory,
// tracks the latest version per model name, and prunes old versions.
//
// Writes go to a temporary file in the same directory followed by a rename,
// so a reader never observes a half-written artifact.
package storage
