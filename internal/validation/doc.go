// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

// Package validation provides struct validation using go-playground/validator v10.
//
// The package wraps a thread-safe singleton validator with the custom tags
// this module relies on and translates field errors into short messages.
//
// # Custom Tags
//
//   - model_type: one of bpr, two_tower, sasrec, dlrm
//   - sha256hex: a lowercase 64-character hex digest
//   - divisible_by=Field: an int field divisible by the named sibling field
//
// # Usage
//
//	type Entry struct {
//	    ModelName    string `validate:"required,max=128"`
//	    ArtifactHash string `validate:"required,sha256hex"`
//	}
//
//	if verr := validation.ValidateStruct(&entry); verr != nil {
//	    return fmt.Errorf("invalid registry entry: %w", verr)
//	}
package validation
