// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

// Package recommend holds the types shared by Wayfarer's recommendation
// models and the pipeline that chains them.
//
// # Model Suite
//
// Four models are implemented in package algorithms, each with hand-written
// forward passes and gradients over plain float64 slices:
//
//   - BPR: pairwise matrix factorization on (user, positive, negative) triplets
//   - TwoTower: dual encoder trained with in-batch softmax negatives
//   - SASRec: causal self-attention over a user's item history
//   - DLRM: pairwise feature-embedding interactions behind a trust gate
//
// # Scoring Contract
//
// Every model returns []ScoredItem sorted by score, highest first, ties
// kept in candidate order. Identifiers the model has never seen score
// exactly 0; they are not errors. Calling a model before it has been
// trained or loaded returns ErrModelNotTrained.
//
// # Thread Safety
//
// Models publish their parameters through an atomic pointer. Prediction
// never takes a lock, and training or loading replaces the whole parameter
// set in one swap, so readers see either the old or the new model.
package recommend
