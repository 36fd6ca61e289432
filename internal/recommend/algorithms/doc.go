// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

// Package algorithms implements Wayfarer's recommendation models.
//
// Every forward pass, loss and gradient is written out by hand over
// float64 slices and numeric.Matrix buffers; there is no tensor or
// autodiff layer.
//
// # Models
//
//   - BPR: latent factors trained on (user, positive, negative) triplets
//     with per-example SGD on -log sigmoid(x_uij).
//   - TwoTower: Linear+ReLU user and item towers trained on positive pairs
//     with an in-batch softmax over U·Iᵀ/temperature.
//   - SASRec: item and positional embeddings fed through pre-norm causal
//     self-attention blocks, trained on next-item prediction.
//   - DLRM: a shared bottom MLP embeds each engagement feature, pairwise
//     dot products plus a context vector feed a top MLP ending in a
//     clipped sigmoid.
//
// # Lifecycle
//
// Each model follows the same pattern:
//
//	m := algorithms.NewBPR(algorithms.DefaultBPRConfig())
//	metrics, err := m.Train(ctx, triplets, userIDs, itemIDs)
//	ranked, err := m.Predict(ctx, "user_0", candidates)
//	hash, err := m.Save("bpr.json.gz")
//	loaded, err := algorithms.LoadBPR("bpr.json.gz")
//
// # Thread Safety
//
// Trained parameters live behind an atomic pointer. Predict loads the
// pointer once and reads without locking; Train and Restore build a fresh
// parameter set and swap it in. Concurrent Train calls on one model are
// serialized.
//
// # Randomness
//
// All initialization and shuffling draws from a *rand.Rand seeded from the
// model config, passed explicitly down the call chain.
package algorithms
