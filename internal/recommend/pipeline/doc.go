// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

// Package pipeline wires the four recommendation models into one serving
// and training engine.
//
// A request flows through up to four stages:
//
//	Two-Tower or BPR retrieval (RetrievalK)
//	  -> SASRec sequential rerank (RerankK, when a history is known)
//	  -> DLRM final score (candidates with engagement features)
//	  -> MMR diversity (when Diversity.MMRLambda < 1)
//
// Responses are cached in an expirable LRU keyed by a hash of the request.
// Every model swap, from Train or LoadLatest, purges the cache.
//
// Train runs the models in dependency order and publishes each artifact
// through a registry.Publisher. Only one training run may be active.
package pipeline
