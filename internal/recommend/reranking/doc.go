// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

// Package reranking implements post-processing passes over a scored list.
//
// Rerankers run after the final scoring stage and reorder the list to
// balance relevance against other objectives:
//
//	retrieval -> sequential rerank -> DLRM score -> MMR -> top K
//
// # MMR Algorithm
//
// Maximal Marginal Relevance iteratively selects items that are both
// relevant and dissimilar to already-selected items:
//
//	MMR = argmax[lambda * score(i) - (1-lambda) * max_similarity(i, selected)]
//
// Where:
//   - lambda: balance parameter (1.0 = pure relevance, 0.0 = pure diversity)
//   - score(i): original relevance score for item i
//   - max_similarity: maximum similarity to any selected item
//
// Similarity is supplied by the caller. The pipeline uses cosine similarity
// between Two-Tower item embeddings; items without an embedding are
// treated as dissimilar to everything.
//
// # Thread Safety
//
// MMR holds no mutable state and is safe for concurrent use.
package reranking
