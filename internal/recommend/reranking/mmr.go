// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package reranking

import (
	"context"
	"math"

	"github.com/tomtom215/wayfarer/internal/recommend"
	"github.com/tomtom215/wayfarer/internal/recommend/numeric"
)

// maxRerankSize limits slice allocations; k is also bounded by len(items).
const maxRerankSize = 10000

// Similarity returns the similarity of two items, typically in [0, 1].
type Similarity func(a, b string) float64

// EmbeddingLookup returns the embedding of an item, if known.
type EmbeddingLookup func(itemID string) ([]float64, bool)

// CosineSimilarity builds a Similarity over item embeddings. Embeddings are
// normalized once per item and cached for the lifetime of the returned
// function, which is therefore not safe for concurrent use.
func CosineSimilarity(lookup EmbeddingLookup) Similarity {
	cache := make(map[string][]float64)
	unit := func(id string) []float64 {
		if v, ok := cache[id]; ok {
			return v
		}
		v, ok := lookup(id)
		if ok {
			norm := math.Sqrt(numeric.Dot(v, v))
			if norm > 0 {
				v = append([]float64(nil), v...)
				numeric.Scale(v, 1/norm)
			} else {
				v = nil
			}
		}
		cache[id] = v
		return v
	}
	return func(a, b string) float64 {
		va, vb := unit(a), unit(b)
		if va == nil || vb == nil {
			return 0
		}
		return numeric.Dot(va, vb)
	}
}

// MMR implements Maximal Marginal Relevance reranking.
//
// Reference:
// Carbonell, J., & Goldstein, J. (1998). "The Use of MMR, Diversity-Based
// Reranking for Reordering Documents and Producing Summaries." SIGIR 1998.
type MMR struct {
	// lambda balances relevance vs. diversity (0.0 to 1.0)
	lambda float64
	sim    Similarity
}

// NewMMR creates a new MMR reranker. lambda is clamped to [0, 1].
func NewMMR(lambda float64, sim Similarity) *MMR {
	if lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}
	return &MMR{lambda: lambda, sim: sim}
}

// Name returns the reranker identifier.
func (m *MMR) Name() string {
	return "mmr"
}

// Rerank selects k items greedily by MMR score. The input must already be
// ordered by relevance; ties keep that order.
func (m *MMR) Rerank(ctx context.Context, items []recommend.ScoredItem, k int) []recommend.ScoredItem {
	if len(items) == 0 || k <= 0 {
		return items
	}
	if k > maxRerankSize {
		k = maxRerankSize
	}
	if k > len(items) {
		k = len(items)
	}

	// Pure relevance, or nothing to compare against.
	if m.lambda >= 1.0 || m.sim == nil {
		return items[:k]
	}

	similarities := m.buildSimilarityMatrix(items)

	selected := make([]recommend.ScoredItem, 0, k)
	chosen := make([]int, 0, k)
	taken := make([]bool, len(items))

	for len(selected) < k {
		if ctx.Err() != nil {
			break
		}
		bestIdx := -1
		bestMMR := math.Inf(-1)

		for i := range items {
			if taken[i] {
				continue
			}
			maxSim := 0.0
			for _, j := range chosen {
				if s := similarities[i][j]; s > maxSim {
					maxSim = s
				}
			}
			score := m.lambda*items[i].Score - (1-m.lambda)*maxSim
			if score > bestMMR {
				bestMMR = score
				bestIdx = i
			}
		}

		if bestIdx < 0 {
			break
		}
		selected = append(selected, items[bestIdx])
		chosen = append(chosen, bestIdx)
		taken[bestIdx] = true
	}

	return selected
}

// buildSimilarityMatrix computes pairwise similarity.
func (m *MMR) buildSimilarityMatrix(items []recommend.ScoredItem) [][]float64 {
	n := len(items)
	similarities := make([][]float64, n)
	for i := range similarities {
		similarities[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := m.sim(items[i].ItemID, items[j].ItemID)
			similarities[i][j] = s
			similarities[j][i] = s
		}
	}
	return similarities
}
