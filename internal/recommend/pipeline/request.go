// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/wayfarer/internal/recommend"
	"github.com/tomtom215/wayfarer/internal/recommend/algorithms"
)

// Candidate is one item offered for ranking. Features are optional; a
// candidate without them skips DLRM scoring and keeps its rerank order
// below the scored candidates.
type Candidate struct {
	ItemID   string                        `json:"item_id" validate:"required"`
	Features *algorithms.CandidateFeatures `json:"features,omitempty"`
}

// Request is a recommendation request.
type Request struct {
	// RequestID correlates logs; generated when empty.
	RequestID string `json:"request_id,omitempty"`

	// UserID selects stored user state in BPR and Two-Tower.
	UserID string `json:"user_id,omitempty" validate:"required_without=Features"`

	// Features is a raw user feature vector for Two-Tower retrieval. When
	// set it takes precedence over UserID for retrieval.
	Features []float64 `json:"features,omitempty"`

	// History is the user's chronological interaction sequence.
	History []string `json:"history,omitempty"`

	// Candidates to rank. Empty means every item the retriever knows.
	Candidates []Candidate `json:"candidates,omitempty" validate:"dive"`

	// Exclude removes items from the candidate set.
	Exclude []string `json:"exclude,omitempty"`

	// K is the number of results. Zero means the configured default.
	K int `json:"k,omitempty" validate:"gte=0"`
}

// Response is the ranked result of a Request.
type Response struct {
	Items           []recommend.ScoredItem `json:"items"`
	TotalCandidates int                    `json:"total_candidates"`
	Metadata        ResponseMetadata       `json:"metadata"`
}

// ResponseMetadata describes how a Response was produced.
type ResponseMetadata struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id,omitempty"`

	// Stages lists the models that contributed, in pipeline order.
	Stages []string `json:"stages"`

	// ColdStart is set when no model had state for the user.
	ColdStart bool `json:"cold_start"`

	// Gated counts candidates scored by the trust-gate fallback.
	Gated int `json:"gated"`

	LatencyMS int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
}

// cacheKey hashes every field of req except RequestID.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func cacheKey(req Request) (string, error) {
	req.RequestID = ""
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// copyResponse returns a copy whose slices can be modified freely.
func copyResponse(resp *Response) *Response {
	out := *resp
	out.Items = append([]recommend.ScoredItem(nil), resp.Items...)
	out.Metadata.Stages = append([]string(nil), resp.Metadata.Stages...)
	return &out
}
