// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/tomtom215/wayfarer/internal/logging"
	"github.com/tomtom215/wayfarer/internal/metrics"
	"github.com/tomtom215/wayfarer/internal/recommend"
	"github.com/tomtom215/wayfarer/internal/recommend/algorithms"
	"github.com/tomtom215/wayfarer/internal/recommend/reranking"
	"github.com/tomtom215/wayfarer/internal/registry"
	"github.com/tomtom215/wayfarer/internal/validation"
)

// ErrNoStore is returned by LoadLatest when the engine has no publisher.
var ErrNoStore = errors.New("no artifact store configured")

// ErrTooManyCandidates is returned when a request exceeds the candidate limit.
var ErrTooManyCandidates = errors.New("too many candidates")

const cacheName = "recommendations"

// Engine chains the four models into one recommendation pipeline:
// retrieval (Two-Tower or BPR), sequential reranking (SASRec), final
// scoring (DLRM) and an optional MMR diversity pass.
// It is safe for concurrent use; Recommend never blocks on training.
type Engine struct {
	config *Config
	logger zerolog.Logger

	bpr      *algorithms.BPR
	twoTower *algorithms.TwoTower
	sasrec   *algorithms.SASRec
	dlrm     *algorithms.DLRM

	// publisher is nil for an in-memory engine.
	publisher *registry.Publisher

	// trainMu is held for the whole of a training run.
	trainMu sync.Mutex

	statusMu sync.RWMutex
	status   recommend.TrainingStatus
	// served maps model name to the stored version currently live.
	served map[string]int

	cache *expirable.LRU[string, *Response]
}

// NewEngine creates an engine with untrained models. pub may be nil, in
// which case trained models are not persisted.
func NewEngine(cfg *Config, pub *registry.Publisher) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg = cfg.Clone()

	sasrec := algorithms.NewSASRec(cfg.SASRec)
	cfg.DLRM.ContextDim = sasrec.Dim()

	e := &Engine{
		config:    cfg,
		logger:    logging.WithComponent("pipeline"),
		bpr:       algorithms.NewBPR(cfg.BPR),
		twoTower:  algorithms.NewTwoTower(cfg.TwoTower),
		sasrec:    sasrec,
		dlrm:      algorithms.NewDLRM(cfg.DLRM),
		publisher: pub,
	}
	if cfg.Cache.Enabled {
		e.cache = expirable.NewLRU[string, *Response](cfg.Cache.MaxEntries, nil, cfg.Cache.TTL)
	}
	return e, nil
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() *Config {
	return e.config.Clone()
}

// BPR returns the collaborative ranker.
func (e *Engine) BPR() *algorithms.BPR { return e.bpr }

// TwoTower returns the feature-based retriever.
func (e *Engine) TwoTower() *algorithms.TwoTower { return e.twoTower }

// SASRec returns the sequential re-ranker.
func (e *Engine) SASRec() *algorithms.SASRec { return e.sasrec }

// DLRM returns the final scoring head.
func (e *Engine) DLRM() *algorithms.DLRM { return e.dlrm }

// models lists every model in training order.
func (e *Engine) models() []algorithms.Model {
	return []algorithms.Model{e.bpr, e.twoTower, e.sasrec, e.dlrm}
}

// Ready reports whether at least one retriever can serve requests.
func (e *Engine) Ready() bool {
	return e.bpr.IsTrained() || e.twoTower.IsTrained()
}

// Recommend ranks candidates for a user.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) Recommend(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if verr := validation.ValidateStruct(req); verr != nil {
		e.logger.Debug().Strs("fields", verr.Fields()).Msg("Rejected invalid request")
		return nil, fmt.Errorf("invalid request: %w", verr)
	}
	if len(req.Candidates) > e.config.Limits.MaxCandidates {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyCandidates, len(req.Candidates), e.config.Limits.MaxCandidates)
	}

	req = e.prepareRequest(req)
	logger := e.logger.With().
		Str("request_id", req.RequestID).
		Str("user_id", req.UserID).
		Logger()

	key, cacheable := "", e.cache != nil
	if cacheable {
		var err error
		if key, err = cacheKey(req); err != nil {
			cacheable = false
		} else if resp, ok := e.cache.Get(key); ok {
			metrics.RecordCacheLookup(cacheName, true)
			out := copyResponse(resp)
			out.Metadata.RequestID = req.RequestID
			out.Metadata.CacheHit = true
			out.Metadata.LatencyMS = time.Since(start).Milliseconds()
			logger.Debug().Msg("cache hit")
			return out, nil
		}
		metrics.RecordCacheLookup(cacheName, false)
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Limits.PredictionTimeout)
	defer cancel()

	resp, err := e.run(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.Metadata.LatencyMS = time.Since(start).Milliseconds()

	if cacheable {
		e.cache.Add(key, copyResponse(resp))
	}
	logger.Debug().
		Int("candidates", resp.TotalCandidates).
		Int("returned", len(resp.Items)).
		Strs("stages", resp.Metadata.Stages).
		Int64("latency_ms", resp.Metadata.LatencyMS).
		Msg("recommendation complete")
	return resp, nil
}

// prepareRequest applies defaults and generates a request ID if needed.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) prepareRequest(req Request) Request {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	if req.K == 0 {
		req.K = e.config.Limits.DefaultK
	}
	if req.K > e.config.Limits.MaxK {
		req.K = e.config.Limits.MaxK
	}
	return req
}

// run executes the stages on a prepared request.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) run(ctx context.Context, req Request) (*Response, error) {
	candidates := e.candidateSet(req)
	resp := &Response{
		TotalCandidates: len(candidates),
		Metadata: ResponseMetadata{
			RequestID: req.RequestID,
			UserID:    req.UserID,
			Stages:    []string{},
			Timestamp: time.Now().UTC(),
		},
	}
	if len(candidates) == 0 {
		resp.Items = []recommend.ScoredItem{}
		return resp, nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ItemID
	}

	items, stage, cold, err := e.retrieve(ctx, req, ids)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	resp.Metadata.ColdStart = cold
	if stage != "" {
		resp.Metadata.Stages = append(resp.Metadata.Stages, stage)
	}

	items, stage, err = e.rerank(ctx, req.History, items)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	if stage != "" {
		resp.Metadata.Stages = append(resp.Metadata.Stages, stage)
	}

	features := make(map[string]*algorithms.CandidateFeatures, len(candidates))
	for _, c := range candidates {
		if c.Features != nil {
			features[c.ItemID] = c.Features
		}
	}
	items, stage, gated, err := e.score(ctx, req.History, items, features)
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	resp.Metadata.Gated = gated
	if stage != "" {
		resp.Metadata.Stages = append(resp.Metadata.Stages, stage)
	}

	if e.config.Diversity.MMRLambda < 1 && e.twoTower.IsTrained() {
		mmr := reranking.NewMMR(e.config.Diversity.MMRLambda, reranking.CosineSimilarity(e.twoTower.ItemEmbedding))
		items = mmr.Rerank(ctx, items, req.K)
		resp.Metadata.Stages = append(resp.Metadata.Stages, mmr.Name())
	}

	resp.Items = recommend.TopK(items, req.K)
	return resp, nil
}

// candidateSet returns the request candidates, or the retriever vocabulary
// when none were supplied, minus exclusions and duplicates.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) candidateSet(req Request) []Candidate {
	candidates := req.Candidates
	if len(candidates) == 0 {
		var vocab []string
		if e.twoTower.IsTrained() {
			vocab = e.twoTower.Items()
		} else {
			vocab = e.bpr.Items()
		}
		candidates = make([]Candidate, len(vocab))
		for i, id := range vocab {
			candidates[i] = Candidate{ItemID: id}
		}
	}

	skip := make(map[string]struct{}, len(req.Exclude)+len(candidates))
	for _, id := range req.Exclude {
		skip[id] = struct{}{}
	}
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := skip[c.ItemID]; ok {
			continue
		}
		skip[c.ItemID] = struct{}{}
		out = append(out, c)
	}
	if len(out) > e.config.Limits.MaxCandidates {
		out = out[:e.config.Limits.MaxCandidates]
	}
	return out
}

// retrieve narrows ids to RetrievalK. Two-Tower serves feature queries and
// users with stored features; BPR serves everyone else. With no trained
// retriever the candidates pass through in input order.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) retrieve(ctx context.Context, req Request, ids []string) ([]recommend.ScoredItem, string, bool, error) {
	var (
		searcher recommend.Searcher
		query    recommend.Query
		stage    string
		cold     bool
	)
	switch {
	case len(req.Features) > 0 && e.twoTower.IsTrained():
		searcher, query, stage = e.twoTower, recommend.FeatureQuery(req.Features), recommend.ModelTypeTwoTower
	case e.twoTower.KnowsUser(req.UserID):
		searcher, query, stage = e.twoTower, recommend.UserQuery(req.UserID), recommend.ModelTypeTwoTower
	case e.bpr.IsTrained():
		searcher, query, stage = e.bpr, recommend.UserQuery(req.UserID), recommend.ModelTypeBPR
		cold = !e.bpr.KnowsUser(req.UserID)
	default:
		return recommend.TopK(recommend.ZeroScores(ids), e.config.Limits.RetrievalK), "", true, nil
	}

	start := time.Now()
	items, err := searcher.Search(ctx, query, ids, e.config.Limits.RetrievalK)
	metrics.RecordPrediction(stage, time.Since(start), cold)
	if err != nil {
		return nil, "", false, err
	}
	return items, stage, cold, nil
}

// rerank orders items by SASRec next-item score and keeps RerankK. Without
// a known history, or before SASRec is trained, the retrieval order is kept.
func (e *Engine) rerank(ctx context.Context, history []string, items []recommend.ScoredItem) ([]recommend.ScoredItem, string, error) {
	if len(history) == 0 || !e.sasrec.IsTrained() {
		return recommend.TopK(items, e.config.Limits.RerankK), "", nil
	}
	if e.sasrec.Encode(history) == nil {
		metrics.RecordPrediction(recommend.ModelTypeSASRec, 0, true)
		return recommend.TopK(items, e.config.Limits.RerankK), "", nil
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ItemID
	}
	start := time.Now()
	ranked, err := e.sasrec.Predict(ctx, history, ids)
	if err != nil {
		return nil, "", err
	}
	metrics.RecordPrediction(recommend.ModelTypeSASRec, time.Since(start), false)
	return recommend.TopK(ranked, e.config.Limits.RerankK), recommend.ModelTypeSASRec, nil
}

// score applies DLRM to the items that carry engagement features, using the
// SASRec encoding of history as context. Scored items come first, ordered
// by score; the rest follow in their incoming order. It returns the number
// of trust-gate fallbacks.
func (e *Engine) score(ctx context.Context, history []string, items []recommend.ScoredItem,
	features map[string]*algorithms.CandidateFeatures) ([]recommend.ScoredItem, string, int, error) {
	if len(features) == 0 || !e.dlrm.IsTrained() {
		return items, "", 0, nil
	}

	var (
		scorable []algorithms.Candidate
		rest     []recommend.ScoredItem
		gated    int
	)
	for _, it := range items {
		f, ok := features[it.ItemID]
		if !ok {
			rest = append(rest, it)
			continue
		}
		if e.dlrm.Gated(*f) {
			gated++
		}
		scorable = append(scorable, algorithms.Candidate{ItemID: it.ItemID, Features: *f})
	}
	if len(scorable) == 0 {
		return items, "", 0, nil
	}

	// Without a context DLRM scores everything 0; keep the rerank order.
	ctxVec := e.sasrec.Encode(history)
	if ctxVec == nil {
		metrics.RecordPrediction(recommend.ModelTypeDLRM, 0, true)
		return items, "", 0, nil
	}

	start := time.Now()
	scored, err := e.dlrm.ScoreCandidates(ctx, ctxVec, scorable)
	if err != nil {
		return nil, "", 0, err
	}
	metrics.RecordPrediction(recommend.ModelTypeDLRM, time.Since(start), false)
	metrics.RecordTrustGateFallbacks(gated)
	return append(scored, rest...), recommend.ModelTypeDLRM, gated, nil
}

// purgeCache drops every cached response. Called after each model swap.
func (e *Engine) purgeCache() {
	if e.cache != nil {
		e.cache.Purge()
	}
}
