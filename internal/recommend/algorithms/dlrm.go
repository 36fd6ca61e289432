// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package algorithms

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/tomtom215/wayfarer/internal/recommend"
	"github.com/tomtom215/wayfarer/internal/recommend/numeric"
	"github.com/tomtom215/wayfarer/internal/recommend/storage"
)

// NumFeatures is the width of the engagement feature schema.
const NumFeatures = 5

// NumInteractions is C(NumFeatures, 2).
const NumInteractions = NumFeatures * (NumFeatures - 1) / 2

// FeatureNames fixes the order of CandidateFeatures.Vector.
var FeatureNames = [NumFeatures]string{
	"quality_score",
	"impression_count",
	"acceptance_count",
	"taste_divergence",
	"group_divergence",
}

// CandidateFeatures are the scalar engagement signals of one candidate.
type CandidateFeatures struct {
	QualityScore    float64 `json:"quality_score"`
	ImpressionCount float64 `json:"impression_count"`
	AcceptanceCount float64 `json:"acceptance_count"`
	TasteDivergence float64 `json:"taste_divergence"`
	GroupDivergence float64 `json:"group_divergence"`
}

// Vector returns the features in FeatureNames order. Counts are log1p
// compressed.
func (f CandidateFeatures) Vector() []float64 {
	return []float64{
		f.QualityScore,
		math.Log1p(math.Max(f.ImpressionCount, 0)),
		math.Log1p(math.Max(f.AcceptanceCount, 0)),
		f.TasteDivergence,
		f.GroupDivergence,
	}
}

// Candidate pairs an item id with its engagement features.
type Candidate struct {
	ItemID   string
	Features CandidateFeatures
}

// LabeledExample is one DLRM training row. A nil Context trains as the
// zero vector.
type LabeledExample struct {
	Features CandidateFeatures
	Context  []float64
	Label    float64
}

// DLRMConfig contains configuration for the feature-interaction head.
type DLRMConfig struct {
	// BottomHidden is the hidden width of the shared bottom MLP.
	// Default: 16.
	BottomHidden int `json:"bottom_hidden" koanf:"bottom_hidden"`

	// EmbeddingDim is the per-feature embedding width.
	// Default: 8.
	EmbeddingDim int `json:"embedding_dim" koanf:"embedding_dim"`

	// ContextDim is the width of the upstream context vector.
	// Default: 32.
	ContextDim int `json:"context_dim" koanf:"context_dim"`

	// TopHidden is the hidden width of the top MLP.
	// Default: 32.
	TopHidden int `json:"top_hidden" koanf:"top_hidden"`

	// LearningRate is the SGD step size.
	// Default: 0.01.
	LearningRate float64 `json:"learning_rate" koanf:"learning_rate"`

	// Reg is the L2 penalty on weights.
	// Default: 1e-5.
	Reg float64 `json:"reg" koanf:"reg"`

	// Epochs is used by Fit.
	// Default: 20.
	Epochs int `json:"epochs" koanf:"epochs"`

	// MinImpressions is the trust gate: candidates seen fewer times get
	// the mean of the context as their score.
	// Default: 5.
	MinImpressions int `json:"min_impressions" koanf:"min_impressions"`

	// ClipEps bounds the output sigmoid to [eps, 1-eps].
	// Default: 1e-7.
	ClipEps float64 `json:"clip_eps" koanf:"clip_eps"`

	// Seed drives initialization and shuffling.
	// Default: 42.
	Seed int64 `json:"seed" koanf:"seed"`
}

// DefaultDLRMConfig returns default DLRM configuration.
func DefaultDLRMConfig() DLRMConfig {
	return DLRMConfig{
		BottomHidden:   16,
		EmbeddingDim:   8,
		ContextDim:     32,
		TopHidden:      32,
		LearningRate:   0.01,
		Reg:            1e-5,
		Epochs:         20,
		MinImpressions: 5,
		ClipEps:        1e-7,
		Seed:           42,
	}
}

func (c DLRMConfig) withDefaults() DLRMConfig {
	d := DefaultDLRMConfig()
	if c.BottomHidden <= 0 {
		c.BottomHidden = d.BottomHidden
	}
	if c.EmbeddingDim <= 0 {
		c.EmbeddingDim = d.EmbeddingDim
	}
	if c.ContextDim <= 0 {
		c.ContextDim = d.ContextDim
	}
	if c.TopHidden <= 0 {
		c.TopHidden = d.TopHidden
	}
	if c.LearningRate <= 0 {
		c.LearningRate = d.LearningRate
	}
	if c.Reg <= 0 {
		c.Reg = d.Reg
	}
	if c.Epochs <= 0 {
		c.Epochs = d.Epochs
	}
	if c.MinImpressions <= 0 {
		c.MinImpressions = d.MinImpressions
	}
	if c.ClipEps <= 0 || c.ClipEps >= 0.5 {
		c.ClipEps = d.ClipEps
	}
	if c.Seed == 0 {
		c.Seed = d.Seed
	}
	return c
}

// dlrmState holds the four dense layers. The bottom pair is shared by every
// feature; the output layers of each MLP are linear.
type dlrmState struct {
	config DLRMConfig

	bottomHidden *tower // 1 x BottomHidden, ReLU
	bottomOut    *tower // BottomHidden x EmbeddingDim
	topHidden    *tower // (NumInteractions + ContextDim) x TopHidden, ReLU
	topOut       *tower // TopHidden x 1, clipped sigmoid

	lossHistory []float64
	trainedAt   time.Time
}

func newDLRMState(cfg DLRMConfig, rng *rand.Rand) *dlrmState {
	return &dlrmState{
		config:       cfg,
		bottomHidden: newTower(rng, 1, cfg.BottomHidden),
		bottomOut:    newTower(rng, cfg.BottomHidden, cfg.EmbeddingDim),
		topHidden:    newTower(rng, NumInteractions+cfg.ContextDim, cfg.TopHidden),
		topOut:       newTower(rng, cfg.TopHidden, 1),
	}
}

// dlrmPass caches the activations of one forward pass for backprop.
type dlrmPass struct {
	x      []float64
	bz, bh *numeric.Matrix // per-feature bottom pre-activation and activation
	emb    *numeric.Matrix // per-feature embeddings
	input  []float64       // interactions followed by context
	tz, th []float64
	logit  []float64
	p      float64
}

func newDLRMPass(cfg DLRMConfig) *dlrmPass {
	return &dlrmPass{
		bz:    numeric.NewMatrix(NumFeatures, cfg.BottomHidden),
		bh:    numeric.NewMatrix(NumFeatures, cfg.BottomHidden),
		emb:   numeric.NewMatrix(NumFeatures, cfg.EmbeddingDim),
		input: make([]float64, NumInteractions+cfg.ContextDim),
		tz:    make([]float64, cfg.TopHidden),
		th:    make([]float64, cfg.TopHidden),
		logit: make([]float64, 1),
	}
}

func (st *dlrmState) bottom(pass *dlrmPass, x []float64) {
	pass.x = x
	in := make([]float64, 1)
	for f := 0; f < NumFeatures; f++ {
		in[0] = x[f]
		st.bottomHidden.forward(pass.bz.Row(f), pass.bh.Row(f), in)
		st.bottomOut.linear(pass.emb.Row(f), pass.bh.Row(f))
	}
}

// forward runs the full head. A nil ctxVec is the zero context.
func (st *dlrmState) forward(pass *dlrmPass, x, ctxVec []float64) float64 {
	st.bottom(pass, x)
	interactionsInto(pass.input[:NumInteractions], pass.emb)
	tail := pass.input[NumInteractions:]
	if ctxVec == nil {
		numeric.Zero(tail)
	} else {
		copy(tail, ctxVec)
	}
	st.topHidden.forward(pass.tz, pass.th, pass.input)
	st.topOut.linear(pass.logit, pass.th)
	pass.p = numeric.ClipSigmoid(pass.logit[0], st.config.ClipEps)
	return pass.p
}

// ComputeInteractions returns the dot products of every embedding pair
// (i, j) with i < j, in row-major order.
func ComputeInteractions(emb [][]float64) []float64 {
	n := len(emb)
	out := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out = append(out, numeric.Dot(emb[i], emb[j]))
		}
	}
	return out
}

func interactionsInto(dst []float64, emb *numeric.Matrix) {
	k := 0
	for i := 0; i < emb.Rows; i++ {
		for j := i + 1; j < emb.Rows; j++ {
			dst[k] = numeric.Dot(emb.Row(i), emb.Row(j))
			k++
		}
	}
}

// bce is binary cross-entropy for an already clipped p.
func bce(p, y float64) float64 {
	return -(y*math.Log(p) + (1-y)*math.Log(1-p))
}

// DLRM is the feature-interaction scoring head.
// Reference: "Deep Learning Recommendation Model for Personalization and
// Recommendation Systems" (Naumov et al., 2019)
//
// Each engagement feature passes through a shared bottom MLP; all pairwise
// dot products of the resulting embeddings are concatenated with the
// context vector and fed to a top MLP ending in a clipped sigmoid.
type DLRM struct {
	baseModel
	config DLRMConfig
	state  atomic.Pointer[dlrmState]
}

// NewDLRM creates an untrained scoring head.
func NewDLRM(cfg DLRMConfig) *DLRM {
	return &DLRM{
		baseModel: newBaseModel("", recommend.ModelTypeDLRM),
		config:    cfg.withDefaults(),
	}
}

// Config returns the effective configuration.
func (m *DLRM) Config() DLRMConfig {
	if st := m.state.Load(); st != nil {
		return st.config
	}
	return m.config
}

// ConfigSnapshot implements Model.
func (m *DLRM) ConfigSnapshot() any {
	return m.Config()
}

// IsTrained implements Model.
func (m *DLRM) IsTrained() bool {
	return m.state.Load() != nil
}

// Fit trains for the configured number of epochs and reports metrics.
func (m *DLRM) Fit(ctx context.Context, examples []LabeledExample) (recommend.TrainMetrics, error) {
	return m.fit(ctx, examples, m.config.Epochs)
}

// Train trains for the given number of epochs (the configured count when
// epochs <= 0) and returns the per-epoch mean BCE.
func (m *DLRM) Train(ctx context.Context, examples []LabeledExample, epochs int) ([]float64, error) {
	if epochs <= 0 {
		epochs = m.config.Epochs
	}
	metrics, err := m.fit(ctx, examples, epochs)
	return metrics.LossHistory, err
}

func (m *DLRM) fit(ctx context.Context, examples []LabeledExample, epochs int) (recommend.TrainMetrics, error) {
	m.trainMu.Lock()
	defer m.trainMu.Unlock()

	start := time.Now()
	metrics := recommend.TrainMetrics{Model: m.modelType, Examples: len(examples)}
	if ContextCancelled(ctx) {
		return metrics, ctx.Err()
	}
	cfg := m.config

	rows := make([]dlrmExample, len(examples))
	for i, ex := range examples {
		if ex.Label < 0 || ex.Label > 1 || math.IsNaN(ex.Label) {
			return metrics, fmt.Errorf("%w: example %d has label %v outside [0, 1]", recommend.ErrInvalidExample, i, ex.Label)
		}
		if ex.Context != nil && len(ex.Context) != cfg.ContextDim {
			return metrics, fmt.Errorf("%w: example %d context has width %d, want %d",
				recommend.ErrDimensionMismatch, i, len(ex.Context), cfg.ContextDim)
		}
		rows[i] = dlrmExample{x: ex.Features.Vector(), ctx: ex.Context, y: ex.Label}
	}

	rng := newRNG(cfg.Seed)
	st := newDLRMState(cfg, rng)
	if len(rows) == 0 {
		metrics.StopEarly("no labeled examples")
	}

	tr := newDLRMTrainer(st)
	for epoch := 0; epoch < epochs && len(rows) > 0; epoch++ {
		if ContextCancelled(ctx) {
			return metrics, fmt.Errorf("dlrm training stopped at epoch %d: %w", epoch, ctx.Err())
		}
		rng.Shuffle(len(rows), func(a, b int) { rows[a], rows[b] = rows[b], rows[a] })

		var total float64
		for _, row := range rows {
			total += tr.backward(row)
			tr.apply()
		}
		metrics.AppendLoss(meanLoss(total, len(rows)))
	}

	st.lossHistory = metrics.LossHistory
	st.trainedAt = time.Now().UTC()
	m.state.Store(st)
	m.markTrained(st.trainedAt)

	metrics.Duration = time.Since(start)
	return metrics, nil
}

type dlrmExample struct {
	x   []float64
	ctx []float64
	y   float64
}

// dlrmTrainer holds the forward cache and gradient buffers of one run.
type dlrmTrainer struct {
	st   *dlrmState
	pass *dlrmPass

	gBottomHidden, gBottomOut, gTopHidden, gTopOut *tower

	dEmb   *numeric.Matrix
	dInput []float64
	dTop   []float64
	dBh    []float64
	dBz    []float64
	in     []float64
}

func zeroTower(like *tower) *tower {
	return &tower{W: numeric.NewMatrix(like.W.Rows, like.W.Cols), B: make([]float64, len(like.B))}
}

func newDLRMTrainer(st *dlrmState) *dlrmTrainer {
	cfg := st.config
	return &dlrmTrainer{
		st:            st,
		pass:          newDLRMPass(cfg),
		gBottomHidden: zeroTower(st.bottomHidden),
		gBottomOut:    zeroTower(st.bottomOut),
		gTopHidden:    zeroTower(st.topHidden),
		gTopOut:       zeroTower(st.topOut),
		dEmb:          numeric.NewMatrix(NumFeatures, cfg.EmbeddingDim),
		dInput:        make([]float64, NumInteractions+cfg.ContextDim),
		dTop:          make([]float64, cfg.TopHidden),
		dBh:           make([]float64, cfg.BottomHidden),
		dBz:           make([]float64, cfg.BottomHidden),
		in:            make([]float64, 1),
	}
}

// backward runs one example forward, fills the gradient towers in reverse
// layer order and returns the example's BCE.
func (tr *dlrmTrainer) backward(ex dlrmExample) float64 {
	st, pass := tr.st, tr.pass
	p := st.forward(pass, ex.x, ex.ctx)
	loss := bce(p, ex.y)

	for _, g := range []*tower{tr.gBottomHidden, tr.gBottomOut, tr.gTopHidden, tr.gTopOut} {
		numeric.Zero(g.W.Data)
		numeric.Zero(g.B)
	}

	// Output layer: dL/dlogit = p - y.
	dLogit := p - ex.y
	tr.gTopOut.W.AddOuter(dLogit, pass.th, []float64{1})
	tr.gTopOut.B[0] = dLogit

	// Top hidden layer, gated by the cached pre-activation.
	for k := range tr.dTop {
		tr.dTop[k] = dLogit * st.topOut.W.At(k, 0) * numeric.ReLUGrad(pass.tz[k])
	}
	tr.gTopHidden.W.AddOuter(1, pass.input, tr.dTop)
	numeric.Axpy(tr.gTopHidden.B, 1, tr.dTop)
	st.topHidden.W.MulVecT(tr.dInput, tr.dTop)

	// Interactions: d(e_i·e_j) spreads to both embeddings.
	numeric.Zero(tr.dEmb.Data)
	k := 0
	for i := 0; i < NumFeatures; i++ {
		for j := i + 1; j < NumFeatures; j++ {
			g := tr.dInput[k]
			numeric.Axpy(tr.dEmb.Row(i), g, pass.emb.Row(j))
			numeric.Axpy(tr.dEmb.Row(j), g, pass.emb.Row(i))
			k++
		}
	}

	// Shared bottom MLP: gradients accumulate over features.
	for f := 0; f < NumFeatures; f++ {
		dEmb := tr.dEmb.Row(f)
		tr.gBottomOut.W.AddOuter(1, pass.bh.Row(f), dEmb)
		numeric.Axpy(tr.gBottomOut.B, 1, dEmb)
		st.bottomOut.W.MulVecT(tr.dBh, dEmb)
		bz := pass.bz.Row(f)
		for u := range tr.dBz {
			tr.dBz[u] = tr.dBh[u] * numeric.ReLUGrad(bz[u])
		}
		tr.in[0] = pass.x[f]
		tr.gBottomHidden.W.AddOuter(1, tr.in, tr.dBz)
		numeric.Axpy(tr.gBottomHidden.B, 1, tr.dBz)
	}
	return loss
}

func (tr *dlrmTrainer) apply() {
	st := tr.st
	lr, reg := st.config.LearningRate, st.config.Reg
	pairs := [][2]*tower{
		{st.bottomHidden, tr.gBottomHidden},
		{st.bottomOut, tr.gBottomOut},
		{st.topHidden, tr.gTopHidden},
		{st.topOut, tr.gTopOut},
	}
	for _, p := range pairs {
		sgdStep(p[0].W.Data, p[1].W.Data, lr, reg)
		sgdStep(p[0].B, p[1].B, lr, 0)
	}
}

// BottomMLP returns the embedding of each feature in vec, which must be in
// FeatureNames order (see CandidateFeatures.Vector).
func (m *DLRM) BottomMLP(vec []float64) ([][]float64, error) {
	st := m.state.Load()
	if st == nil {
		return nil, recommend.ErrModelNotTrained
	}
	if len(vec) != NumFeatures {
		return nil, fmt.Errorf("%w: %d features, want %d", recommend.ErrDimensionMismatch, len(vec), NumFeatures)
	}
	pass := newDLRMPass(st.config)
	st.bottom(pass, vec)
	out := make([][]float64, NumFeatures)
	for f := range out {
		out[f] = append([]float64(nil), pass.emb.Row(f)...)
	}
	return out, nil
}

// TopMLP maps interactions and context to a probability in [eps, 1-eps].
func (m *DLRM) TopMLP(interactions, ctxVec []float64) (float64, error) {
	st := m.state.Load()
	if st == nil {
		return 0, recommend.ErrModelNotTrained
	}
	cfg := st.config
	if len(interactions) != NumInteractions || len(ctxVec) != cfg.ContextDim {
		return 0, fmt.Errorf("%w: got %d interactions and context %d, want %d and %d",
			recommend.ErrDimensionMismatch, len(interactions), len(ctxVec), NumInteractions, cfg.ContextDim)
	}
	pass := newDLRMPass(cfg)
	copy(pass.input, interactions)
	copy(pass.input[NumInteractions:], ctxVec)
	st.topHidden.forward(pass.tz, pass.th, pass.input)
	st.topOut.linear(pass.logit, pass.th)
	return numeric.ClipSigmoid(pass.logit[0], cfg.ClipEps), nil
}

// Gated reports whether features fall below the trust gate.
func (m *DLRM) Gated(f CandidateFeatures) bool {
	return f.ImpressionCount < float64(m.Config().MinImpressions)
}

// ScoreCandidates scores candidates against ctxVec, highest first.
// An empty context is a cold start and scores every candidate 0.
// Candidates below the trust gate score mean(ctxVec).
func (m *DLRM) ScoreCandidates(_ context.Context, ctxVec []float64, candidates []Candidate) ([]recommend.ScoredItem, error) {
	st := m.state.Load()
	if st == nil {
		return nil, recommend.ErrModelNotTrained
	}
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ItemID
	}
	if len(ctxVec) == 0 {
		return recommend.ZeroScores(ids), nil
	}
	cfg := st.config
	if len(ctxVec) != cfg.ContextDim {
		return nil, fmt.Errorf("%w: context has width %d, want %d", recommend.ErrDimensionMismatch, len(ctxVec), cfg.ContextDim)
	}

	fallback := numeric.Mean(ctxVec)
	minImpressions := float64(cfg.MinImpressions)
	pass := newDLRMPass(cfg)
	out := make([]recommend.ScoredItem, len(candidates))
	for i, c := range candidates {
		score := fallback
		if c.Features.ImpressionCount >= minImpressions {
			score = st.forward(pass, c.Features.Vector(), ctxVec)
		}
		out[i] = recommend.ScoredItem{ItemID: c.ItemID, Score: score}
	}
	recommend.SortByScore(out)
	return out, nil
}

// Artifact implements Model.
func (m *DLRM) Artifact() (*storage.Artifact, error) {
	st := m.state.Load()
	if st == nil {
		return nil, recommend.ErrModelNotTrained
	}
	a, err := storage.NewArtifact(m.modelType, m.name, st.config, st.trainedAt)
	if err != nil {
		return nil, err
	}
	for _, l := range st.layers() {
		a.PutMatrix(l.name+".w", l.t.W)
		a.PutVector(l.name+".b", l.t.B)
	}
	a.LossHistory = append([]float64(nil), st.lossHistory...)
	return a, nil
}

// namedLayer pairs a layer with its artifact array prefix.
type namedLayer struct {
	name string
	t    *tower
}

// layers lists the layers in forward order. Artifact arrays follow this
// order so identical parameters always encode to identical bytes.
func (st *dlrmState) layers() []namedLayer {
	return []namedLayer{
		{"bottom.hidden", st.bottomHidden},
		{"bottom.out", st.bottomOut},
		{"top.hidden", st.topHidden},
		{"top.out", st.topOut},
	}
}

// Save implements Model.
func (m *DLRM) Save(path string) (string, error) {
	a, err := m.Artifact()
	if err != nil {
		return "", err
	}
	return storage.WriteArtifact(path, a)
}

// Restore implements Model.
func (m *DLRM) Restore(a *storage.Artifact) error {
	if err := a.ExpectType(recommend.ModelTypeDLRM); err != nil {
		return err
	}
	var cfg DLRMConfig
	if err := a.DecodeConfig(&cfg); err != nil {
		return err
	}
	cfg = cfg.withDefaults()

	// Shapes come from a freshly initialized state with the same config.
	st := newDLRMState(cfg, newRNG(cfg.Seed))
	for _, l := range st.layers() {
		name, t := l.name, l.t
		w, err := loadShaped(a, name+".w", t.W.Rows, t.W.Cols)
		if err != nil {
			return err
		}
		b, err := a.Vector(name + ".b")
		if err != nil {
			return err
		}
		if len(b) != len(t.B) {
			return fmt.Errorf("%w: %s.b has length %d, want %d", storage.ErrArtifactCorrupt, name, len(b), len(t.B))
		}
		t.W, t.B = w, b
	}
	st.lossHistory = append([]float64(nil), a.LossHistory...)
	st.trainedAt = a.TrainedAt

	m.trainMu.Lock()
	defer m.trainMu.Unlock()
	m.config = cfg
	m.state.Store(st)
	m.markTrained(a.TrainedAt)
	return nil
}

// LoadDLRM reads and verifies the artifact at path.
func LoadDLRM(path string) (*DLRM, error) {
	a, _, err := storage.ReadArtifact(path)
	if err != nil {
		return nil, fmt.Errorf("load dlrm: %w", err)
	}
	m := NewDLRM(DLRMConfig{})
	if err := m.Restore(a); err != nil {
		return nil, fmt.Errorf("load dlrm: %w", err)
	}
	return m, nil
}
