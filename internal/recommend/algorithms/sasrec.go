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

// SASRecConfig contains configuration for the self-attentive re-ranker.
type SASRecConfig struct {
	// MaxLen is the attention window. Longer histories keep their most
	// recent MaxLen items.
	// Default: 50.
	MaxLen int `json:"max_len" koanf:"max_len"`

	// Dim is the embedding width. It must be divisible by Heads.
	// Default: 32.
	Dim int `json:"dim" koanf:"dim"`

	// Heads is the number of attention heads per block.
	// Default: 2.
	Heads int `json:"heads" koanf:"heads"`

	// Layers is the number of transformer blocks.
	// Default: 2.
	Layers int `json:"layers" koanf:"layers"`

	// FFNDim is the hidden width of the position-wise feed-forward layer.
	// Default: 2 * Dim.
	FFNDim int `json:"ffn_dim" koanf:"ffn_dim"`

	// EmbedInitStd initializes item and positional embeddings.
	// Default: 0.1.
	EmbedInitStd float64 `json:"embed_init_std" koanf:"embed_init_std"`

	// WeightInitStd initializes attention and feed-forward weights.
	// Default: 0.02.
	WeightInitStd float64 `json:"weight_init_std" koanf:"weight_init_std"`

	// LearningRate is the SGD step size for the embedding tables.
	// Default: 0.05.
	LearningRate float64 `json:"learning_rate" koanf:"learning_rate"`

	// Epochs is the number of passes over the sequences.
	// Default: 20.
	Epochs int `json:"epochs" koanf:"epochs"`

	// Seed drives initialization and shuffling.
	// Default: 42.
	Seed int64 `json:"seed" koanf:"seed"`
}

// DefaultSASRecConfig returns default SASRec configuration.
func DefaultSASRecConfig() SASRecConfig {
	return SASRecConfig{
		MaxLen:        50,
		Dim:           32,
		Heads:         2,
		Layers:        2,
		FFNDim:        64,
		EmbedInitStd:  0.1,
		WeightInitStd: 0.02,
		LearningRate:  0.05,
		Epochs:        20,
		Seed:          42,
	}
}

func (c SASRecConfig) withDefaults() SASRecConfig {
	d := DefaultSASRecConfig()
	if c.MaxLen <= 0 {
		c.MaxLen = d.MaxLen
	}
	if c.Dim <= 0 {
		c.Dim = d.Dim
	}
	if c.Heads <= 0 {
		c.Heads = d.Heads
	}
	if c.Layers <= 0 {
		c.Layers = d.Layers
	}
	if c.FFNDim <= 0 {
		c.FFNDim = 2 * c.Dim
	}
	if c.EmbedInitStd <= 0 {
		c.EmbedInitStd = d.EmbedInitStd
	}
	if c.WeightInitStd <= 0 {
		c.WeightInitStd = d.WeightInitStd
	}
	if c.LearningRate <= 0 {
		c.LearningRate = d.LearningRate
	}
	if c.Epochs <= 0 {
		c.Epochs = d.Epochs
	}
	if c.Seed == 0 {
		c.Seed = d.Seed
	}
	return c
}

// Validate reports a head count that does not divide the embedding width.
func (c SASRecConfig) Validate() error {
	if c.Heads <= 0 || c.Dim%c.Heads != 0 {
		return fmt.Errorf("%w: sasrec dim %d is not divisible by %d heads", recommend.ErrDimensionMismatch, c.Dim, c.Heads)
	}
	return nil
}

// minTrainLen is the shortest sequence that carries a next-item target.
const minTrainLen = 2

// attentionLayer is one pre-norm transformer block.
type attentionLayer struct {
	Wq, Wk, Wv, Wo *numeric.Matrix
	W1, W2         *numeric.Matrix

	LN1Gamma, LN1Beta []float64
	LN2Gamma, LN2Beta []float64
}

func newAttentionLayer(rng *rand.Rand, cfg SASRecConfig) attentionLayer {
	d, f, std := cfg.Dim, cfg.FFNDim, cfg.WeightInitStd
	ones := func() []float64 {
		v := make([]float64, d)
		for i := range v {
			v[i] = 1
		}
		return v
	}
	return attentionLayer{
		Wq:       numeric.NewGaussianMatrix(rng, d, d, std),
		Wk:       numeric.NewGaussianMatrix(rng, d, d, std),
		Wv:       numeric.NewGaussianMatrix(rng, d, d, std),
		Wo:       numeric.NewGaussianMatrix(rng, d, d, std),
		W1:       numeric.NewGaussianMatrix(rng, d, f, std),
		W2:       numeric.NewGaussianMatrix(rng, f, d, std),
		LN1Gamma: ones(),
		LN1Beta:  make([]float64, d),
		LN2Gamma: ones(),
		LN2Beta:  make([]float64, d),
	}
}

// CausalMask returns the n x n attention mask: query i may attend to key
// j only when j <= i and both positions are valid. A nil valid slice marks
// every position valid.
func CausalMask(n int, valid []bool) [][]bool {
	ok := func(i int) bool { return valid == nil || valid[i] }
	mask := make([][]bool, n)
	for i := range mask {
		mask[i] = make([]bool, n)
		if !ok(i) {
			continue
		}
		for j := 0; j <= i; j++ {
			mask[i][j] = ok(j)
		}
	}
	return mask
}

// apply runs the block over x in place:
// x += MHA(LN1(x)); x += FFN(LN2(x)); padding rows forced to zero.
func (ly *attentionLayer) apply(x *numeric.Matrix, valid []bool, mask [][]bool, heads int) {
	n, d := x.Rows, x.Cols
	dh := d / heads
	scale := 1 / math.Sqrt(float64(dh))

	normed := numeric.NewMatrix(n, d)
	q := numeric.NewMatrix(n, d)
	k := numeric.NewMatrix(n, d)
	v := numeric.NewMatrix(n, d)
	for t := 0; t < n; t++ {
		if !valid[t] {
			continue
		}
		numeric.LayerNorm(normed.Row(t), x.Row(t), ly.LN1Gamma, ly.LN1Beta, numeric.DefaultLayerNormEps)
		ly.Wq.MulVec(q.Row(t), normed.Row(t))
		ly.Wk.MulVec(k.Row(t), normed.Row(t))
		ly.Wv.MulVec(v.Row(t), normed.Row(t))
	}

	scores := make([]float64, n)
	attended := make([]float64, d)
	proj := make([]float64, d)
	for i := 0; i < n; i++ {
		if !valid[i] {
			continue
		}
		numeric.Zero(attended)
		for h := 0; h < heads; h++ {
			lo, hi := h*dh, (h+1)*dh
			qi := q.Row(i)[lo:hi]
			for j := 0; j < n; j++ {
				if mask[i][j] {
					scores[j] = numeric.Dot(qi, k.Row(j)[lo:hi]) * scale
				} else {
					scores[j] = numeric.MaskedScore
				}
			}
			numeric.Softmax(scores, scores)
			out := attended[lo:hi]
			for j := 0; j < n; j++ {
				if scores[j] != 0 {
					numeric.Axpy(out, scores[j], v.Row(j)[lo:hi])
				}
			}
		}
		ly.Wo.MulVec(proj, attended)
		numeric.Axpy(x.Row(i), 1, proj)
	}

	normed2 := make([]float64, d)
	hidden := make([]float64, ly.W1.Cols)
	out := make([]float64, d)
	for t := 0; t < n; t++ {
		if !valid[t] {
			numeric.Zero(x.Row(t))
			continue
		}
		numeric.LayerNorm(normed2, x.Row(t), ly.LN2Gamma, ly.LN2Beta, numeric.DefaultLayerNormEps)
		ly.W1.MulVec(hidden, normed2)
		for u := range hidden {
			hidden[u] = numeric.GELU(hidden[u])
		}
		ly.W2.MulVec(out, hidden)
		numeric.Axpy(x.Row(t), 1, out)
	}
}

type sasrecState struct {
	config SASRecConfig

	// items is padded: position 0 is the all-zero padding row.
	items   *recommend.IDIndex
	itemEmb *numeric.Matrix
	posEmb  *numeric.Matrix
	layers  []attentionLayer

	lossHistory []float64
	trainedAt   time.Time
}

// forward runs the full stack over a left-padded window of item positions
// (0 = padding) and returns one output row per slot.
func (st *sasrecState) forward(window []int) *numeric.Matrix {
	n, d := len(window), st.config.Dim
	x := numeric.NewMatrix(n, d)
	valid := make([]bool, n)
	for t, item := range window {
		if item == recommend.PaddingIndex {
			continue
		}
		valid[t] = true
		row := x.Row(t)
		copy(row, st.itemEmb.Row(item))
		numeric.Axpy(row, 1, st.posEmb.Row(t))
	}
	mask := CausalMask(n, valid)
	for l := range st.layers {
		st.layers[l].apply(x, valid, mask, st.config.Heads)
	}
	return x
}

// window maps history to a left-padded slice of MaxLen item positions,
// dropping unknown items and keeping the most recent ones.
func (st *sasrecState) window(history []string) ([]int, int) {
	known := make([]int, 0, len(history))
	for _, id := range history {
		if i, ok := st.items.Lookup(id); ok {
			known = append(known, i)
		}
	}
	if len(known) > st.config.MaxLen {
		known = known[len(known)-st.config.MaxLen:]
	}
	w := make([]int, st.config.MaxLen)
	copy(w[st.config.MaxLen-len(known):], known)
	return w, len(known)
}

// SASRec is a self-attentive sequential re-ranker.
// Reference: "Self-Attentive Sequential Recommendation" (Kang, McAuley, 2018)
//
// Training optimizes next-item cross-entropy but only updates the item
// and positional embeddings. The gradient at each output position is passed
// straight through the residual stream to the embeddings of that position;
// attention, feed-forward and layer-norm parameters keep their seeded
// initial values.
type SASRec struct {
	baseModel
	config SASRecConfig
	state  atomic.Pointer[sasrecState]
}

// NewSASRec creates an untrained re-ranker.
func NewSASRec(cfg SASRecConfig) *SASRec {
	return &SASRec{
		baseModel: newBaseModel("", recommend.ModelTypeSASRec),
		config:    cfg.withDefaults(),
	}
}

// Config returns the effective configuration.
func (m *SASRec) Config() SASRecConfig {
	if st := m.state.Load(); st != nil {
		return st.config
	}
	return m.config
}

// ConfigSnapshot implements Model.
func (m *SASRec) ConfigSnapshot() any {
	return m.Config()
}

// IsTrained implements Model.
func (m *SASRec) IsTrained() bool {
	return m.state.Load() != nil
}

// Dim is the width of Encode's output.
func (m *SASRec) Dim() int {
	return m.Config().Dim
}

// Train fits the embedding tables on chronological item sequences.
// Unknown items are dropped from a sequence; sequences left with fewer
// than two items carry no target and are skipped.
//
//nolint:gocyclo // the per-position backward pass is inherently nested
func (m *SASRec) Train(ctx context.Context, sequences [][]string, itemIDs []string) (recommend.TrainMetrics, error) {
	m.trainMu.Lock()
	defer m.trainMu.Unlock()

	start := time.Now()
	metrics := recommend.TrainMetrics{Model: m.modelType}
	if ContextCancelled(ctx) {
		return metrics, ctx.Err()
	}
	cfg := m.config
	if err := cfg.Validate(); err != nil {
		return metrics, err
	}

	items := recommend.NewIDIndex(itemIDs, true)
	rng := newRNG(cfg.Seed)
	st := &sasrecState{
		config:  cfg,
		items:   items,
		itemEmb: numeric.NewGaussianMatrix(rng, items.Len(), cfg.Dim, cfg.EmbedInitStd),
		posEmb:  numeric.NewGaussianMatrix(rng, cfg.MaxLen, cfg.Dim, cfg.EmbedInitStd),
		layers:  make([]attentionLayer, cfg.Layers),
	}
	numeric.Zero(st.itemEmb.Row(recommend.PaddingIndex))
	for l := range st.layers {
		st.layers[l] = newAttentionLayer(rng, cfg)
	}

	seqs := make([][]int, 0, len(sequences))
	for _, raw := range sequences {
		seq := make([]int, 0, len(raw))
		for _, id := range raw {
			if i, ok := items.Lookup(id); ok {
				seq = append(seq, i)
			}
		}
		if len(seq) >= minTrainLen {
			seqs = append(seqs, seq)
		}
	}
	metrics.Examples = len(seqs)
	if len(seqs) == 0 || items.Len() < 2 {
		metrics.StopEarly(fmt.Sprintf("no sequences with at least %d known items", minTrainLen))
	}

	trainer := newSASRecTrainer(st)
	for epoch := 0; epoch < cfg.Epochs && metrics.Examples > 0 && !metrics.StoppedEarly; epoch++ {
		if ContextCancelled(ctx) {
			return metrics, fmt.Errorf("sasrec training stopped at epoch %d: %w", epoch, ctx.Err())
		}
		rng.Shuffle(len(seqs), func(a, b int) { seqs[a], seqs[b] = seqs[b], seqs[a] })

		var total float64
		positions := 0
		for _, seq := range seqs {
			loss, n := trainer.step(seq)
			total += loss
			positions += n
		}
		metrics.AppendLoss(meanLoss(total, positions))
	}

	st.lossHistory = metrics.LossHistory
	st.trainedAt = time.Now().UTC()
	m.state.Store(st)
	m.markTrained(st.trainedAt)

	metrics.Duration = time.Since(start)
	return metrics, nil
}

// sasrecTrainer holds gradient buffers for one training run.
type sasrecTrainer struct {
	st      *sasrecState
	gradE   *numeric.Matrix
	gradP   *numeric.Matrix
	touched []int
	logits  []float64
	gradH   []float64
}

func newSASRecTrainer(st *sasrecState) *sasrecTrainer {
	return &sasrecTrainer{
		st:     st,
		gradE:  numeric.NewMatrix(st.itemEmb.Rows, st.itemEmb.Cols),
		gradP:  numeric.NewMatrix(st.posEmb.Rows, st.posEmb.Cols),
		logits: make([]float64, st.itemEmb.Rows-1),
		gradH:  make([]float64, st.config.Dim),
	}
}

// step trains on one sequence and returns its summed loss and the number
// of target positions.
func (tr *sasrecTrainer) step(seq []int) (float64, int) {
	st := tr.st
	maxLen := st.config.MaxLen

	// Inputs seq[:-1] predict targets seq[1:], aligned to the right edge.
	m := len(seq) - 1
	if m > maxLen {
		m = maxLen
	}
	inputs := make([]int, maxLen)
	targets := make([]int, maxLen)
	copy(inputs[maxLen-m:], seq[len(seq)-1-m:len(seq)-1])
	copy(targets[maxLen-m:], seq[len(seq)-m:])

	loss := tr.accumulate(inputs, targets)

	lr := st.config.LearningRate / float64(m)
	for k := 1; k < st.itemEmb.Rows; k++ {
		numeric.Axpy(st.itemEmb.Row(k), -lr, tr.gradE.Row(k))
	}
	for t := maxLen - m; t < maxLen; t++ {
		numeric.Axpy(st.posEmb.Row(t), -lr, tr.gradP.Row(t))
	}
	return loss, m
}

// accumulate runs the forward pass and fills gradE and gradP with the
// summed next-item cross-entropy gradients. It returns the summed loss.
func (tr *sasrecTrainer) accumulate(inputs, targets []int) float64 {
	st := tr.st
	numeric.Zero(tr.gradE.Data)
	numeric.Zero(tr.gradP.Data)

	h := st.forward(inputs)
	var loss float64
	for t, target := range targets {
		if target == recommend.PaddingIndex {
			continue
		}
		ht := h.Row(t)
		// Logits cover real items only; index k-1 holds item k.
		for k := 1; k < st.itemEmb.Rows; k++ {
			tr.logits[k-1] = numeric.Dot(ht, st.itemEmb.Row(k))
		}
		numeric.LogSoftmax(tr.logits, tr.logits)
		loss -= tr.logits[target-1]
		for k := range tr.logits {
			tr.logits[k] = math.Exp(tr.logits[k])
		}
		tr.logits[target-1]--

		numeric.Zero(tr.gradH)
		for k := 1; k < st.itemEmb.Rows; k++ {
			g := tr.logits[k-1]
			if g == 0 {
				continue
			}
			numeric.Axpy(tr.gradE.Row(k), g, ht)
			numeric.Axpy(tr.gradH, g, st.itemEmb.Row(k))
		}
		numeric.Axpy(tr.gradE.Row(inputs[t]), 1, tr.gradH)
		numeric.Axpy(tr.gradP.Row(t), 1, tr.gradH)
	}
	numeric.Zero(tr.gradE.Row(recommend.PaddingIndex))
	return loss
}

// Encode returns the output vector at the most recent position of
// history, or nil when no item of history is known.
func (m *SASRec) Encode(history []string) []float64 {
	st := m.state.Load()
	if st == nil {
		return nil
	}
	return st.encode(history)
}

func (st *sasrecState) encode(history []string) []float64 {
	w, n := st.window(history)
	if n == 0 {
		return nil
	}
	h := st.forward(w)
	return append([]float64(nil), h.Row(len(w)-1)...)
}

// Predict re-ranks candidates for a user with the given chronological
// history. An empty or entirely unknown history scores every candidate 0,
// as does any unknown candidate.
func (m *SASRec) Predict(_ context.Context, history, candidates []string) ([]recommend.ScoredItem, error) {
	st := m.state.Load()
	if st == nil {
		return nil, recommend.ErrModelNotTrained
	}
	h := st.encode(history)
	if h == nil {
		return recommend.ZeroScores(candidates), nil
	}
	return rankCandidates(candidates, func(id string) float64 {
		i, ok := st.items.Lookup(id)
		if !ok {
			return 0
		}
		return numeric.Dot(h, st.itemEmb.Row(i))
	}), nil
}

// Artifact implements Model.
func (m *SASRec) Artifact() (*storage.Artifact, error) {
	st := m.state.Load()
	if st == nil {
		return nil, recommend.ErrModelNotTrained
	}
	a, err := storage.NewArtifact(m.modelType, m.name, st.config, st.trainedAt)
	if err != nil {
		return nil, err
	}
	a.PutMatrix("item_emb", st.itemEmb)
	a.PutMatrix("pos_emb", st.posEmb)
	for l := range st.layers {
		ly := &st.layers[l]
		p := fmt.Sprintf("layers.%d.", l)
		a.PutMatrix(p+"wq", ly.Wq)
		a.PutMatrix(p+"wk", ly.Wk)
		a.PutMatrix(p+"wv", ly.Wv)
		a.PutMatrix(p+"wo", ly.Wo)
		a.PutMatrix(p+"w1", ly.W1)
		a.PutMatrix(p+"w2", ly.W2)
		a.PutVector(p+"ln1_gamma", ly.LN1Gamma)
		a.PutVector(p+"ln1_beta", ly.LN1Beta)
		a.PutVector(p+"ln2_gamma", ly.LN2Gamma)
		a.PutVector(p+"ln2_beta", ly.LN2Beta)
	}
	a.IDMaps["items"] = st.items.IDs()
	a.LossHistory = append([]float64(nil), st.lossHistory...)
	return a, nil
}

// Save implements Model.
func (m *SASRec) Save(path string) (string, error) {
	a, err := m.Artifact()
	if err != nil {
		return "", err
	}
	return storage.WriteArtifact(path, a)
}

// Restore implements Model.
//
//nolint:gocyclo // one shape check per array
func (m *SASRec) Restore(a *storage.Artifact) error {
	if err := a.ExpectType(recommend.ModelTypeSASRec); err != nil {
		return err
	}
	var cfg SASRecConfig
	if err := a.DecodeConfig(&cfg); err != nil {
		return err
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrArtifactCorrupt, err) //nolint:errorlint // sentinel carries the class
	}

	st := &sasrecState{
		config:      cfg,
		items:       recommend.NewIDIndex(a.IDMaps["items"], true),
		layers:      make([]attentionLayer, cfg.Layers),
		lossHistory: append([]float64(nil), a.LossHistory...),
		trainedAt:   a.TrainedAt,
	}
	d, f := cfg.Dim, cfg.FFNDim
	var err error
	if st.itemEmb, err = loadShaped(a, "item_emb", st.items.Len(), d); err != nil {
		return err
	}
	if !numeric.IsZero(st.itemEmb.Row(recommend.PaddingIndex)) {
		return fmt.Errorf("%w: sasrec padding embedding is not zero", storage.ErrArtifactCorrupt)
	}
	if st.posEmb, err = loadShaped(a, "pos_emb", cfg.MaxLen, d); err != nil {
		return err
	}
	for l := range st.layers {
		ly := &st.layers[l]
		p := fmt.Sprintf("layers.%d.", l)
		mats := []struct {
			dst        **numeric.Matrix
			name       string
			rows, cols int
		}{
			{&ly.Wq, "wq", d, d}, {&ly.Wk, "wk", d, d}, {&ly.Wv, "wv", d, d}, {&ly.Wo, "wo", d, d},
			{&ly.W1, "w1", d, f}, {&ly.W2, "w2", f, d},
		}
		for _, mm := range mats {
			if *mm.dst, err = loadShaped(a, p+mm.name, mm.rows, mm.cols); err != nil {
				return err
			}
		}
		vecs := []struct {
			dst  *[]float64
			name string
		}{
			{&ly.LN1Gamma, "ln1_gamma"}, {&ly.LN1Beta, "ln1_beta"},
			{&ly.LN2Gamma, "ln2_gamma"}, {&ly.LN2Beta, "ln2_beta"},
		}
		for _, vv := range vecs {
			if *vv.dst, err = a.Vector(p + vv.name); err != nil {
				return err
			}
			if len(*vv.dst) != d {
				return fmt.Errorf("%w: %s%s has length %d, want %d", storage.ErrArtifactCorrupt, p, vv.name, len(*vv.dst), d)
			}
		}
	}

	m.trainMu.Lock()
	defer m.trainMu.Unlock()
	m.config = cfg
	m.state.Store(st)
	m.markTrained(a.TrainedAt)
	return nil
}

func loadShaped(a *storage.Artifact, name string, rows, cols int) (*numeric.Matrix, error) {
	mat, err := a.Matrix(name)
	if err != nil {
		return nil, err
	}
	if mat.Rows != rows || mat.Cols != cols {
		return nil, fmt.Errorf("%w: %s has shape %v, want [%d %d]", storage.ErrArtifactCorrupt, name, mat.Shape(), rows, cols)
	}
	return mat, nil
}

// LoadSASRec reads and verifies the artifact at path.
func LoadSASRec(path string) (*SASRec, error) {
	a, _, err := storage.ReadArtifact(path)
	if err != nil {
		return nil, fmt.Errorf("load sasrec: %w", err)
	}
	m := NewSASRec(SASRecConfig{})
	if err := m.Restore(a); err != nil {
		return nil, fmt.Errorf("load sasrec: %w", err)
	}
	return m, nil
}
