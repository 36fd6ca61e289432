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

// TwoTowerConfig contains configuration for the dual-encoder retriever.
type TwoTowerConfig struct {
	// UserDim and ItemDim are the tower input widths. Zero means "take the
	// width of the first training run"; once trained the width is fixed.
	UserDim int `json:"user_dim" koanf:"user_dim"`
	ItemDim int `json:"item_dim" koanf:"item_dim"`

	// EmbeddingDim is the shared output width of both towers.
	// Default: 32.
	EmbeddingDim int `json:"embedding_dim" koanf:"embedding_dim"`

	// Temperature divides the similarity matrix.
	// Default: 0.1.
	Temperature float64 `json:"temperature" koanf:"temperature"`

	// BatchSize is the number of positive pairs per in-batch softmax.
	// Default: 64.
	BatchSize int `json:"batch_size" koanf:"batch_size"`

	// LearningRate is the SGD step size.
	// Default: 0.05.
	LearningRate float64 `json:"learning_rate" koanf:"learning_rate"`

	// Reg is the L2 weight added to every weight gradient.
	// Default: 1e-4.
	Reg float64 `json:"reg" koanf:"reg"`

	// Epochs is the number of passes over the pairs.
	// Default: 20.
	Epochs int `json:"epochs" koanf:"epochs"`

	// Seed drives initialization and shuffling.
	// Default: 42.
	Seed int64 `json:"seed" koanf:"seed"`
}

// DefaultTwoTowerConfig returns default Two-Tower configuration.
func DefaultTwoTowerConfig() TwoTowerConfig {
	return TwoTowerConfig{
		EmbeddingDim: 32,
		Temperature:  0.1,
		BatchSize:    64,
		LearningRate: 0.05,
		Reg:          1e-4,
		Epochs:       20,
		Seed:         42,
	}
}

func (c TwoTowerConfig) withDefaults() TwoTowerConfig {
	d := DefaultTwoTowerConfig()
	if c.EmbeddingDim <= 0 {
		c.EmbeddingDim = d.EmbeddingDim
	}
	if c.Temperature <= 0 {
		c.Temperature = d.Temperature
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
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
	if c.Seed == 0 {
		c.Seed = d.Seed
	}
	if c.UserDim < 0 {
		c.UserDim = 0
	}
	if c.ItemDim < 0 {
		c.ItemDim = 0
	}
	return c
}

// PositivePair is one observed (user, item) interaction.
type PositivePair struct {
	UserID string `json:"user_id"`
	ItemID string `json:"item_id"`
}

// TwoTowerData is the input to TwoTower.Train. UserFeatures[i] belongs to
// UserIDs[i] and ItemFeatures[i] to ItemIDs[i].
type TwoTowerData struct {
	UserIDs      []string
	UserFeatures [][]float64
	ItemIDs      []string
	ItemFeatures [][]float64
	Pairs        []PositivePair
}

// tower is one Linear+ReLU projection: h = ReLU(x·W + b).
type tower struct {
	W *numeric.Matrix
	B []float64
}

// newTower uses He initialization for the ReLU that follows.
func newTower(rng *rand.Rand, in, out int) *tower {
	return &tower{
		W: numeric.NewGaussianMatrix(rng, in, out, math.Sqrt(2/float64(in))),
		B: make([]float64, out),
	}
}

// linear writes x·W + b into z.
func (t *tower) linear(z, x []float64) {
	t.W.MulVec(z, x)
	numeric.Axpy(z, 1, t.B)
}

// forward writes the pre-activation into z and the activation into h.
func (t *tower) forward(z, h, x []float64) {
	t.linear(z, x)
	for k := range z {
		h[k] = numeric.ReLU(z[k])
	}
}

func (t *tower) embed(x []float64) []float64 {
	z := make([]float64, t.W.Cols)
	h := make([]float64, t.W.Cols)
	t.forward(z, h, x)
	return h
}

type twoTowerState struct {
	config       TwoTowerConfig
	users        *recommend.IDIndex
	items        *recommend.IDIndex
	userFeatures *numeric.Matrix
	itemFeatures *numeric.Matrix
	userTower    *tower
	itemTower    *tower

	// itemEmb caches the item tower output for every known item.
	itemEmb *numeric.Matrix

	lossHistory []float64
	trainedAt   time.Time
}

// TwoTower is a dual-encoder retriever trained with in-batch negatives:
// within a batch of B positive pairs, every other item is a negative for
// each user, and the loss is the row-wise softmax cross-entropy of
// U·Iᵀ/temperature against the identity.
type TwoTower struct {
	baseModel
	config TwoTowerConfig
	state  atomic.Pointer[twoTowerState]
}

// NewTwoTower creates an untrained retriever.
func NewTwoTower(cfg TwoTowerConfig) *TwoTower {
	return &TwoTower{
		baseModel: newBaseModel("", recommend.ModelTypeTwoTower),
		config:    cfg.withDefaults(),
	}
}

// Config returns the effective configuration.
func (m *TwoTower) Config() TwoTowerConfig {
	if st := m.state.Load(); st != nil {
		return st.config
	}
	return m.config
}

// ConfigSnapshot implements Model.
func (m *TwoTower) ConfigSnapshot() any {
	return m.Config()
}

// IsTrained implements Model.
func (m *TwoTower) IsTrained() bool {
	return m.state.Load() != nil
}

// featureMatrix stacks rows in index order, checking every width.
func featureMatrix(kind string, idx *recommend.IDIndex, ids []string, rows [][]float64, dim int) (*numeric.Matrix, error) {
	if len(ids) != len(rows) {
		return nil, fmt.Errorf("%w: %d %s ids but %d feature rows", recommend.ErrInvalidExample, len(ids), kind, len(rows))
	}
	m := numeric.NewMatrix(idx.Len(), dim)
	seen := make(map[int]bool, len(ids))
	for n, id := range ids {
		if len(rows[n]) != dim {
			return nil, fmt.Errorf("%w: %s %q has %d features, tower expects %d",
				recommend.ErrDimensionMismatch, kind, id, len(rows[n]), dim)
		}
		pos, ok := idx.Lookup(id)
		if !ok || seen[pos] {
			continue
		}
		seen[pos] = true
		copy(m.Row(pos), rows[n])
	}
	return m, nil
}

func inferDim(configured int, rows [][]float64) int {
	if configured > 0 || len(rows) == 0 {
		return configured
	}
	return len(rows[0])
}

type ttPair struct{ u, i int }

// Train fits both towers on data.Pairs.
//
//nolint:gocyclo // validation plus the batch loop
func (m *TwoTower) Train(ctx context.Context, data TwoTowerData) (recommend.TrainMetrics, error) {
	m.trainMu.Lock()
	defer m.trainMu.Unlock()

	start := time.Now()
	metrics := recommend.TrainMetrics{Model: m.modelType}
	if ContextCancelled(ctx) {
		return metrics, ctx.Err()
	}

	cfg := m.config
	if prev := m.state.Load(); prev != nil {
		cfg.UserDim, cfg.ItemDim = prev.config.UserDim, prev.config.ItemDim
	}
	cfg.UserDim = inferDim(cfg.UserDim, data.UserFeatures)
	cfg.ItemDim = inferDim(cfg.ItemDim, data.ItemFeatures)
	if cfg.UserDim == 0 || cfg.ItemDim == 0 {
		return metrics, fmt.Errorf("%w: tower input widths unknown (user %d, item %d)",
			recommend.ErrDimensionMismatch, cfg.UserDim, cfg.ItemDim)
	}

	users := recommend.NewIDIndex(data.UserIDs, false)
	items := recommend.NewIDIndex(data.ItemIDs, false)
	uf, err := featureMatrix("user", users, data.UserIDs, data.UserFeatures, cfg.UserDim)
	if err != nil {
		return metrics, err
	}
	itf, err := featureMatrix("item", items, data.ItemIDs, data.ItemFeatures, cfg.ItemDim)
	if err != nil {
		return metrics, err
	}

	pairs := make([]ttPair, 0, len(data.Pairs))
	for n, p := range data.Pairs {
		u, okU := users.Lookup(p.UserID)
		i, okI := items.Lookup(p.ItemID)
		if !okU || !okI {
			return metrics, fmt.Errorf("%w: pair %d (%s, %s) references an unknown id",
				recommend.ErrInvalidExample, n, p.UserID, p.ItemID)
		}
		pairs = append(pairs, ttPair{u, i})
	}
	metrics.Examples = len(pairs)

	rng := newRNG(cfg.Seed)
	st := &twoTowerState{
		config:       cfg,
		users:        users,
		items:        items,
		userFeatures: uf,
		itemFeatures: itf,
		userTower:    newTower(rng, cfg.UserDim, cfg.EmbeddingDim),
		itemTower:    newTower(rng, cfg.ItemDim, cfg.EmbeddingDim),
	}

	if len(pairs) == 0 {
		metrics.StopEarly("no positive pairs")
	}

	trainer := newTwoTowerTrainer(st, cfg)
	for epoch := 0; epoch < cfg.Epochs && len(pairs) > 0; epoch++ {
		if ContextCancelled(ctx) {
			return metrics, fmt.Errorf("two-tower training stopped at epoch %d: %w", epoch, ctx.Err())
		}
		rng.Shuffle(len(pairs), func(a, b int) { pairs[a], pairs[b] = pairs[b], pairs[a] })

		var total float64
		batches := 0
		for lo := 0; lo < len(pairs); lo += cfg.BatchSize {
			hi := lo + cfg.BatchSize
			if hi > len(pairs) {
				hi = len(pairs)
			}
			total += trainer.step(pairs[lo:hi])
			batches++
		}
		metrics.AppendLoss(meanLoss(total, batches))
	}

	st.itemEmb = embedAll(st.itemTower, itf)
	st.lossHistory = metrics.LossHistory
	st.trainedAt = time.Now().UTC()
	m.state.Store(st)
	m.markTrained(st.trainedAt)

	metrics.Duration = time.Since(start)
	return metrics, nil
}

func embedAll(t *tower, features *numeric.Matrix) *numeric.Matrix {
	out := numeric.NewMatrix(features.Rows, t.W.Cols)
	z := make([]float64, t.W.Cols)
	for r := 0; r < features.Rows; r++ {
		t.forward(z, out.Row(r), features.Row(r))
	}
	return out
}

// twoTowerTrainer holds the scratch buffers for one training run.
type twoTowerTrainer struct {
	st  *twoTowerState
	cfg TwoTowerConfig

	zu, hu, zi, hi     *numeric.Matrix
	logits, probs      []float64
	dhu, dhi           *numeric.Matrix
	gWu, gWi           *numeric.Matrix
	gBu, gBi, dzu, dzi []float64
}

func newTwoTowerTrainer(st *twoTowerState, cfg TwoTowerConfig) *twoTowerTrainer {
	b, d := cfg.BatchSize, cfg.EmbeddingDim
	return &twoTowerTrainer{
		st:     st,
		cfg:    cfg,
		zu:     numeric.NewMatrix(b, d),
		hu:     numeric.NewMatrix(b, d),
		zi:     numeric.NewMatrix(b, d),
		hi:     numeric.NewMatrix(b, d),
		logits: make([]float64, b),
		probs:  make([]float64, b),
		dhu:    numeric.NewMatrix(b, d),
		dhi:    numeric.NewMatrix(b, d),
		gWu:    numeric.NewMatrix(cfg.UserDim, d),
		gWi:    numeric.NewMatrix(cfg.ItemDim, d),
		gBu:    make([]float64, d),
		gBi:    make([]float64, d),
		dzu:    make([]float64, d),
		dzi:    make([]float64, d),
	}
}

// step runs forward and backward over one batch, applies SGD, and returns
// the batch's mean cross-entropy.
func (t *twoTowerTrainer) step(batch []ttPair) float64 {
	loss := t.backward(batch)
	t.apply()
	return loss
}

// backward fills the weight gradients for batch and returns its loss.
func (t *twoTowerTrainer) backward(batch []ttPair) float64 {
	st, cfg := t.st, t.cfg
	n := len(batch)
	invTemp := 1 / cfg.Temperature

	for a, p := range batch {
		st.userTower.forward(t.zu.Row(a), t.hu.Row(a), st.userFeatures.Row(p.u))
		st.itemTower.forward(t.zi.Row(a), t.hi.Row(a), st.itemFeatures.Row(p.i))
		numeric.Zero(t.dhu.Row(a))
		numeric.Zero(t.dhi.Row(a))
	}

	// dS[a][b] = (softmax(S[a])[b] - [a == b]) / n, with S = U·Iᵀ/τ.
	var loss float64
	logits, probs := t.logits[:n], t.probs[:n]
	for a := 0; a < n; a++ {
		ua := t.hu.Row(a)
		for b := 0; b < n; b++ {
			logits[b] = numeric.Dot(ua, t.hi.Row(b)) * invTemp
		}
		numeric.LogSoftmax(probs, logits)
		loss -= probs[a]
		for b := range probs {
			probs[b] = math.Exp(probs[b])
		}
		probs[a]--
		for b := 0; b < n; b++ {
			g := probs[b] / float64(n) * invTemp
			if g == 0 {
				continue
			}
			numeric.Axpy(t.dhu.Row(a), g, t.hi.Row(b))
			numeric.Axpy(t.dhi.Row(b), g, ua)
		}
	}

	numeric.Zero(t.gWu.Data)
	numeric.Zero(t.gWi.Data)
	numeric.Zero(t.gBu)
	numeric.Zero(t.gBi)
	for a, p := range batch {
		zu, zi := t.zu.Row(a), t.zi.Row(a)
		du, di := t.dhu.Row(a), t.dhi.Row(a)
		for k := range t.dzu {
			t.dzu[k] = du[k] * numeric.ReLUGrad(zu[k])
			t.dzi[k] = di[k] * numeric.ReLUGrad(zi[k])
		}
		t.gWu.AddOuter(1, st.userFeatures.Row(p.u), t.dzu)
		t.gWi.AddOuter(1, st.itemFeatures.Row(p.i), t.dzi)
		numeric.Axpy(t.gBu, 1, t.dzu)
		numeric.Axpy(t.gBi, 1, t.dzi)
	}
	return loss / float64(n)
}

func (t *twoTowerTrainer) apply() {
	st, cfg := t.st, t.cfg
	lr := cfg.LearningRate
	sgdStep(st.userTower.W.Data, t.gWu.Data, lr, cfg.Reg)
	sgdStep(st.itemTower.W.Data, t.gWi.Data, lr, cfg.Reg)
	sgdStep(st.userTower.B, t.gBu, lr, 0)
	sgdStep(st.itemTower.B, t.gBi, lr, 0)
}

// Predict embeds userFeatures with the user tower and ranks candidates by
// dot product with their cached item embeddings. Unknown items score 0.
func (m *TwoTower) Predict(_ context.Context, userFeatures []float64, candidates []string) ([]recommend.ScoredItem, error) {
	st := m.state.Load()
	if st == nil {
		return nil, recommend.ErrModelNotTrained
	}
	if len(userFeatures) != st.config.UserDim {
		return nil, fmt.Errorf("%w: user features have width %d, tower expects %d",
			recommend.ErrDimensionMismatch, len(userFeatures), st.config.UserDim)
	}
	return st.rank(st.userTower.embed(userFeatures), candidates), nil
}

// PredictForUser ranks candidates for a user whose features were part of
// training. An unknown user scores 0 for every candidate.
func (m *TwoTower) PredictForUser(_ context.Context, userID string, candidates []string) ([]recommend.ScoredItem, error) {
	st := m.state.Load()
	if st == nil {
		return nil, recommend.ErrModelNotTrained
	}
	u, ok := st.users.Lookup(userID)
	if !ok {
		return recommend.ZeroScores(candidates), nil
	}
	return st.rank(st.userTower.embed(st.userFeatures.Row(u)), candidates), nil
}

func (st *twoTowerState) rank(userEmb []float64, candidates []string) []recommend.ScoredItem {
	return rankCandidates(candidates, func(id string) float64 {
		i, ok := st.items.Lookup(id)
		if !ok {
			return 0
		}
		return numeric.Dot(userEmb, st.itemEmb.Row(i))
	})
}

// Search implements recommend.Searcher: Predict (or PredictForUser for a
// user query) truncated to topK.
func (m *TwoTower) Search(ctx context.Context, q recommend.Query, candidates []string, topK int) ([]recommend.ScoredItem, error) {
	var (
		ranked []recommend.ScoredItem
		err    error
	)
	switch q.Kind {
	case recommend.QueryByFeatures:
		ranked, err = m.Predict(ctx, q.Features, candidates)
	case recommend.QueryByUser:
		ranked, err = m.PredictForUser(ctx, q.UserID, candidates)
	default:
		return nil, fmt.Errorf("two-tower search: %w: %s", recommend.ErrUnsupportedQuery, q.Kind)
	}
	if err != nil {
		return nil, err
	}
	return recommend.TopK(ranked, topK), nil
}

// KnowsUser reports whether userID has stored features.
func (m *TwoTower) KnowsUser(userID string) bool {
	st := m.state.Load()
	if st == nil {
		return false
	}
	_, ok := st.users.Lookup(userID)
	return ok
}

// Items returns the trained item vocabulary.
func (m *TwoTower) Items() []string {
	st := m.state.Load()
	if st == nil {
		return nil
	}
	return st.items.IDs()
}

// ItemEmbedding returns a copy of the cached embedding for itemID.
func (m *TwoTower) ItemEmbedding(itemID string) ([]float64, bool) {
	st := m.state.Load()
	if st == nil {
		return nil, false
	}
	i, ok := st.items.Lookup(itemID)
	if !ok {
		return nil, false
	}
	return append([]float64(nil), st.itemEmb.Row(i)...), true
}

// Artifact implements Model.
func (m *TwoTower) Artifact() (*storage.Artifact, error) {
	st := m.state.Load()
	if st == nil {
		return nil, recommend.ErrModelNotTrained
	}
	a, err := storage.NewArtifact(m.modelType, m.name, st.config, st.trainedAt)
	if err != nil {
		return nil, err
	}
	a.PutMatrix("user_tower.w", st.userTower.W)
	a.PutVector("user_tower.b", st.userTower.B)
	a.PutMatrix("item_tower.w", st.itemTower.W)
	a.PutVector("item_tower.b", st.itemTower.B)
	a.PutMatrix("user_features", st.userFeatures)
	a.PutMatrix("item_features", st.itemFeatures)
	a.IDMaps["users"] = st.users.IDs()
	a.IDMaps["items"] = st.items.IDs()
	a.LossHistory = append([]float64(nil), st.lossHistory...)
	return a, nil
}

// Save implements Model.
func (m *TwoTower) Save(path string) (string, error) {
	a, err := m.Artifact()
	if err != nil {
		return "", err
	}
	return storage.WriteArtifact(path, a)
}

// Restore implements Model.
func (m *TwoTower) Restore(a *storage.Artifact) error {
	if err := a.ExpectType(recommend.ModelTypeTwoTower); err != nil {
		return err
	}
	var cfg TwoTowerConfig
	if err := a.DecodeConfig(&cfg); err != nil {
		return err
	}
	cfg = cfg.withDefaults()

	st := &twoTowerState{
		config:      cfg,
		users:       recommend.NewIDIndex(a.IDMaps["users"], false),
		items:       recommend.NewIDIndex(a.IDMaps["items"], false),
		userTower:   &tower{},
		itemTower:   &tower{},
		lossHistory: append([]float64(nil), a.LossHistory...),
		trainedAt:   a.TrainedAt,
	}
	var err error
	if st.userTower.W, err = a.Matrix("user_tower.w"); err != nil {
		return err
	}
	if st.userTower.B, err = a.Vector("user_tower.b"); err != nil {
		return err
	}
	if st.itemTower.W, err = a.Matrix("item_tower.w"); err != nil {
		return err
	}
	if st.itemTower.B, err = a.Vector("item_tower.b"); err != nil {
		return err
	}
	if st.userFeatures, err = a.Matrix("user_features"); err != nil {
		return err
	}
	if st.itemFeatures, err = a.Matrix("item_features"); err != nil {
		return err
	}

	d := cfg.EmbeddingDim
	switch {
	case st.userTower.W.Rows != cfg.UserDim || st.userTower.W.Cols != d || len(st.userTower.B) != d,
		st.itemTower.W.Rows != cfg.ItemDim || st.itemTower.W.Cols != d || len(st.itemTower.B) != d,
		st.userFeatures.Rows != st.users.Len() || st.userFeatures.Cols != cfg.UserDim,
		st.itemFeatures.Rows != st.items.Len() || st.itemFeatures.Cols != cfg.ItemDim:
		return fmt.Errorf("%w: two-tower array shapes disagree with config", storage.ErrArtifactCorrupt)
	}
	st.itemEmb = embedAll(st.itemTower, st.itemFeatures)

	m.trainMu.Lock()
	defer m.trainMu.Unlock()
	m.config = cfg
	m.state.Store(st)
	m.markTrained(a.TrainedAt)
	return nil
}

// LoadTwoTower reads and verifies the artifact at path.
func LoadTwoTower(path string) (*TwoTower, error) {
	a, _, err := storage.ReadArtifact(path)
	if err != nil {
		return nil, fmt.Errorf("load two-tower: %w", err)
	}
	m := NewTwoTower(TwoTowerConfig{})
	if err := m.Restore(a); err != nil {
		return nil, fmt.Errorf("load two-tower: %w", err)
	}
	return m, nil
}
