// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package algorithms

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tomtom215/wayfarer/internal/recommend"
	"github.com/tomtom215/wayfarer/internal/recommend/numeric"
	"github.com/tomtom215/wayfarer/internal/recommend/storage"
)

// BPRConfig contains configuration for the BPR ranker.
type BPRConfig struct {
	// Factors is the latent dimension.
	// Default: 64.
	Factors int `json:"factors" koanf:"factors"`

	// LearningRate is the SGD step size.
	// Default: 0.05.
	LearningRate float64 `json:"learning_rate" koanf:"learning_rate"`

	// RegUser, RegPos and RegNeg are the independent L2 weights on the
	// user, positive item and negative item rows.
	// Default: 0.01 each.
	RegUser float64 `json:"reg_user" koanf:"reg_user"`
	RegPos  float64 `json:"reg_pos" koanf:"reg_pos"`
	RegNeg  float64 `json:"reg_neg" koanf:"reg_neg"`

	// InitStd is the standard deviation of the Gaussian initialization.
	// Default: 0.1.
	InitStd float64 `json:"init_std" koanf:"init_std"`

	// Epochs is the number of passes over the triplets.
	// Default: 20.
	Epochs int `json:"epochs" koanf:"epochs"`

	// Seed drives initialization and shuffling.
	// Default: 42.
	Seed int64 `json:"seed" koanf:"seed"`
}

// DefaultBPRConfig returns default BPR configuration.
func DefaultBPRConfig() BPRConfig {
	return BPRConfig{
		Factors:      64,
		LearningRate: 0.05,
		RegUser:      0.01,
		RegPos:       0.01,
		RegNeg:       0.01,
		InitStd:      0.1,
		Epochs:       20,
		Seed:         42,
	}
}

func (c BPRConfig) withDefaults() BPRConfig {
	d := DefaultBPRConfig()
	if c.Factors <= 0 {
		c.Factors = d.Factors
	}
	if c.LearningRate <= 0 {
		c.LearningRate = d.LearningRate
	}
	if c.RegUser <= 0 {
		c.RegUser = d.RegUser
	}
	if c.RegPos <= 0 {
		c.RegPos = d.RegPos
	}
	if c.RegNeg <= 0 {
		c.RegNeg = d.RegNeg
	}
	if c.InitStd <= 0 {
		c.InitStd = d.InitStd
	}
	if c.Epochs <= 0 {
		c.Epochs = d.Epochs
	}
	if c.Seed == 0 {
		c.Seed = d.Seed
	}
	return c
}

// Triplet states that UserID prefers PosItemID over NegItemID.
type Triplet struct {
	UserID    string `json:"user_id"`
	PosItemID string `json:"pos_item"`
	NegItemID string `json:"neg_item"`
}

// bprState is one immutable parameter set.
type bprState struct {
	users       *recommend.IDIndex
	items       *recommend.IDIndex
	userFactors *numeric.Matrix
	itemFactors *numeric.Matrix
	config      BPRConfig
	lossHistory []float64
	trainedAt   time.Time
}

// BPR implements Bayesian Personalized Ranking over explicit triplets.
// Reference: "BPR: Bayesian Personalized Ranking from Implicit Feedback"
// (Rendle, Freudenthaler, Gantner, Schmidt-Thieme, 2009)
//
// score(u, i) = user_factors[u] · item_factors[i], and training maximizes
// sum ln sigmoid(score(u,i) - score(u,j)) with L2 on each touched row.
type BPR struct {
	baseModel
	config BPRConfig
	state  atomic.Pointer[bprState]
}

// NewBPR creates an untrained ranker. Zero config values take defaults.
func NewBPR(cfg BPRConfig) *BPR {
	return &BPR{
		baseModel: newBaseModel("", recommend.ModelTypeBPR),
		config:    cfg.withDefaults(),
	}
}

// Config returns the effective configuration.
func (b *BPR) Config() BPRConfig {
	return b.config
}

// ConfigSnapshot implements Model. It reports the configuration of the
// live parameters when there are any.
func (b *BPR) ConfigSnapshot() any {
	if st := b.state.Load(); st != nil {
		return st.config
	}
	return b.config
}

// IsTrained implements Model.
func (b *BPR) IsTrained() bool {
	return b.state.Load() != nil
}

// LossHistory returns the per-epoch mean loss of the current parameters.
func (b *BPR) LossHistory() []float64 {
	st := b.state.Load()
	if st == nil {
		return nil
	}
	return append([]float64(nil), st.lossHistory...)
}

type bprTriple struct{ u, i, j int }

// Train fits fresh factors on triplets. userIDs and itemIDs define the
// vocabulary; a triplet naming anything outside it is rejected with
// recommend.ErrInvalidTriplet. The previous parameters stay live until
// training completes, and stay live if ctx is cancelled.
func (b *BPR) Train(ctx context.Context, triplets []Triplet, userIDs, itemIDs []string) (recommend.TrainMetrics, error) {
	b.trainMu.Lock()
	defer b.trainMu.Unlock()

	start := time.Now()
	metrics := recommend.TrainMetrics{Model: b.modelType}
	if ContextCancelled(ctx) {
		return metrics, ctx.Err()
	}

	users := recommend.NewIDIndex(userIDs, false)
	items := recommend.NewIDIndex(itemIDs, false)

	triples := make([]bprTriple, 0, len(triplets))
	for n, t := range triplets {
		u, okU := users.Lookup(t.UserID)
		i, okI := items.Lookup(t.PosItemID)
		j, okJ := items.Lookup(t.NegItemID)
		if !okU || !okI || !okJ {
			return metrics, fmt.Errorf("%w: row %d (%s, %s, %s) references an unknown id",
				recommend.ErrInvalidTriplet, n, t.UserID, t.PosItemID, t.NegItemID)
		}
		if i == j {
			return metrics, fmt.Errorf("%w: row %d has identical positive and negative item %s",
				recommend.ErrInvalidTriplet, n, t.PosItemID)
		}
		triples = append(triples, bprTriple{u, i, j})
	}
	metrics.Examples = len(triples)

	cfg := b.config
	rng := newRNG(cfg.Seed)
	st := &bprState{
		config:      cfg,
		users:       users,
		items:       items,
		userFactors: numeric.NewGaussianMatrix(rng, users.Len(), cfg.Factors, cfg.InitStd),
		itemFactors: numeric.NewGaussianMatrix(rng, items.Len(), cfg.Factors, cfg.InitStd),
	}

	if len(triples) == 0 {
		metrics.StopEarly("no training triplets")
	}

	for epoch := 0; epoch < cfg.Epochs && len(triples) > 0; epoch++ {
		if ContextCancelled(ctx) {
			return metrics, fmt.Errorf("bpr training stopped at epoch %d: %w", epoch, ctx.Err())
		}

		rng.Shuffle(len(triples), func(a, c int) {
			triples[a], triples[c] = triples[c], triples[a]
		})

		var total float64
		for _, t := range triples {
			total += bprStep(st, t, cfg)
		}
		metrics.AppendLoss(meanLoss(total, len(triples)))
	}

	st.lossHistory = metrics.LossHistory
	st.trainedAt = time.Now().UTC()
	b.state.Store(st)
	b.markTrained(st.trainedAt)

	metrics.Duration = time.Since(start)
	return metrics, nil
}

// bprStep applies one SGD update for t and returns its loss.
func bprStep(st *bprState, t bprTriple, cfg BPRConfig) float64 {
	wu := st.userFactors.Row(t.u)
	hi := st.itemFactors.Row(t.i)
	hj := st.itemFactors.Row(t.j)

	x := numeric.Dot(wu, hi) - numeric.Dot(wu, hj)
	coef := 1 - numeric.Sigmoid(x)
	lr := cfg.LearningRate

	for f := range wu {
		uf, pf, nf := wu[f], hi[f], hj[f]
		wu[f] += lr * (coef*(pf-nf) - cfg.RegUser*uf)
		hi[f] += lr * (coef*uf - cfg.RegPos*pf)
		hj[f] += lr * (-coef*uf - cfg.RegNeg*nf)
	}
	return -numeric.LogSigmoid(x)
}

// Predict ranks candidates for userID. An unknown user scores 0 for every
// candidate and an unknown item scores 0 for every user.
func (b *BPR) Predict(_ context.Context, userID string, candidates []string) ([]recommend.ScoredItem, error) {
	st := b.state.Load()
	if st == nil {
		return nil, recommend.ErrModelNotTrained
	}
	u, ok := st.users.Lookup(userID)
	if !ok {
		return recommend.ZeroScores(candidates), nil
	}
	userVec := st.userFactors.Row(u)
	return rankCandidates(candidates, func(id string) float64 {
		i, ok := st.items.Lookup(id)
		if !ok {
			return 0
		}
		return numeric.Dot(userVec, st.itemFactors.Row(i))
	}), nil
}

// Search implements recommend.Searcher for user queries.
func (b *BPR) Search(ctx context.Context, q recommend.Query, candidates []string, topK int) ([]recommend.ScoredItem, error) {
	if q.Kind != recommend.QueryByUser {
		return nil, fmt.Errorf("bpr search: %w: %s", recommend.ErrUnsupportedQuery, q.Kind)
	}
	ranked, err := b.Predict(ctx, q.UserID, candidates)
	if err != nil {
		return nil, err
	}
	return recommend.TopK(ranked, topK), nil
}

// KnowsUser reports whether userID is in the trained vocabulary.
func (b *BPR) KnowsUser(userID string) bool {
	st := b.state.Load()
	if st == nil {
		return false
	}
	_, ok := st.users.Lookup(userID)
	return ok
}

// Items returns the trained item vocabulary.
func (b *BPR) Items() []string {
	st := b.state.Load()
	if st == nil {
		return nil
	}
	return st.items.IDs()
}

// Artifact implements Model.
func (b *BPR) Artifact() (*storage.Artifact, error) {
	st := b.state.Load()
	if st == nil {
		return nil, recommend.ErrModelNotTrained
	}
	a, err := storage.NewArtifact(b.modelType, b.name, st.config, st.trainedAt)
	if err != nil {
		return nil, err
	}
	a.PutMatrix("user_factors", st.userFactors)
	a.PutMatrix("item_factors", st.itemFactors)
	a.IDMaps["users"] = st.users.IDs()
	a.IDMaps["items"] = st.items.IDs()
	a.LossHistory = append([]float64(nil), st.lossHistory...)
	return a, nil
}

// Save implements Model.
func (b *BPR) Save(path string) (string, error) {
	a, err := b.Artifact()
	if err != nil {
		return "", err
	}
	return storage.WriteArtifact(path, a)
}

// Restore implements Model.
func (b *BPR) Restore(a *storage.Artifact) error {
	if err := a.ExpectType(recommend.ModelTypeBPR); err != nil {
		return err
	}
	var cfg BPRConfig
	if err := a.DecodeConfig(&cfg); err != nil {
		return err
	}
	cfg = cfg.withDefaults()

	users := recommend.NewIDIndex(a.IDMaps["users"], false)
	items := recommend.NewIDIndex(a.IDMaps["items"], false)
	uf, err := a.Matrix("user_factors")
	if err != nil {
		return err
	}
	itf, err := a.Matrix("item_factors")
	if err != nil {
		return err
	}
	if uf.Rows != users.Len() || itf.Rows != items.Len() || uf.Cols != cfg.Factors || itf.Cols != cfg.Factors {
		return fmt.Errorf("%w: bpr factor shapes %v/%v do not match %d users, %d items, %d factors",
			storage.ErrArtifactCorrupt, uf.Shape(), itf.Shape(), users.Len(), items.Len(), cfg.Factors)
	}

	b.trainMu.Lock()
	defer b.trainMu.Unlock()
	b.config = cfg
	b.state.Store(&bprState{
		config:      cfg,
		users:       users,
		items:       items,
		userFactors: uf,
		itemFactors: itf,
		lossHistory: append([]float64(nil), a.LossHistory...),
		trainedAt:   a.TrainedAt,
	})
	b.markTrained(a.TrainedAt)
	return nil
}

// LoadBPR reads and verifies the artifact at path.
func LoadBPR(path string) (*BPR, error) {
	a, _, err := storage.ReadArtifact(path)
	if err != nil {
		return nil, fmt.Errorf("load bpr: %w", err)
	}
	b := NewBPR(BPRConfig{})
	if err := b.Restore(a); err != nil {
		return nil, fmt.Errorf("load bpr: %w", err)
	}
	return b, nil
}
