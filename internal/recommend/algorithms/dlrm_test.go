// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package algorithms

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/tomtom215/wayfarer/internal/recommend"
	"github.com/tomtom215/wayfarer/internal/recommend/numeric"
)

func testDLRMConfig() DLRMConfig {
	return DLRMConfig{
		ContextDim:   4,
		LearningRate: 0.05,
		Epochs:       20,
		Seed:         11,
	}
}

// qualityExamples labels a candidate positive when its quality score is
// above one half. The remaining features carry little signal.
func qualityExamples(n, contextDim int, seed int64) []LabeledExample {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // test data
	out := make([]LabeledExample, n)
	for i := range out {
		q := rng.Float64()
		var ctxVec []float64
		if i%2 == 0 {
			ctxVec = make([]float64, contextDim)
			for k := range ctxVec {
				ctxVec[k] = rng.NormFloat64() * 0.1
			}
		}
		label := 0.0
		if q > 0.5 {
			label = 1
		}
		out[i] = LabeledExample{
			Features: CandidateFeatures{
				QualityScore:    q,
				ImpressionCount: 10,
				AcceptanceCount: 3,
				TasteDivergence: 0.2 + 0.05*rng.Float64(),
				GroupDivergence: 0.3,
			},
			Context: ctxVec,
			Label:   label,
		}
	}
	return out
}

func trainedDLRM(t *testing.T) *DLRM {
	t.Helper()
	m := NewDLRM(testDLRMConfig())
	if _, err := m.Fit(context.Background(), qualityExamples(200, 4, 5)); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	return m
}

func TestNewDLRMDefaults(t *testing.T) {
	t.Parallel()

	if got, want := NewDLRM(DLRMConfig{}).Config(), DefaultDLRMConfig(); got != want {
		t.Errorf("Config() = %+v, want %+v", got, want)
	}
	if got := NewDLRM(DLRMConfig{ClipEps: 0.9}).Config().ClipEps; got != 1e-7 {
		t.Errorf("ClipEps = %v, want default for out-of-range value", got)
	}
}

func TestCandidateFeaturesVector(t *testing.T) {
	t.Parallel()

	v := CandidateFeatures{
		QualityScore:    0.5,
		ImpressionCount: math.E - 1,
		AcceptanceCount: -3,
		TasteDivergence: 0.1,
		GroupDivergence: 0.2,
	}.Vector()
	want := []float64{0.5, 1, 0, 0.1, 0.2}
	if len(v) != NumFeatures {
		t.Fatalf("len = %d, want %d", len(v), NumFeatures)
	}
	for i := range want {
		if math.Abs(v[i]-want[i]) > 1e-12 {
			t.Errorf("%s = %v, want %v", FeatureNames[i], v[i], want[i])
		}
	}
}

func TestComputeInteractions(t *testing.T) {
	t.Parallel()

	emb := [][]float64{{1, 0}, {0, 1}, {2, 3}}
	got := ComputeInteractions(emb)
	want := []float64{0, 2, 3} // (0,1) (0,2) (1,2)
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if n := len(ComputeInteractions(make([][]float64, NumFeatures))); n != NumInteractions {
		t.Errorf("interactions for %d features = %d, want %d", NumFeatures, n, NumInteractions)
	}
}

func TestDLRM_GradientMatchesFiniteDifference(t *testing.T) {
	t.Parallel()

	cfg := testDLRMConfig().withDefaults()
	st := newDLRMState(cfg, newRNG(3))
	tr := newDLRMTrainer(st)
	ex := dlrmExample{
		x:   CandidateFeatures{QualityScore: 0.7, ImpressionCount: 12, AcceptanceCount: 4, TasteDivergence: 0.3, GroupDivergence: -0.2}.Vector(),
		ctx: []float64{0.1, -0.2, 0.05, 0.3},
		y:   1,
	}
	tr.backward(ex)

	lossAt := func() float64 {
		return bce(st.forward(newDLRMPass(cfg), ex.x, ex.ctx), ex.y)
	}
	const h = 1e-6
	cases := []struct {
		name  string
		param []float64
		grad  []float64
	}{
		{"top.out.w", st.topOut.W.Data, tr.gTopOut.W.Data},
		{"top.out.b", st.topOut.B, tr.gTopOut.B},
		{"top.hidden.w", st.topHidden.W.Data, tr.gTopHidden.W.Data},
		{"top.hidden.b", st.topHidden.B, tr.gTopHidden.B},
		{"bottom.out.w", st.bottomOut.W.Data, tr.gBottomOut.W.Data},
		{"bottom.out.b", st.bottomOut.B, tr.gBottomOut.B},
		{"bottom.hidden.w", st.bottomHidden.W.Data, tr.gBottomHidden.W.Data},
		{"bottom.hidden.b", st.bottomHidden.B, tr.gBottomHidden.B},
	}
	for _, tc := range cases {
		for _, i := range []int{0, len(tc.param) / 2, len(tc.param) - 1} {
			orig := tc.param[i]
			tc.param[i] = orig + h
			up := lossAt()
			tc.param[i] = orig - h
			down := lossAt()
			tc.param[i] = orig

			numericGrad := (up - down) / (2 * h)
			if diff := math.Abs(numericGrad - tc.grad[i]); diff > 1e-5*math.Max(1, math.Abs(numericGrad)) {
				t.Errorf("%s[%d]: analytic %.10g, numeric %.10g", tc.name, i, tc.grad[i], numericGrad)
			}
		}
	}
}

func TestDLRM_Converges(t *testing.T) {
	t.Parallel()

	m := NewDLRM(testDLRMConfig())
	history, err := m.Train(context.Background(), qualityExamples(200, 4, 5), 25)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if len(history) != 25 {
		t.Fatalf("len(history) = %d, want 25", len(history))
	}
	assertConverges(t, history, 3)
}

func TestDLRM_TrustGateFallbackIsExact(t *testing.T) {
	t.Parallel()

	m := trainedDLRM(t)
	ctxVec := []float64{0.4, -0.1, 0.25, 0.05}
	fallback := numeric.Mean(ctxVec)

	candidates := []Candidate{
		{ItemID: "fresh", Features: CandidateFeatures{QualityScore: 0.99, ImpressionCount: 4}},
		{ItemID: "unseen", Features: CandidateFeatures{QualityScore: 0.01}},
		{ItemID: "trusted", Features: CandidateFeatures{QualityScore: 0.9, ImpressionCount: 5, AcceptanceCount: 2}},
	}
	got, err := m.ScoreCandidates(context.Background(), ctxVec, candidates)
	if err != nil {
		t.Fatalf("ScoreCandidates() error = %v", err)
	}
	assertSorted(t, got)

	scores := map[string]float64{}
	for _, it := range got {
		scores[it.ItemID] = it.Score
	}
	for _, id := range []string{"fresh", "unseen"} {
		if scores[id] != fallback {
			t.Errorf("%s score = %.17g, want exactly mean(context) %.17g", id, scores[id], fallback)
		}
	}
	if !m.Gated(candidates[0].Features) || m.Gated(candidates[2].Features) {
		t.Error("Gated() disagrees with MinImpressions")
	}

	pass := newDLRMPass(m.Config())
	full := m.state.Load().forward(pass, candidates[2].Features.Vector(), ctxVec)
	if scores["trusted"] != full {
		t.Errorf("trusted score = %v, want full pipeline %v", scores["trusted"], full)
	}
	eps := m.Config().ClipEps
	if full < eps || full > 1-eps {
		t.Errorf("score %v outside clip range", full)
	}
}

func TestDLRM_PublicStages(t *testing.T) {
	t.Parallel()

	m := trainedDLRM(t)
	f := CandidateFeatures{QualityScore: 0.8, ImpressionCount: 20, AcceptanceCount: 5, TasteDivergence: 0.1, GroupDivergence: 0.4}
	ctxVec := []float64{0.1, 0.2, 0.3, 0.4}

	emb, err := m.BottomMLP(f.Vector())
	if err != nil {
		t.Fatalf("BottomMLP() error = %v", err)
	}
	if len(emb) != NumFeatures || len(emb[0]) != m.Config().EmbeddingDim {
		t.Fatalf("BottomMLP shape = %dx%d", len(emb), len(emb[0]))
	}
	staged, err := m.TopMLP(ComputeInteractions(emb), ctxVec)
	if err != nil {
		t.Fatalf("TopMLP() error = %v", err)
	}
	got, err := m.ScoreCandidates(context.Background(), ctxVec, []Candidate{{ItemID: "a", Features: f}})
	if err != nil {
		t.Fatalf("ScoreCandidates() error = %v", err)
	}
	if math.Abs(got[0].Score-staged) > 1e-12 {
		t.Errorf("staged score %v != ScoreCandidates %v", staged, got[0].Score)
	}

	if _, err := m.BottomMLP([]float64{1, 2}); !errors.Is(err, recommend.ErrDimensionMismatch) {
		t.Errorf("BottomMLP(short) error = %v, want ErrDimensionMismatch", err)
	}
	if _, err := m.TopMLP(make([]float64, NumInteractions), []float64{1}); !errors.Is(err, recommend.ErrDimensionMismatch) {
		t.Errorf("TopMLP(short context) error = %v, want ErrDimensionMismatch", err)
	}
}

func TestDLRM_ColdStartAndErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if _, err := NewDLRM(DLRMConfig{}).ScoreCandidates(ctx, []float64{1}, nil); !errors.Is(err, recommend.ErrModelNotTrained) {
		t.Errorf("ScoreCandidates() before Train error = %v, want ErrModelNotTrained", err)
	}

	m := trainedDLRM(t)
	candidates := []Candidate{
		{ItemID: "a", Features: CandidateFeatures{ImpressionCount: 50}},
		{ItemID: "b", Features: CandidateFeatures{ImpressionCount: 1}},
	}
	got, err := m.ScoreCandidates(ctx, nil, candidates)
	if err != nil {
		t.Fatalf("ScoreCandidates(nil context) error = %v", err)
	}
	assertAllZero(t, got, 2)

	if _, err := m.ScoreCandidates(ctx, []float64{1, 2}, candidates); !errors.Is(err, recommend.ErrDimensionMismatch) {
		t.Errorf("ScoreCandidates(wrong width) error = %v, want ErrDimensionMismatch", err)
	}

	bad := []LabeledExample{{Label: 2}}
	if _, err := NewDLRM(DLRMConfig{}).Fit(ctx, bad); !errors.Is(err, recommend.ErrInvalidExample) {
		t.Errorf("Fit(label 2) error = %v, want ErrInvalidExample", err)
	}
	wide := []LabeledExample{{Context: []float64{1}, Label: 1}}
	if _, err := NewDLRM(testDLRMConfig()).Fit(ctx, wide); !errors.Is(err, recommend.ErrDimensionMismatch) {
		t.Errorf("Fit(wrong context) error = %v, want ErrDimensionMismatch", err)
	}
}

func TestDLRM_NoExamplesStopsEarly(t *testing.T) {
	t.Parallel()

	m := NewDLRM(testDLRMConfig())
	metrics, err := m.Fit(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if !metrics.StoppedEarly || metrics.Epochs != 0 {
		t.Errorf("metrics = %+v, want early stop", metrics)
	}
	if !m.IsTrained() {
		t.Error("initialized parameters were not published")
	}
}

func TestDLRM_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	m := trainedDLRM(t)
	path := filepath.Join(t.TempDir(), "dlrm.json")
	if _, err := m.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := LoadDLRM(path)
	if err != nil {
		t.Fatalf("LoadDLRM() error = %v", err)
	}

	ctxVec := []float64{0.2, 0.1, -0.3, 0.0}
	var candidates []Candidate
	for i, q := range []float64{0.1, 0.4, 0.6, 0.9} {
		candidates = append(candidates, Candidate{
			ItemID:   ids("item", 4)[i],
			Features: CandidateFeatures{QualityScore: q, ImpressionCount: 10, AcceptanceCount: 3, TasteDivergence: 0.2, GroupDivergence: 0.3},
		})
	}
	want, err := m.ScoreCandidates(context.Background(), ctxVec, candidates)
	if err != nil {
		t.Fatalf("ScoreCandidates() error = %v", err)
	}
	got, err := loaded.ScoreCandidates(context.Background(), ctxVec, candidates)
	if err != nil {
		t.Fatalf("ScoreCandidates() after load error = %v", err)
	}
	assertScoresClose(t, got, want, 1e-10)
}

func TestDLRM_SaveIsDeterministic(t *testing.T) {
	t.Parallel()

	m := trainedDLRM(t)
	dir := t.TempDir()
	first, err := m.Save(filepath.Join(dir, "dlrm.json"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	for i := 0; i < 20; i++ {
		path := filepath.Join(dir, "dlrm.json")
		if i%2 == 1 {
			path = filepath.Join(dir, "dlrm-copy.json")
		}
		hash, err := m.Save(path)
		if err != nil {
			t.Fatalf("Save() #%d error = %v", i, err)
		}
		if hash != first {
			t.Fatalf("Save() #%d hash = %s, want %s", i, hash, first)
		}
	}

	a, err := m.Artifact()
	if err != nil {
		t.Fatalf("Artifact() error = %v", err)
	}
	want := []string{"bottom.hidden.w", "bottom.hidden.b", "bottom.out.w", "bottom.out.b",
		"top.hidden.w", "top.hidden.b", "top.out.w", "top.out.b"}
	if len(a.Arrays) != len(want) {
		t.Fatalf("Artifact() has %d arrays, want %d", len(a.Arrays), len(want))
	}
	for i, rec := range a.Arrays {
		if rec.Name != want[i] {
			t.Errorf("Arrays[%d] = %s, want %s", i, rec.Name, want[i])
		}
	}
}
