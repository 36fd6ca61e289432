// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package dataset

import (
	"fmt"
	"math/rand"

	"github.com/tomtom215/wayfarer/internal/recommend/algorithms"
)

// SyntheticConfig sizes a generated corpus.
type SyntheticConfig struct {
	Users           int   `koanf:"users"`
	Items           int   `koanf:"items"`
	FeatureDim      int   `koanf:"feature_dim"`
	TripletsPerUser int   `koanf:"triplets_per_user"`
	PairsPerUser    int   `koanf:"pairs_per_user"`
	SequenceLen     int   `koanf:"sequence_len"`
	Examples        int   `koanf:"examples"`
	Seed            int64 `koanf:"seed"`
}

// DefaultSyntheticConfig returns a small corpus suitable for demos.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Users:           20,
		Items:           20,
		FeatureDim:      4,
		TripletsPerUser: 20,
		PairsPerUser:    10,
		SequenceLen:     8,
		Examples:        400,
		Seed:            42,
	}
}

func (c SyntheticConfig) withDefaults() SyntheticConfig {
	d := DefaultSyntheticConfig()
	if c.Users < 2 {
		c.Users = d.Users
	}
	if c.Items < 4 {
		c.Items = d.Items
	}
	if c.FeatureDim < 2 {
		c.FeatureDim = d.FeatureDim
	}
	if c.TripletsPerUser <= 0 {
		c.TripletsPerUser = d.TripletsPerUser
	}
	if c.PairsPerUser <= 0 {
		c.PairsPerUser = d.PairsPerUser
	}
	if c.SequenceLen < 2 {
		c.SequenceLen = d.SequenceLen
	}
	if c.Examples <= 0 {
		c.Examples = d.Examples
	}
	if c.Seed == 0 {
		c.Seed = d.Seed
	}
	return c
}

// UserID formats the id of user i.
func UserID(i int) string { return fmt.Sprintf("user_%d", i) }

// ItemID formats the id of item i.
func ItemID(i int) string { return fmt.Sprintf("item_%d", i) }

// Cluster returns the preference cluster of user or item index i.
func Cluster(i int) int { return i % 2 }

// Synthetic builds a two-cluster corpus: even users prefer even items and
// odd users prefer odd items. Every part of the corpus carries that signal.
func Synthetic(cfg SyntheticConfig) *Corpus {
	cfg = cfg.withDefaults()
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // G404: synthetic data, not security

	byCluster := [2][]int{}
	for i := 0; i < cfg.Items; i++ {
		byCluster[Cluster(i)] = append(byCluster[Cluster(i)], i)
	}
	pick := func(cluster int) int {
		items := byCluster[cluster]
		return items[rng.Intn(len(items))]
	}

	c := &Corpus{}
	for u := 0; u < cfg.Users; u++ {
		own := Cluster(u)
		for k := 0; k < cfg.TripletsPerUser; k++ {
			c.Triplets = append(c.Triplets, algorithms.Triplet{
				UserID:    UserID(u),
				PosItemID: ItemID(pick(own)),
				NegItemID: ItemID(pick(1 - own)),
			})
		}
		for k := 0; k < cfg.PairsPerUser; k++ {
			c.Towers.Pairs = append(c.Towers.Pairs, algorithms.PositivePair{
				UserID: UserID(u),
				ItemID: ItemID(pick(own)),
			})
		}

		// Walk the user's own cluster in order from a random start.
		items := byCluster[own]
		start := rng.Intn(len(items))
		seq := make([]string, cfg.SequenceLen)
		for t := range seq {
			seq[t] = ItemID(items[(start+t)%len(items)])
		}
		c.SequenceUsers = append(c.SequenceUsers, UserID(u))
		c.Sequences = append(c.Sequences, seq)

		c.Towers.UserIDs = append(c.Towers.UserIDs, UserID(u))
		c.Towers.UserFeatures = append(c.Towers.UserFeatures, clusterFeatures(rng, own, cfg.FeatureDim))
	}
	for i := 0; i < cfg.Items; i++ {
		c.Towers.ItemIDs = append(c.Towers.ItemIDs, ItemID(i))
		c.Towers.ItemFeatures = append(c.Towers.ItemFeatures, clusterFeatures(rng, Cluster(i), cfg.FeatureDim))
	}

	for k := 0; k < cfg.Examples; k++ {
		u, i := rng.Intn(cfg.Users), rng.Intn(cfg.Items)
		quality := rng.Float64()
		impressions := float64(rng.Intn(40))
		match := Cluster(u) == Cluster(i)
		label := 0.0
		if match && quality > 0.3 {
			label = 1
		}
		taste := 0.2 + 0.1*rng.Float64()
		if !match {
			taste += 0.5
		}
		c.Examples = append(c.Examples, Example{
			UserID: UserID(u),
			ItemID: ItemID(i),
			Features: algorithms.CandidateFeatures{
				QualityScore:    quality,
				ImpressionCount: impressions,
				AcceptanceCount: float64(int(impressions * quality * 0.5)),
				TasteDivergence: taste,
				GroupDivergence: rng.Float64(),
			},
			Label: label,
		})
	}
	return c
}

// clusterFeatures one-hot encodes the cluster in the first two columns and
// fills the rest with noise.
func clusterFeatures(rng *rand.Rand, cluster, dim int) []float64 {
	f := make([]float64, dim)
	f[cluster] = 1
	for k := range f {
		f[k] += 0.1 * rng.NormFloat64()
	}
	return f
}
