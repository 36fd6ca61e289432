// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package dataset

import (
	"sort"

	"github.com/tomtom215/wayfarer/internal/recommend/algorithms"
)

// Example is one DLRM training row. UserID links the row to a sequence
// so the pipeline can build its context vector.
type Example struct {
	UserID   string
	ItemID   string
	Features algorithms.CandidateFeatures
	Label    float64
}

// Corpus holds everything one pipeline training run consumes. Any part
// may be empty; the model that needs it then trains on nothing and stops
// early.
type Corpus struct {
	Triplets []algorithms.Triplet
	Towers   algorithms.TwoTowerData

	// Sequences[i] is the chronological history of SequenceUsers[i].
	Sequences     [][]string
	SequenceUsers []string

	Examples []Example
}

// Users returns every user id in the corpus, sorted.
func (c *Corpus) Users() []string {
	set := make(map[string]struct{})
	for _, t := range c.Triplets {
		set[t.UserID] = struct{}{}
	}
	for _, id := range c.Towers.UserIDs {
		set[id] = struct{}{}
	}
	for _, p := range c.Towers.Pairs {
		set[p.UserID] = struct{}{}
	}
	for _, id := range c.SequenceUsers {
		set[id] = struct{}{}
	}
	return sortedKeys(set)
}

// Items returns every item id in the corpus, sorted.
func (c *Corpus) Items() []string {
	set := make(map[string]struct{})
	for _, t := range c.Triplets {
		set[t.PosItemID] = struct{}{}
		set[t.NegItemID] = struct{}{}
	}
	for _, id := range c.Towers.ItemIDs {
		set[id] = struct{}{}
	}
	for _, p := range c.Towers.Pairs {
		set[p.ItemID] = struct{}{}
	}
	for _, seq := range c.Sequences {
		for _, id := range seq {
			set[id] = struct{}{}
		}
	}
	for _, ex := range c.Examples {
		set[ex.ItemID] = struct{}{}
	}
	return sortedKeys(set)
}

// History returns the sequence of userID, or nil.
func (c *Corpus) History(userID string) []string {
	for i, u := range c.SequenceUsers {
		if u == userID {
			return c.Sequences[i]
		}
	}
	return nil
}

// Empty reports whether no model has anything to train on.
func (c *Corpus) Empty() bool {
	return len(c.Triplets) == 0 && len(c.Towers.Pairs) == 0 &&
		len(c.Sequences) == 0 && len(c.Examples) == 0
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		if k != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
