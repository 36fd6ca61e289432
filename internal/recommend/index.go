// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package recommend

// PaddingIndex is the reserved position of a padded IDIndex.
const PaddingIndex = 0

// IDIndex is an immutable bijection between string ids and dense positions.
// With padding, position 0 is reserved and has no id.
type IDIndex struct {
	ids     []string
	pos     map[string]int
	padding bool
}

// NewIDIndex indexes ids in order. Duplicates and empty strings are skipped.
func NewIDIndex(ids []string, withPadding bool) *IDIndex {
	idx := &IDIndex{
		pos:     make(map[string]int, len(ids)),
		padding: withPadding,
	}
	if withPadding {
		idx.ids = append(idx.ids, "")
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := idx.pos[id]; dup {
			continue
		}
		idx.pos[id] = len(idx.ids)
		idx.ids = append(idx.ids, id)
	}
	return idx
}

// Lookup returns the position of id.
func (x *IDIndex) Lookup(id string) (int, bool) {
	if x == nil {
		return 0, false
	}
	i, ok := x.pos[id]
	return i, ok
}

// ID returns the id at position i, or "" for padding or out of range.
func (x *IDIndex) ID(i int) string {
	if x == nil || i < 0 || i >= len(x.ids) {
		return ""
	}
	return x.ids[i]
}

// Len is the number of positions, including padding.
func (x *IDIndex) Len() int {
	if x == nil {
		return 0
	}
	return len(x.ids)
}

// IDs returns the real ids in position order, without the padding slot.
func (x *IDIndex) IDs() []string {
	if x == nil {
		return nil
	}
	start := 0
	if x.padding {
		start = 1
	}
	out := make([]string, len(x.ids)-start)
	copy(out, x.ids[start:])
	return out
}
