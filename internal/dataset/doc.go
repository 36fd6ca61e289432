// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

/*
Package dataset loads and writes training data through DuckDB.

Every input is a CSV or Parquet file read with read_csv_auto or
read_parquet, selected by file extension. Expected columns:

	triplets       user_id, pos_item, neg_item
	pairs          user_id, item_id
	user features  id, then one numeric column per feature
	item features  id, then one numeric column per feature
	sequences      user_id, item_id, ts
	examples       item_id, quality_score, impression_count,
	               acceptance_count, taste_divergence, group_divergence,
	               label, and optionally user_id

Export writes a Corpus back out in the same layout with COPY ... TO, and
Synthetic builds a two-cluster Corpus for demos and tests.
*/
package dataset
