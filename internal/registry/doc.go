// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

/*
Package registry records published model artifacts in DuckDB.

Every successful training run writes one row keyed on (model_name,
model_version). Writes are idempotent: a second Register with the same key
is a no-op and reports inserted == false. The version key is
"v{n}-{hash prefix}", so re-publishing identical bytes under the same store
version never duplicates a row.

The Publisher ties the artifact store and the registry together:

	pub := registry.NewPublisher(store, reg)
	res, err := pub.Publish(ctx, model, metrics)

Publish saves the artifact (hash computed over the encoded bytes), then
registers it. A nil Registry makes Publish store-only.
*/
package registry
