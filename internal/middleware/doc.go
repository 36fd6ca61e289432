// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

// Package middleware wraps the ops HTTP router served by wayfarer serve.
//
// RequestID propagates or assigns X-Request-ID and stores it as the
// logging correlation id. Instrument records request counts, latency and
// in-flight requests in Prometheus, labelled by the chi route pattern.
// Requests that match no route are labelled "other".
//
//	r := chi.NewRouter()
//	r.Use(chimiddleware.Recoverer, middleware.RequestID, middleware.Instrument)
package middleware
