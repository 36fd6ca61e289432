// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

/*
Package services provides suture.Service wrappers for Wayfarer components.

Each wrapper translates a component's lifecycle into suture's
context-aware Serve pattern and implements fmt.Stringer so supervisor
events name the service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

# Available Services

TrainingService (training layer):
  - Trains on startup when configured
  - Retrains on a fixed interval from a CorpusSource
  - Training failures are logged; the service keeps running

ModelReloadService (data layer):
  - Polls the artifact store and hot-swaps newly published versions
  - Lets a serve process pick up models trained by a separate CLI run

HTTPServerService (api layer):
  - Wraps *http.Server with graceful shutdown
  - NewMetricsHandler serves Prometheus metrics plus health, readiness
    and training status endpoints

# Return Semantics

Serve returns ctx.Err() on shutdown and a wrapped error when the wrapped
component fails, which tells the supervisor to restart it.
*/
package services
