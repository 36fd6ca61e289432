// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

/*
Package supervisor provides process supervision for Wayfarer using suture v4.

The serve command runs every long-lived component under a hierarchical
supervisor tree with automatic restart and graceful shutdown:

	RootSupervisor ("wayfarer")
	├── DataSupervisor ("data-layer")
	│   └── ModelReloadService (polls the artifact store for new versions)
	├── TrainingSupervisor ("training-layer")
	│   └── TrainingService (startup and scheduled retraining)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (Prometheus /metrics)

Each layer counts failures independently, so a trainer that keeps crashing
backs off without restarting the metrics endpoint.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), cfg.Supervisor.Tree())
	if err != nil {
	    return err
	}
	tree.AddTrainingService(services.NewTrainingService(engine, source, opts))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	return tree.Serve(ctx)

# Failure Handling

The failure counter decays exponentially over FailureDecay seconds. When
it exceeds FailureThreshold the supervisor waits FailureBackoff before the
next restart. Zero values in TreeConfig fall back to suture's defaults
(5 failures, 30s decay, 15s backoff, 10s shutdown timeout).

Services follow the suture contract:
  - return nil: stopped cleanly, not restarted
  - return an error: crashed, restarted
  - context canceled: return promptly

Events are logged through sutureslog, which bridges into zerolog via
logging.NewSlogHandler.

# What Is NOT Supervised

DuckDB and the artifact store are embedded libraries opened by the command
before the tree starts; they are closed after Serve returns.
*/
package supervisor
