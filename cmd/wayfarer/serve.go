// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/tomtom215/wayfarer/internal/config"
	"github.com/tomtom215/wayfarer/internal/logging"
	"github.com/tomtom215/wayfarer/internal/supervisor"
	"github.com/tomtom215/wayfarer/internal/supervisor/services"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run training, model reload and metrics under a supervisor",
		Long: `Run the long-lived services under a suture supervisor tree:

  data-layer      polls storage.artifact_dir for new versions (storage.reload_interval)
  training-layer  trains on startup and every pipeline.training.interval
  api-layer       serves /metrics, /healthz, /readyz and /status (metrics.addr)

The process stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	training := cfg.Pipeline.Training
	trains := training.OnStartup || training.Interval > 0

	comp, err := a.open(ctx, trains)
	if err != nil {
		return err
	}
	defer func() { _ = comp.Close() }()

	n, err := comp.engine.LoadLatest(ctx)
	if err != nil {
		return err
	}
	logging.Info().Int("models", n).Str("artifact_dir", cfg.Storage.ArtifactDir).Msg("Loaded stored models")

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), cfg.Supervisor.Tree())
	if err != nil {
		return err
	}

	if cfg.Storage.ReloadInterval > 0 {
		tree.AddDataService(services.NewModelReloadService(comp.engine, cfg.Storage.ReloadInterval))
	}
	if trains {
		tree.AddTrainingService(services.NewTrainingService(comp.engine, a.corpusSource(), services.TrainingServiceConfig{
			TrainOnStartup: training.OnStartup,
			TrainInterval:  training.Interval,
		}))
	}
	if cfg.Metrics.Enabled {
		server := services.NewMetricsServer(cfg.Metrics.Addr, services.NewMetricsHandler(cfg.Metrics.Path, comp.engine))
		tree.AddAPIService(services.NewHTTPServerService(server, cfg.Supervisor.ShutdownTimeout))
	}

	if a.configPath != "" {
		a.watchLogLevel()
	}

	logging.Info().
		Bool("training", trains).
		Dur("reload_interval", cfg.Storage.ReloadInterval).
		Bool("metrics", cfg.Metrics.Enabled).
		Str("metrics_addr", cfg.Metrics.Addr).
		Msg("Starting supervisor tree")

	err = tree.Serve(ctx)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within shutdown timeout")
		}
	}
	if errors.Is(err, context.Canceled) {
		logging.Info().Msg("Shutdown complete")
		return nil
	}
	return err
}

// watchLogLevel applies logging.level changes from the config file without
// a restart. Other settings still require one.
func (a *app) watchLogLevel() {
	path := a.configPath
	err := config.WatchConfigFile(path, func() {
		cfg, err := config.Load(path)
		if err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Ignoring invalid config change")
			return
		}
		logging.SetLevelString(cfg.Logging.Level)
		logging.Info().Str("level", cfg.Logging.Level).Msg("Log level reloaded")
	})
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("Config file watch unavailable")
	}
}
