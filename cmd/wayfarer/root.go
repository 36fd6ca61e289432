// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package main

import (
	"github.com/spf13/cobra"

	"github.com/tomtom215/wayfarer/internal/config"
	"github.com/tomtom215/wayfarer/internal/logging"
	"github.com/tomtom215/wayfarer/internal/metrics"
)

// app carries global flags and the loaded configuration to subcommands.
type app struct {
	configPath string
	logLevel   string
	human      bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "wayfarer",
		Short: "Personalized activity recommendation backend",
		Long: `wayfarer trains BPR, Two-Tower, SASRec and DLRM models on interaction
data, stores them as checksummed artifacts with a DuckDB registry, and
ranks candidate activities for a user through a multi-stage pipeline.

All commands print JSON on stdout by default.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config file (default: search wayfarer.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level")
	root.PersistentFlags().BoolVar(&a.human, "human", false, "use human-readable output instead of JSON")

	root.AddCommand(
		newTrainCmd(a),
		newPredictCmd(a),
		newServeCmd(a),
		newInspectCmd(a),
		newVerifyCmd(a),
		newGenerateCmd(a),
	)
	return root
}

// setup loads configuration and initializes logging before any subcommand.
func (a *app) setup(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return &configError{err: err}
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
		if err := cfg.Validate(); err != nil {
			return &configError{err: err}
		}
	}
	logging.Init(cfg.Logging.Logging())
	metrics.SetAppInfo(Version)
	a.cfg = cfg
	return nil
}
