// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package main

import (
	"github.com/spf13/cobra"

	"github.com/tomtom215/wayfarer/internal/logging"
)

func newTrainCmd(a *app) *cobra.Command {
	var synthetic bool
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train every model and publish artifacts",
		Long: `Train BPR, Two-Tower, SASRec and DLRM on the configured corpus and
publish each model to the artifact store and registry.

Examples:
  wayfarer train --synthetic
  WAYFARER_TRIPLETS_PATH=triplets.csv wayfarer train --human`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if synthetic {
				a.cfg.Data.Synthetic = true
			}
			ctx := cmd.Context()

			comp, err := a.open(ctx, true)
			if err != nil {
				return err
			}
			defer func() { _ = comp.Close() }()

			corpus, err := a.corpusSource()(ctx)
			if err != nil {
				return err
			}
			report, err := comp.engine.Train(ctx, corpus)
			if err != nil {
				return err
			}
			logging.Info().Str("run_id", report.RunID).Dur("duration", report.Duration).Msg("Training complete")

			out := cmd.OutOrStdout()
			if !a.human {
				return writeJSON(out, report)
			}
			writeHuman(out, "run %s finished in %s\n", report.RunID, report.Duration)
			for _, mr := range report.Models {
				if mr.Skipped {
					writeHuman(out, "  %-10s skipped\n", mr.Model)
					continue
				}
				writeHuman(out, "  %-10s epochs=%-4d loss=%-10.6f %s\n",
					mr.Model, mr.Metrics.Epochs, mr.Metrics.FinalLoss, mr.Version)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&synthetic, "synthetic", false, "train on a generated corpus instead of data.paths")
	return cmd
}
