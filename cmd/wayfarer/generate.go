// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/wayfarer/internal/dataset"
)

func newGenerateCmd(a *app) *cobra.Command {
	var (
		outDir string
		format string
		users  int
		items  int
		seed   int64
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic corpus as CSV or Parquet",
		Long: `Generate a clustered synthetic corpus and write one file per dataset
(triplets, pairs, user and item features, sequences, examples). The printed
paths can be used directly as data.paths.

Examples:
  wayfarer generate --out data
  wayfarer generate --out data --format parquet --users 200 --items 500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != dataset.FormatCSV && format != dataset.FormatParquet {
				return fmt.Errorf("unsupported format %q: use csv or parquet", format)
			}
			sc := a.cfg.Data.SyntheticConfig
			if users > 0 {
				sc.Users = users
			}
			if items > 0 {
				sc.Items = items
			}
			if cmd.Flags().Changed("seed") {
				sc.Seed = seed
			}

			ctx := cmd.Context()
			loader, err := dataset.NewLoader(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = loader.Close() }()

			paths, err := loader.Export(ctx, dataset.Synthetic(sc), outDir, format)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !a.human {
				return writeJSON(out, paths)
			}
			for _, p := range []string{paths.Triplets, paths.Pairs, paths.UserFeatures, paths.ItemFeatures, paths.Sequences, paths.Examples} {
				if p != "" {
					writeHuman(out, "%s\n", p)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "output directory")
	cmd.Flags().StringVar(&format, "format", dataset.FormatCSV, "csv or parquet")
	cmd.Flags().IntVar(&users, "users", 0, "override data.synthetic_config.users")
	cmd.Flags().IntVar(&items, "items", 0, "override data.synthetic_config.items")
	cmd.Flags().Int64Var(&seed, "seed", 0, "override data.synthetic_config.seed")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
