// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package main

import (
	"github.com/spf13/cobra"

	"github.com/tomtom215/wayfarer/internal/recommend/storage"
	"github.com/tomtom215/wayfarer/internal/registry"
)

// inspectResult is the JSON output of inspect.
type inspectResult struct {
	Artifacts []storage.ModelMetadata `json:"artifacts"`
	Registry  []registry.Entry        `json:"registry,omitempty"`
}

func newInspectCmd(a *app) *cobra.Command {
	var withRegistry bool
	cmd := &cobra.Command{
		Use:   "inspect [model]",
		Short: "List stored artifacts and registry entries",
		Long: `List every artifact in storage.artifact_dir, newest version first per
model, optionally filtered to one model name. With --registry the DuckDB
registry entries are included.

Examples:
  wayfarer inspect
  wayfarer inspect sasrec --registry --human`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var name string
			if len(args) == 1 {
				name = args[0]
			}

			store, err := storage.NewStore(a.cfg.Storage.ArtifactDir)
			if err != nil {
				return err
			}
			metas, err := store.List(ctx)
			if err != nil {
				return err
			}
			res := inspectResult{Artifacts: []storage.ModelMetadata{}}
			for _, m := range metas {
				if name == "" || m.Name == name {
					res.Artifacts = append(res.Artifacts, m)
				}
			}

			if withRegistry && a.cfg.Registry.Enabled {
				reg, err := registry.Open(ctx, a.cfg.Registry.Registry())
				if err != nil {
					return err
				}
				defer func() { _ = reg.Close() }()
				entries, err := reg.List(ctx)
				if err != nil {
					return err
				}
				for _, e := range entries {
					if name == "" || e.ModelName == name {
						res.Registry = append(res.Registry, e)
					}
				}
			}

			out := cmd.OutOrStdout()
			if !a.human {
				return writeJSON(out, res)
			}
			if len(res.Artifacts) == 0 {
				writeHuman(out, "No artifacts in %s\n", a.cfg.Storage.ArtifactDir)
			}
			for _, m := range res.Artifacts {
				writeHuman(out, "%-10s v%-4d %-10s %8d bytes  %s  %s\n",
					m.Name, m.Version, m.ModelType, m.SizeBytes, m.TrainedAt.Format("2006-01-02T15:04:05Z"), shortHash(m.Hash))
			}
			for _, e := range res.Registry {
				writeHuman(out, "registry %-10s %-20s %s\n", e.ModelName, e.ModelVersion, e.CreatedAt.Format("2006-01-02T15:04:05Z"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withRegistry, "registry", false, "include DuckDB registry entries")
	return cmd
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
