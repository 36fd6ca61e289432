// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/wayfarer/internal/recommend/storage"
)

type verifyResult struct {
	Path  string `json:"path"`
	Hash  string `json:"hash,omitempty"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify PATH...",
		Short: "Check artifact checksums",
		Long: `Recompute the SHA-256 of each artifact and compare it with its .sha256
sidecar without decoding the model. Exits non-zero if any artifact fails.

Examples:
  wayfarer verify models/sasrec_v3.json.gz
  wayfarer verify models/*.json.gz --human`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make([]verifyResult, 0, len(args))
			failed := 0
			for _, path := range args {
				hash, err := storage.VerifyArtifact(path)
				r := verifyResult{Path: path, Hash: hash, OK: err == nil}
				if err != nil {
					r.Error = err.Error()
					failed++
				}
				results = append(results, r)
			}

			out := cmd.OutOrStdout()
			if a.human {
				for _, r := range results {
					if r.OK {
						writeHuman(out, "ok      %s %s\n", r.Hash, r.Path)
					} else {
						writeHuman(out, "FAILED  %s: %s\n", r.Path, r.Error)
					}
				}
			} else if err := writeJSON(out, results); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d artifacts failed verification", failed, len(args))
			}
			return nil
		},
	}
}
