// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/wayfarer/internal/recommend/pipeline"
)

func newPredictCmd(a *app) *cobra.Command {
	var (
		requestPath string
		k           int
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Rank candidates for one request",
		Long: `Load the latest artifacts and rank candidates for a JSON request.

The request names a user and optionally a feature vector, a chronological
history, explicit candidates and items to exclude:

  {"user_id": "user_3", "history": ["item_1", "item_5"], "k": 5}

Examples:
  wayfarer predict --request req.json
  echo '{"user_id":"user_3"}' | wayfarer predict --human`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			req, err := readRequest(requestPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if k > 0 {
				req.K = k
			}

			comp, err := a.open(ctx, false)
			if err != nil {
				return err
			}
			defer func() { _ = comp.Close() }()

			n, err := comp.engine.LoadLatest(ctx)
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("no trained models in %s; run wayfarer train first", a.cfg.Storage.ArtifactDir)
			}

			resp, err := comp.engine.Recommend(ctx, req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !a.human {
				return writeJSON(out, resp)
			}
			writeHuman(out, "%d of %d candidates via %s (cold_start=%t)\n",
				len(resp.Items), resp.TotalCandidates, strings.Join(resp.Metadata.Stages, ","), resp.Metadata.ColdStart)
			for i, item := range resp.Items {
				writeHuman(out, "%3d. %-24s %.6f\n", i+1, item.ItemID, item.Score)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&requestPath, "request", "-", "request JSON file, - for stdin")
	cmd.Flags().IntVar(&k, "k", 0, "override the request's k")
	return cmd
}

func readRequest(path string, stdin io.Reader) (pipeline.Request, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" || path == "" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path) //nolint:gosec // G304: path is an operator-supplied flag
	}
	if err != nil {
		return pipeline.Request{}, fmt.Errorf("read request: %w", err)
	}
	var req pipeline.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return pipeline.Request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}
