// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

// Package main is the entry point for the wayfarer command.
//
// Wayfarer trains and serves a four-stage activity recommendation pipeline:
// BPR or Two-Tower retrieval, SASRec sequential reranking, DLRM scoring
// behind a trust gate, and optional MMR diversification.
//
// # Commands
//
//	wayfarer train      fit every model on the configured corpus and publish artifacts
//	wayfarer predict    rank candidates for one JSON request using the latest artifacts
//	wayfarer serve      run scheduled training, model reload and /metrics under a supervisor
//	wayfarer inspect    list stored artifacts and registry entries
//	wayfarer verify     check artifact checksums
//	wayfarer generate   write a synthetic corpus as CSV or Parquet
//
// # Configuration
//
// Configuration is loaded via koanf with layered sources (highest priority wins):
//   - Environment variables (WAYFARER_*)
//   - Config file (--config, WAYFARER_CONFIG, or ./wayfarer.yaml)
//   - Built-in defaults
//
// Output is JSON on stdout unless --human is set; logs go to stderr.
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the command context. A training run stops at
// the next epoch boundary; serve drains its supervisor tree.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/wayfarer/internal/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Exit codes.
const (
	ExitSuccess     = 0
	ExitError       = 1
	ExitConfigError = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		logging.Error().Err(err).Msg("Command failed")
		os.Exit(exitCode(err))
	}
	os.Exit(ExitSuccess)
}

// configError marks failures to load or validate configuration.
type configError struct {
	err error
}

func (e *configError) Error() string { return "configuration: " + e.err.Error() }

func (e *configError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ce *configError
	if errors.As(err, &ce) {
		return ExitConfigError
	}
	return ExitError
}
