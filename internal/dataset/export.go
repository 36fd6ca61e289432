// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tomtom215/wayfarer/internal/logging"
	"github.com/tomtom215/wayfarer/internal/recommend/algorithms"
)

// Supported export formats.
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// table is one staged export: a schema, its rows and a target file.
type table struct {
	name    string
	columns []string // "name TYPE"
	rows    [][]any
}

// Export writes the non-empty parts of c into dir as format files and
// returns their paths.
func (l *Loader) Export(ctx context.Context, c *Corpus, dir, format string) (Paths, error) {
	var copyOpts string
	switch format {
	case FormatCSV:
		copyOpts = "(FORMAT CSV, HEADER true)"
	case FormatParquet:
		copyOpts = "(FORMAT PARQUET, COMPRESSION 'ZSTD')"
	default:
		return Paths{}, fmt.Errorf("%w: format %q", ErrUnsupportedFile, format)
	}
	// Use 0750 permissions (owner: rwx, group: rx, other: none) per gosec G301
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Paths{}, fmt.Errorf("failed to create export directory %s: %w", dir, err)
	}

	// Staging tables live on one pinned connection.
	conn, err := l.conn.Conn(ctx)
	if err != nil {
		return Paths{}, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	var paths Paths
	targets := []struct {
		dst *string
		tbl table
	}{
		{&paths.Triplets, tripletTable(c.Triplets)},
		{&paths.Pairs, pairTable(c.Towers.Pairs)},
		{&paths.UserFeatures, featureTable("user_features", c.Towers.UserIDs, c.Towers.UserFeatures)},
		{&paths.ItemFeatures, featureTable("item_features", c.Towers.ItemIDs, c.Towers.ItemFeatures)},
		{&paths.Sequences, sequenceTable(c.SequenceUsers, c.Sequences)},
		{&paths.Examples, exampleTable(c.Examples)},
	}
	for _, t := range targets {
		if len(t.tbl.rows) == 0 {
			continue
		}
		path := filepath.Join(dir, t.tbl.name+"."+format)
		if err := copyTable(ctx, conn, t.tbl, path, copyOpts); err != nil {
			return Paths{}, err
		}
		*t.dst = path
		logging.Debug().Str("path", path).Int("rows", len(t.tbl.rows)).Msg("Dataset file exported")
	}
	return paths, nil
}

func copyTable(ctx context.Context, conn *sql.Conn, t table, path, opts string) error {
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("CREATE OR REPLACE TABLE export_%s (%s)",
		t.name, strings.Join(t.columns, ", "))); err != nil {
		return fmt.Errorf("failed to stage %s: %w", t.name, err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), "DROP TABLE IF EXISTS export_"+t.name); err != nil {
			// Non-fatal error, just log
			logging.Warn().Err(err).Str("table", t.name).Msg("Failed to drop staging table")
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin %s insert: %w", t.name, err)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO export_%s VALUES (%s)", t.name, placeholders))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare %s insert: %w", t.name, err)
	}
	for _, row := range t.rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert %s row: %w", t.name, err)
		}
	}
	_ = stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s rows: %w", t.name, err)
	}

	query := fmt.Sprintf("COPY export_%s TO %s %s", t.name, quoteLiteral(path), opts)
	if _, err := conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to export %s: %w", t.name, err)
	}
	return nil
}

func tripletTable(ts []algorithms.Triplet) table {
	t := table{name: "triplets", columns: []string{"user_id VARCHAR", "pos_item VARCHAR", "neg_item VARCHAR"}}
	for _, x := range ts {
		t.rows = append(t.rows, []any{x.UserID, x.PosItemID, x.NegItemID})
	}
	return t
}

func pairTable(ps []algorithms.PositivePair) table {
	t := table{name: "pairs", columns: []string{"user_id VARCHAR", "item_id VARCHAR"}}
	for _, p := range ps {
		t.rows = append(t.rows, []any{p.UserID, p.ItemID})
	}
	return t
}

func featureTable(name string, ids []string, rows [][]float64) table {
	t := table{name: name, columns: []string{"id VARCHAR"}}
	if len(rows) == 0 {
		return t
	}
	for k := range rows[0] {
		t.columns = append(t.columns, fmt.Sprintf("f%d DOUBLE", k))
	}
	for i, id := range ids {
		if i >= len(rows) {
			break
		}
		row := []any{id}
		for _, v := range rows[i] {
			row = append(row, v)
		}
		t.rows = append(t.rows, row)
	}
	return t
}

func sequenceTable(users []string, seqs [][]string) table {
	t := table{name: "sequences", columns: []string{"user_id VARCHAR", "item_id VARCHAR", "ts BIGINT"}}
	for i, u := range users {
		if i >= len(seqs) {
			break
		}
		for ts, item := range seqs[i] {
			t.rows = append(t.rows, []any{u, item, int64(ts)})
		}
	}
	return t
}

func exampleTable(exs []Example) table {
	t := table{name: "examples", columns: []string{"user_id VARCHAR", "item_id VARCHAR"}}
	for _, f := range algorithms.FeatureNames {
		t.columns = append(t.columns, f+" DOUBLE")
	}
	t.columns = append(t.columns, "label DOUBLE")
	for _, ex := range exs {
		f := ex.Features
		t.rows = append(t.rows, []any{
			ex.UserID, ex.ItemID,
			f.QualityScore, f.ImpressionCount, f.AcceptanceCount,
			f.TasteDivergence, f.GroupDivergence, ex.Label,
		})
	}
	return t
}
