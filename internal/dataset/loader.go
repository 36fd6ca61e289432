// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/wayfarer/internal/logging"
	"github.com/tomtom215/wayfarer/internal/metrics"
	"github.com/tomtom215/wayfarer/internal/recommend/algorithms"
)

// ErrUnsupportedFile is returned for a path that is neither CSV nor Parquet.
var ErrUnsupportedFile = errors.New("unsupported dataset file")

// ErrMissingColumn is returned when a file lacks a required column.
var ErrMissingColumn = errors.New("missing dataset column")

// Paths names the input files of a corpus. Empty paths are skipped.
type Paths struct {
	Triplets     string `json:"triplets,omitempty" koanf:"triplets"`
	Pairs        string `json:"pairs,omitempty" koanf:"pairs"`
	UserFeatures string `json:"user_features,omitempty" koanf:"user_features"`
	ItemFeatures string `json:"item_features,omitempty" koanf:"item_features"`
	Sequences    string `json:"sequences,omitempty" koanf:"sequences"`
	Examples     string `json:"examples,omitempty" koanf:"examples"`
}

// Loader reads dataset files through an in-memory DuckDB connection.
type Loader struct {
	conn *sql.DB
}

// NewLoader opens an in-memory DuckDB database.
func NewLoader(ctx context.Context) (*Loader, error) {
	conn, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset engine: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close() // best-effort cleanup
		return nil, fmt.Errorf("failed to open dataset engine: %w", err)
	}
	return &Loader{conn: conn}, nil
}

// Close releases the DuckDB connection.
func (l *Loader) Close() error {
	return l.conn.Close()
}

// quoteLiteral renders s as a SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// quoteIdent renders s as a SQL quoted identifier.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// sourceExpr returns the table function reading path.
func sourceExpr(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv", ".tsv", ".txt":
		return "read_csv_auto(" + quoteLiteral(path) + ", header = true)", nil
	case ".parquet", ".pq":
		return "read_parquet(" + quoteLiteral(path) + ")", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}
}

// columns returns the lower-cased column names of path.
func (l *Loader) columns(ctx context.Context, src string) ([]string, error) {
	rows, err := l.conn.QueryContext(ctx, "SELECT * FROM "+src+" LIMIT 0")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	for i := range cols {
		cols[i] = strings.ToLower(cols[i])
	}
	return cols, nil
}

func require(path string, have []string, want ...string) error {
	set := make(map[string]bool, len(have))
	for _, c := range have {
		set[c] = true
	}
	for _, w := range want {
		if !set[w] {
			return fmt.Errorf("%w: %s has no %q column", ErrMissingColumn, path, w)
		}
	}
	return nil
}

func hasColumn(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}
	return false
}

// query opens path, checks the required columns and runs the SELECT built
// by build from the source expression.
func (l *Loader) query(ctx context.Context, path string, required []string, build func(src string, cols []string) string) (*sql.Rows, error) {
	src, err := sourceExpr(path)
	if err != nil {
		return nil, err
	}
	cols, err := l.columns(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := require(path, cols, required...); err != nil {
		return nil, err
	}
	rows, err := l.conn.QueryContext(ctx, build(src, cols))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", path, err)
	}
	return rows, nil
}

func finish(rows *sql.Rows, path string, n int) error {
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	metrics.RecordRowsLoaded(filepath.Base(path), n)
	logging.Debug().Str("path", path).Int("rows", n).Msg("Dataset file loaded")
	return nil
}

// Triplets reads BPR training triplets.
func (l *Loader) Triplets(ctx context.Context, path string) ([]algorithms.Triplet, error) {
	rows, err := l.query(ctx, path, []string{"user_id", "pos_item", "neg_item"}, func(src string, _ []string) string {
		return `SELECT CAST(user_id AS VARCHAR), CAST(pos_item AS VARCHAR), CAST(neg_item AS VARCHAR)
			FROM ` + src
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []algorithms.Triplet
	for rows.Next() {
		var t algorithms.Triplet
		if err := rows.Scan(&t.UserID, &t.PosItemID, &t.NegItemID); err != nil {
			return nil, fmt.Errorf("failed to scan triplet: %w", err)
		}
		out = append(out, t)
	}
	return out, finish(rows, path, len(out))
}

// Pairs reads Two-Tower positive pairs.
func (l *Loader) Pairs(ctx context.Context, path string) ([]algorithms.PositivePair, error) {
	rows, err := l.query(ctx, path, []string{"user_id", "item_id"}, func(src string, _ []string) string {
		return `SELECT CAST(user_id AS VARCHAR), CAST(item_id AS VARCHAR) FROM ` + src
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []algorithms.PositivePair
	for rows.Next() {
		var p algorithms.PositivePair
		if err := rows.Scan(&p.UserID, &p.ItemID); err != nil {
			return nil, fmt.Errorf("failed to scan pair: %w", err)
		}
		out = append(out, p)
	}
	return out, finish(rows, path, len(out))
}

// Features reads an id column followed by numeric feature columns, in
// file column order.
func (l *Loader) Features(ctx context.Context, path string) ([]string, [][]float64, error) {
	var featureCols []string
	rows, err := l.query(ctx, path, []string{"id"}, func(src string, cols []string) string {
		exprs := []string{"CAST(id AS VARCHAR)"}
		for _, c := range cols {
			if c == "id" {
				continue
			}
			featureCols = append(featureCols, c)
			exprs = append(exprs, "CAST("+quoteIdent(c)+" AS DOUBLE)")
		}
		return "SELECT " + strings.Join(exprs, ", ") + " FROM " + src
	})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	var features [][]float64
	for rows.Next() {
		var id string
		row := make([]float64, len(featureCols))
		dest := make([]any, 0, len(row)+1)
		dest = append(dest, &id)
		for i := range row {
			dest = append(dest, &row[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, fmt.Errorf("failed to scan features: %w", err)
		}
		ids = append(ids, id)
		features = append(features, row)
	}
	return ids, features, finish(rows, path, len(ids))
}

// Sequences reads interaction events and groups them into per-user
// chronological sequences. Users are returned in id order.
func (l *Loader) Sequences(ctx context.Context, path string) ([]string, [][]string, error) {
	rows, err := l.query(ctx, path, []string{"user_id", "item_id", "ts"}, func(src string, _ []string) string {
		return `SELECT CAST(user_id AS VARCHAR) AS u, CAST(item_id AS VARCHAR)
			FROM ` + src + ` ORDER BY u, ts`
	})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []string
	var seqs [][]string
	n := 0
	for rows.Next() {
		var u, item string
		if err := rows.Scan(&u, &item); err != nil {
			return nil, nil, fmt.Errorf("failed to scan sequence event: %w", err)
		}
		if len(users) == 0 || users[len(users)-1] != u {
			users = append(users, u)
			seqs = append(seqs, nil)
		}
		seqs[len(seqs)-1] = append(seqs[len(seqs)-1], item)
		n++
	}
	return users, seqs, finish(rows, path, n)
}

// Examples reads DLRM labeled examples.
func (l *Loader) Examples(ctx context.Context, path string) ([]Example, error) {
	required := append([]string{"item_id"}, algorithms.FeatureNames[:]...)
	required = append(required, "label")
	rows, err := l.query(ctx, path, required, func(src string, cols []string) string {
		user := "''"
		if hasColumn(cols, "user_id") {
			user = "COALESCE(CAST(user_id AS VARCHAR), '')"
		}
		exprs := []string{user, "CAST(item_id AS VARCHAR)"}
		for _, f := range algorithms.FeatureNames {
			exprs = append(exprs, "CAST("+f+" AS DOUBLE)")
		}
		exprs = append(exprs, "CAST(label AS DOUBLE)")
		return "SELECT " + strings.Join(exprs, ", ") + " FROM " + src
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Example
	for rows.Next() {
		var ex Example
		f := &ex.Features
		if err := rows.Scan(&ex.UserID, &ex.ItemID,
			&f.QualityScore, &f.ImpressionCount, &f.AcceptanceCount,
			&f.TasteDivergence, &f.GroupDivergence, &ex.Label); err != nil {
			return nil, fmt.Errorf("failed to scan example: %w", err)
		}
		out = append(out, ex)
	}
	return out, finish(rows, path, len(out))
}

// LoadCorpus reads every non-empty path into one Corpus.
func (l *Loader) LoadCorpus(ctx context.Context, p Paths) (*Corpus, error) {
	c := &Corpus{}
	var err error
	if p.Triplets != "" {
		if c.Triplets, err = l.Triplets(ctx, p.Triplets); err != nil {
			return nil, err
		}
	}
	if p.Pairs != "" {
		if c.Towers.Pairs, err = l.Pairs(ctx, p.Pairs); err != nil {
			return nil, err
		}
	}
	if p.UserFeatures != "" {
		if c.Towers.UserIDs, c.Towers.UserFeatures, err = l.Features(ctx, p.UserFeatures); err != nil {
			return nil, err
		}
	}
	if p.ItemFeatures != "" {
		if c.Towers.ItemIDs, c.Towers.ItemFeatures, err = l.Features(ctx, p.ItemFeatures); err != nil {
			return nil, err
		}
	}
	if p.Sequences != "" {
		if c.SequenceUsers, c.Sequences, err = l.Sequences(ctx, p.Sequences); err != nil {
			return nil, err
		}
	}
	if p.Examples != "" {
		if c.Examples, err = l.Examples(ctx, p.Examples); err != nil {
			return nil, err
		}
	}
	return c, nil
}
