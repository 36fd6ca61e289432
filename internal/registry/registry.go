// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/wayfarer/internal/logging"
	"github.com/tomtom215/wayfarer/internal/validation"
)

// ErrEntryNotFound is returned by Latest when a model has no rows.
var ErrEntryNotFound = errors.New("registry entry not found")

// Config configures the DuckDB connection.
type Config struct {
	// Path is the database file. Empty or ":memory:" keeps the registry in
	// memory for the life of the process.
	Path string

	// MaxMemory is passed to DuckDB's max_memory setting.
	MaxMemory string

	// Threads defaults to runtime.NumCPU().
	Threads int
}

// Entry is one registry row.
type Entry struct {
	ModelName    string    `json:"model_name" validate:"required,max=128"`
	ModelVersion string    `json:"model_version" validate:"required,max=64"`
	ModelType    string    `json:"model_type" validate:"required,model_type"`
	ArtifactPath string    `json:"artifact_path" validate:"required"`
	ArtifactHash string    `json:"artifact_hash" validate:"required,sha256hex"`
	ConfigJSON   string    `json:"config_json" validate:"required"`
	MetricsJSON  string    `json:"metrics_json" validate:"required"`
	CreatedAt    time.Time `json:"created_at"`
}

// hashPrefixLen is the number of hash characters in a version key.
const hashPrefixLen = 12

// VersionKey builds the registry version for store version n.
func VersionKey(n int, hash string) string {
	if len(hash) > hashPrefixLen {
		hash = hash[:hashPrefixLen]
	}
	return fmt.Sprintf("v%d-%s", n, hash)
}

const schema = `CREATE TABLE IF NOT EXISTS model_registry (
	model_name    VARCHAR NOT NULL,
	model_version VARCHAR NOT NULL,
	model_type    VARCHAR NOT NULL,
	artifact_path VARCHAR NOT NULL,
	artifact_hash VARCHAR NOT NULL,
	config_json   VARCHAR NOT NULL,
	metrics_json  VARCHAR NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	PRIMARY KEY (model_name, model_version)
)`

// Registry is the DuckDB-backed model registry.
type Registry struct {
	conn *sql.DB
	path string
}

// Open connects to DuckDB and creates the schema.
func Open(ctx context.Context, cfg Config) (*Registry, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		// Use 0750 permissions (owner: rwx, group: rx, other: none) per gosec G301
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create registry directory %s: %w", dir, err)
			}
		}
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "512MB"
	}

	// Disable auto-install/auto-load; the registry needs no extensions.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		path, threads, maxMemory)
	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		_ = conn.Close() // best-effort cleanup
		return nil, fmt.Errorf("failed to create registry schema: %w", err)
	}

	logging.Debug().Str("path", path).Msg("Model registry opened")
	return &Registry{conn: conn, path: path}, nil
}

// Path returns the database path.
func (r *Registry) Path() string {
	return r.path
}

// Ping checks the connection.
func (r *Registry) Ping(ctx context.Context) error {
	return r.conn.PingContext(ctx)
}

// Close closes the connection.
func (r *Registry) Close() error {
	return r.conn.Close()
}

// Register inserts e unless (model_name, model_version) already exists.
// It reports whether a row was written.
func (r *Registry) Register(ctx context.Context, e Entry) (bool, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if verr := validation.ValidateStruct(&e); verr != nil {
		return false, fmt.Errorf("invalid registry entry: %w", verr)
	}

	query := `INSERT INTO model_registry (
		model_name, model_version, model_type, artifact_path,
		artifact_hash, config_json, metrics_json, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (model_name, model_version) DO NOTHING`

	res, err := r.conn.ExecContext(ctx, query,
		e.ModelName, e.ModelVersion, e.ModelType, e.ArtifactPath,
		e.ArtifactHash, e.ConfigJSON, e.MetricsJSON, e.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to register %s %s: %w", e.ModelName, e.ModelVersion, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read registry insert result: %w", err)
	}
	return n > 0, nil
}

const selectColumns = `model_name, model_version, model_type, artifact_path,
	artifact_hash, config_json, metrics_json, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (Entry, error) {
	var e Entry
	err := s.Scan(&e.ModelName, &e.ModelVersion, &e.ModelType, &e.ArtifactPath,
		&e.ArtifactHash, &e.ConfigJSON, &e.MetricsJSON, &e.CreatedAt)
	return e, err
}

// Latest returns the newest row for name.
func (r *Registry) Latest(ctx context.Context, name string) (*Entry, error) {
	query := `SELECT ` + selectColumns + `
	FROM model_registry WHERE model_name = ?
	ORDER BY created_at DESC, model_version DESC LIMIT 1`

	e, err := scanEntry(r.conn.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest %s: %w", name, err)
	}
	return &e, nil
}

// List returns every row ordered by model name and creation time.
func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	query := `SELECT ` + selectColumns + `
	FROM model_registry ORDER BY model_name, created_at, model_version`

	rows, err := r.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list registry: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registry row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate registry: %w", err)
	}
	return out, nil
}

// Count returns the number of rows.
func (r *Registry) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM model_registry`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count registry rows: %w", err)
	}
	return n, nil
}
