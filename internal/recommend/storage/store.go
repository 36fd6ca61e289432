// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const artifactExt = ".json.gz"

// ModelMetadata describes one stored artifact version.
type ModelMetadata struct {
	Name          string    `json:"name"`
	Version       int       `json:"version"`
	ModelType     string    `json:"model_type"`
	Path          string    `json:"path"`
	Hash          string    `json:"hash"`
	SizeBytes     int64     `json:"size_bytes"`
	FormatVersion int       `json:"format_version"`
	TrainedAt     time.Time `json:"trained_at"`
	Epochs        int       `json:"epochs"`
}

// Store manages versioned artifacts in one directory.
type Store struct {
	baseDir string
	mu      sync.RWMutex

	// versions holds every version on disk per model name, ascending.
	versions map[string][]int
}

// NewStore opens (creating if needed) a store rooted at baseDir.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	s := &Store{
		baseDir:  baseDir,
		versions: make(map[string][]int),
	}
	if err := s.scan(); err != nil {
		return nil, fmt.Errorf("scan existing models: %w", err)
	}
	return s, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.baseDir
}

func (s *Store) scan() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), artifactExt) {
			continue
		}
		name, version := parseModelFilename(strings.TrimSuffix(entry.Name(), artifactExt))
		if name == "" {
			continue
		}
		s.versions[name] = append(s.versions[name], version)
	}
	for name := range s.versions {
		sort.Ints(s.versions[name])
	}
	return nil
}

// Rescan rereads the directory so versions written by another process
// become visible.
func (s *Store) Rescan(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions = make(map[string][]int)
	return s.scan()
}

// parseModelFilename splits "sasrec_v12" into ("sasrec", 12).
func parseModelFilename(base string) (string, int) {
	idx := strings.LastIndex(base, "_v")
	if idx <= 0 {
		return "", 0
	}
	version, err := strconv.Atoi(base[idx+2:])
	if err != nil || version <= 0 {
		return "", 0
	}
	return base[:idx], version
}

// Path returns the artifact path for name at version.
func (s *Store) Path(name string, version int) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s_v%d%s", name, version, artifactExt))
}

// Latest returns the highest stored version of name.
func (s *Store) Latest(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vs := s.versions[name]
	if len(vs) == 0 {
		return 0, false
	}
	return vs[len(vs)-1], true
}

// Versions returns every stored version of name, ascending.
func (s *Store) Versions(name string) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, len(s.versions[name]))
	copy(out, s.versions[name])
	return out
}

// NextVersion returns the version the next Save of name will use.
func (s *Store) NextVersion(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextVersionLocked(name)
}

func (s *Store) nextVersionLocked(name string) int {
	if vs := s.versions[name]; len(vs) > 0 {
		return vs[len(vs)-1] + 1
	}
	return 1
}

// Save writes a as the next version of its model name and returns that
// version's metadata.
func (s *Store) Save(ctx context.Context, a *Artifact) (*ModelMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	name := a.ModelName
	version := s.nextVersionLocked(name)
	path := s.Path(name, version)
	hash, err := WriteArtifact(path, a)
	if err != nil {
		return nil, fmt.Errorf("save %s v%d: %w", name, version, err)
	}
	s.versions[name] = append(s.versions[name], version)

	meta := metadataFor(a, name, version, path, hash)
	if info, err := os.Stat(path); err == nil {
		meta.SizeBytes = info.Size()
	}
	return meta, nil
}

// Load reads and verifies a stored artifact. Version 0 means latest.
func (s *Store) Load(ctx context.Context, name string, version int) (*Artifact, *ModelMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	path, version, err := s.resolve(name, version)
	if err != nil {
		return nil, nil, err
	}
	a, hash, err := ReadArtifact(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s v%d: %w", name, version, err)
	}
	meta := metadataFor(a, name, version, path, hash)
	if info, err := os.Stat(path); err == nil {
		meta.SizeBytes = info.Size()
	}
	return a, meta, nil
}

func (s *Store) resolve(name string, version int) (string, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vs := s.versions[name]
	if len(vs) == 0 {
		return "", 0, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	if version == 0 {
		version = vs[len(vs)-1]
	}
	idx := sort.SearchInts(vs, version)
	if idx == len(vs) || vs[idx] != version {
		return "", 0, fmt.Errorf("%w: %s v%d", ErrModelNotFound, name, version)
	}
	return s.Path(name, version), version, nil
}

// List returns metadata for the latest version of every stored model,
// sorted by name. Versions that fail verification are reported with an
// empty Hash rather than dropped.
func (s *Store) List(ctx context.Context) ([]ModelMetadata, error) {
	s.mu.RLock()
	names := make([]string, 0, len(s.versions))
	for name, vs := range s.versions {
		if len(vs) > 0 {
			names = append(names, name)
		}
	}
	s.mu.RUnlock()
	sort.Strings(names)

	out := make([]ModelMetadata, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, meta, err := s.Load(ctx, name, 0)
		if err != nil {
			version, _ := s.Latest(name)
			out = append(out, ModelMetadata{Name: name, Version: version, Path: s.Path(name, version)})
			continue
		}
		out = append(out, *meta)
	}
	return out, nil
}

// Delete removes one version and its checksum file.
func (s *Store) Delete(ctx context.Context, name string, version int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(name, version)
}

func (s *Store) deleteLocked(name string, version int) error {
	path := s.Path(name, version)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	_ = os.Remove(path + ChecksumSuffix) //nolint:errcheck // sidecar may already be gone

	vs := s.versions[name]
	kept := vs[:0]
	for _, v := range vs {
		if v != version {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		delete(s.versions, name)
	} else {
		s.versions[name] = kept
	}
	return nil
}

// Prune deletes all but the newest keep versions of name and returns how
// many were removed.
func (s *Store) Prune(ctx context.Context, name string, keep int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if keep < 1 {
		keep = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := append([]int(nil), s.versions[name]...)
	if len(vs) <= keep {
		return 0, nil
	}
	removed := 0
	for _, v := range vs[:len(vs)-keep] {
		if err := s.deleteLocked(name, v); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func metadataFor(a *Artifact, name string, version int, path, hash string) *ModelMetadata {
	return &ModelMetadata{
		Name:          name,
		Version:       version,
		ModelType:     a.ModelType,
		Path:          path,
		Hash:          hash,
		FormatVersion: a.FormatVersion,
		TrainedAt:     a.TrainedAt,
		Epochs:        len(a.LossHistory),
	}
}
