// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{"creates directory if not exists", func(t *testing.T) string { return filepath.Join(t.TempDir(), "new_dir") }},
		{"uses existing directory", func(t *testing.T) string { return t.TempDir() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store, err := NewStore(tt.setup(t))
			if err != nil {
				t.Fatalf("NewStore() error = %v", err)
			}
			if store == nil {
				t.Fatal("NewStore() returned nil store")
			}
		})
	}
}

func TestStoreSaveLoadVersions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if got := store.NextVersion("bpr"); got != 1 {
		t.Errorf("NextVersion() on empty store = %d, want 1", got)
	}
	first, err := store.Save(ctx, newTestArtifact(t))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if got := store.NextVersion("bpr"); got != 2 {
		t.Errorf("NextVersion() after one save = %d, want 2", got)
	}
	second, err := store.Save(ctx, newTestArtifact(t))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if first.Version != 1 || second.Version != 2 {
		t.Errorf("versions = %d, %d, want 1, 2", first.Version, second.Version)
	}
	if latest, ok := store.Latest("bpr"); !ok || latest != 2 {
		t.Errorf("Latest() = %d, %v, want 2, true", latest, ok)
	}

	a, meta, err := store.Load(ctx, "bpr", 0)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if meta.Version != 2 || meta.Hash != second.Hash || a.ModelType != "bpr" {
		t.Errorf("Load() meta = %+v", meta)
	}
	if meta.Epochs != 2 || meta.SizeBytes == 0 {
		t.Errorf("Load() meta epochs=%d size=%d", meta.Epochs, meta.SizeBytes)
	}

	if _, _, err := store.Load(ctx, "bpr", 7); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Load(v7) error = %v, want ErrModelNotFound", err)
	}
	if _, _, err := store.Load(ctx, "dlrm", 0); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Load(unknown) error = %v, want ErrModelNotFound", err)
	}
}

func TestStoreRescansDirectory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := store.Save(ctx, newTestArtifact(t)); err != nil {
			t.Fatal(err)
		}
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := reopened.Versions("bpr"); len(got) != 3 || got[2] != 3 {
		t.Errorf("Versions() after reopen = %v, want [1 2 3]", got)
	}

	// A write through the first handle is invisible to the second until Rescan.
	if _, err := store.Save(ctx, newTestArtifact(t)); err != nil {
		t.Fatal(err)
	}
	if latest, _ := reopened.Latest("bpr"); latest != 3 {
		t.Errorf("Latest() before Rescan = %d, want 3", latest)
	}
	if err := reopened.Rescan(ctx); err != nil {
		t.Fatalf("Rescan() error = %v", err)
	}
	if latest, _ := reopened.Latest("bpr"); latest != 4 {
		t.Errorf("Latest() after Rescan = %d, want 4", latest)
	}
}

func TestStorePrune(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := store.Save(ctx, newTestArtifact(t)); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := store.Prune(ctx, "bpr", 2)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("Prune() removed %d, want 3", removed)
	}
	if got := store.Versions("bpr"); len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Errorf("Versions() = %v, want [4 5]", got)
	}
	if _, err := os.Stat(store.Path("bpr", 1) + ChecksumSuffix); !os.IsNotExist(err) {
		t.Error("checksum file of pruned version should be removed")
	}
}

func TestStoreListAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	a := newTestArtifact(t)
	a.ModelName = "alpha"
	if _, err := store.Save(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Save(ctx, newTestArtifact(t)); err != nil {
		t.Fatal(err)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "bpr" {
		t.Errorf("List() = %+v", list)
	}

	if err := store.Delete(ctx, "alpha", 1); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := store.Latest("alpha"); ok {
		t.Error("alpha should have no versions after Delete")
	}
}

func TestParseModelFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		name    string
		version int
	}{
		{"bpr_v1", "bpr", 1},
		{"two_tower_v12", "two_tower", 12},
		{"bpr", "", 0},
		{"bpr_vx", "", 0},
		{"_v3", "", 0},
	}
	for _, tt := range tests {
		name, version := parseModelFilename(tt.in)
		if name != tt.name || version != tt.version {
			t.Errorf("parseModelFilename(%q) = %q, %d, want %q, %d", tt.in, name, version, tt.name, tt.version)
		}
	}
}
