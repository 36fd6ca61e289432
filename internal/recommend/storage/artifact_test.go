// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/wayfarer/internal/recommend/numeric"
)

type testConfig struct {
	Factors int     `json:"factors"`
	Rate    float64 `json:"rate"`
}

func newTestArtifact(t *testing.T) *Artifact {
	t.Helper()
	a, err := NewArtifact("bpr", "", testConfig{Factors: 2, Rate: 0.05}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewArtifact() error = %v", err)
	}
	m, err := numeric.MatrixFromData(2, 2, []float64{0.1, -0.2, 1.0 / 3.0, 4e-12})
	if err != nil {
		t.Fatalf("MatrixFromData() error = %v", err)
	}
	a.PutMatrix("user_factors", m)
	a.PutVector("bias", []float64{0.5, 0.25})
	a.IDMaps["users"] = []string{"u0", "u1"}
	a.LossHistory = []float64{0.69, 0.5}
	return a
}

func TestWriteReadArtifactRoundTrip(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"model.json", "model.json.gz"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), name)
			orig := newTestArtifact(t)

			hash, err := WriteArtifact(path, orig)
			if err != nil {
				t.Fatalf("WriteArtifact() error = %v", err)
			}
			if len(hash) != 64 {
				t.Errorf("hash length = %d, want 64", len(hash))
			}

			got, gotHash, err := ReadArtifact(path)
			if err != nil {
				t.Fatalf("ReadArtifact() error = %v", err)
			}
			if gotHash != hash {
				t.Errorf("hash on load = %s, want %s", gotHash, hash)
			}
			if got.ModelName != "bpr" || got.FormatVersion != FormatVersion {
				t.Errorf("header = %q v%d", got.ModelName, got.FormatVersion)
			}
			m, err := got.Matrix("user_factors")
			if err != nil {
				t.Fatalf("Matrix() error = %v", err)
			}
			want := []float64{0.1, -0.2, 1.0 / 3.0, 4e-12}
			for i := range want {
				if m.Data[i] != want[i] {
					t.Errorf("Data[%d] = %v, want %v", i, m.Data[i], want[i])
				}
			}
			var cfg testConfig
			if err := got.DecodeConfig(&cfg); err != nil || cfg.Factors != 2 {
				t.Errorf("DecodeConfig() = %+v, %v", cfg, err)
			}
			if len(got.IDMaps["users"]) != 2 {
				t.Errorf("id map lost: %v", got.IDMaps)
			}
		})
	}
}

func TestReadArtifactRejectsTampering(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.json")
	if _, err := WriteArtifact(path, newTestArtifact(t)); err != nil {
		t.Fatalf("WriteArtifact() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := append([]byte{}, data...)
	tampered = append(tampered, ' ')
	if err := os.WriteFile(path, tampered, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, _, err := ReadArtifact(path); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("ReadArtifact() error = %v, want ErrChecksumMismatch", err)
	}
	if _, err := VerifyArtifact(path); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("VerifyArtifact() error = %v, want ErrChecksumMismatch", err)
	}
}

func TestReadArtifactMissingChecksum(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.json")
	if _, err := WriteArtifact(path, newTestArtifact(t)); err != nil {
		t.Fatalf("WriteArtifact() error = %v", err)
	}
	if err := os.Remove(path + ChecksumSuffix); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ReadArtifact(path); !errors.Is(err, ErrChecksumMissing) {
		t.Errorf("ReadArtifact() error = %v, want ErrChecksumMissing", err)
	}
}

func TestReadArtifactExpect(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.json")
	hash, err := WriteArtifact(path, newTestArtifact(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := ReadArtifactExpect(path, hash); err != nil {
		t.Errorf("ReadArtifactExpect(correct) error = %v", err)
	}
	if _, _, err := ReadArtifactExpect(path, HashBytes([]byte("other"))); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("ReadArtifactExpect(wrong) error = %v, want ErrChecksumMismatch", err)
	}
}

func TestArtifactValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(a *Artifact)
		want   error
	}{
		{"valid", func(*Artifact) {}, nil},
		{"future format", func(a *Artifact) { a.FormatVersion = 99 }, ErrUnsupportedFormat},
		{"bad shape", func(a *Artifact) { a.Arrays[0].Shape = []int{3, 3} }, ErrArtifactCorrupt},
		{"bad dtype", func(a *Artifact) { a.Arrays[0].DType = "float32" }, ErrArtifactCorrupt},
		{"no type", func(a *Artifact) { a.ModelType = "" }, ErrArtifactCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := newTestArtifact(t)
			tt.mutate(a)
			err := a.Validate()
			if tt.want == nil && err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestArtifactAccessors(t *testing.T) {
	t.Parallel()

	a := newTestArtifact(t)
	if _, err := a.Matrix("missing"); !errors.Is(err, ErrArtifactCorrupt) {
		t.Errorf("Matrix(missing) error = %v", err)
	}
	if _, err := a.Matrix("bias"); !errors.Is(err, ErrArtifactCorrupt) {
		t.Errorf("Matrix(vector) error = %v, want rank error", err)
	}
	v, err := a.Vector("bias")
	if err != nil || len(v) != 2 {
		t.Errorf("Vector(bias) = %v, %v", v, err)
	}
	if err := a.ExpectType("sasrec"); !errors.Is(err, ErrModelTypeMismatch) {
		t.Errorf("ExpectType() error = %v", err)
	}
}
