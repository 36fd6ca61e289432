// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package storage

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
)

// ChecksumSuffix is appended to an artifact path to name its hash file.
const ChecksumSuffix = ".sha256"

// HashBytes returns the hex SHA-256 of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// WriteArtifact encodes a, writes it to path (gzip when path ends in .gz)
// together with its checksum file, and returns the artifact hash.
func WriteArtifact(path string, a *Artifact) (string, error) {
	if err := a.Validate(); err != nil {
		return "", fmt.Errorf("refusing to write invalid artifact: %w", err)
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}
	hash := HashBytes(raw)

	payload := raw
	if isGzip(path) {
		var buf bytes.Buffer
		gzw := gzip.NewWriter(&buf)
		if _, err := gzw.Write(raw); err != nil {
			return "", fmt.Errorf("compress artifact: %w", err)
		}
		if err := gzw.Close(); err != nil {
			return "", fmt.Errorf("finalize compression: %w", err)
		}
		payload = buf.Bytes()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}
	if err := writeFileAtomic(path, payload); err != nil {
		return "", err
	}
	line := hash + "  " + filepath.Base(path) + "\n"
	if err := writeFileAtomic(path+ChecksumSuffix, []byte(line)); err != nil {
		return "", err
	}
	return hash, nil
}

// ReadArtifact reads the artifact at path, verifies it against its
// checksum file, and returns it with its hash.
func ReadArtifact(path string) (*Artifact, string, error) {
	want, err := readChecksum(path)
	if err != nil {
		return nil, "", err
	}
	return ReadArtifactExpect(path, want)
}

// ReadArtifactExpect reads the artifact at path and verifies it against
// the supplied hash, for callers that hold the hash elsewhere (such as the
// model registry).
func ReadArtifactExpect(path, wantHash string) (*Artifact, string, error) {
	raw, err := readPayload(path)
	if err != nil {
		return nil, "", err
	}
	got := HashBytes(raw)
	if !strings.EqualFold(got, wantHash) {
		return nil, "", fmt.Errorf("%w: %s: expected %s, got %s", ErrChecksumMismatch, path, wantHash, got)
	}

	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrArtifactCorrupt, path, err) //nolint:errorlint // sentinel carries the class
	}
	if err := a.Validate(); err != nil {
		return nil, "", err
	}
	return &a, got, nil
}

// VerifyArtifact recomputes the hash of the artifact at path and compares
// it with its checksum file without decoding the model.
func VerifyArtifact(path string) (string, error) {
	want, err := readChecksum(path)
	if err != nil {
		return "", err
	}
	raw, err := readPayload(path)
	if err != nil {
		return "", err
	}
	got := HashBytes(raw)
	if !strings.EqualFold(got, want) {
		return got, fmt.Errorf("%w: %s: expected %s, got %s", ErrChecksumMismatch, path, want, got)
	}
	return got, nil
}

func readPayload(path string) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // artifact paths come from configuration
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	if !isGzip(path) {
		return data, nil
	}
	gzr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactCorrupt, path, err) //nolint:errorlint // sentinel carries the class
	}
	defer func() { _ = gzr.Close() }() //nolint:errcheck // close after full read is not actionable
	raw, err := io.ReadAll(gzr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactCorrupt, path, err) //nolint:errorlint // sentinel carries the class
	}
	return raw, nil
}

func readChecksum(path string) (string, error) {
	data, err := os.ReadFile(path + ChecksumSuffix) //nolint:gosec // derived from artifact path
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrChecksumMissing, path)
	}
	if err != nil {
		return "", fmt.Errorf("read checksum: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: %s: empty checksum file", ErrChecksumMissing, path)
	}
	return fields[0], nil
}

// writeFileAtomic writes data to a temp file beside path and renames it
// into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) } //nolint:errcheck // best-effort cleanup

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close() //nolint:errcheck // already failing
		cleanup()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close() //nolint:errcheck // already failing
		cleanup()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

func isGzip(path string) bool {
	return strings.HasSuffix(path, ".gz")
}
