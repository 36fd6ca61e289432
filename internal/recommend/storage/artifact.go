// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package storage

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/wayfarer/internal/recommend/numeric"
)

// FormatVersion is the artifact schema version written by this package.
const FormatVersion = 1

// DTypeFloat64 is the only array element type currently written.
const DTypeFloat64 = "float64"

// ArrayRecord is one named parameter array with explicit dtype and shape.
type ArrayRecord struct {
	Name  string    `json:"name"`
	DType string    `json:"dtype"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Artifact is the serialized closure of one trained model.
type Artifact struct {
	FormatVersion int                 `json:"format_version"`
	ModelType     string              `json:"model_type"`
	ModelName     string              `json:"model_name"`
	Config        json.RawMessage     `json:"config"`
	Arrays        []ArrayRecord       `json:"arrays"`
	IDMaps        map[string][]string `json:"id_maps,omitempty"`
	LossHistory   []float64           `json:"loss_history"`
	TrainedAt     time.Time           `json:"trained_at"`
}

// NewArtifact starts an artifact for modelType with config serialized
// as its config snapshot.
func NewArtifact(modelType, modelName string, config any, trainedAt time.Time) (*Artifact, error) {
	raw, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("encode %s config: %w", modelType, err)
	}
	if modelName == "" {
		modelName = modelType
	}
	return &Artifact{
		FormatVersion: FormatVersion,
		ModelType:     modelType,
		ModelName:     modelName,
		Config:        raw,
		IDMaps:        make(map[string][]string),
		TrainedAt:     trainedAt.UTC(),
	}, nil
}

// PutMatrix appends m under name.
func (a *Artifact) PutMatrix(name string, m *numeric.Matrix) {
	data := make([]float64, len(m.Data))
	copy(data, m.Data)
	a.Arrays = append(a.Arrays, ArrayRecord{
		Name:  name,
		DType: DTypeFloat64,
		Shape: []int{m.Rows, m.Cols},
		Data:  data,
	})
}

// PutVector appends v as a rank-1 array under name.
func (a *Artifact) PutVector(name string, v []float64) {
	data := make([]float64, len(v))
	copy(data, v)
	a.Arrays = append(a.Arrays, ArrayRecord{
		Name:  name,
		DType: DTypeFloat64,
		Shape: []int{len(v)},
		Data:  data,
	})
}

func (a *Artifact) array(name string) (*ArrayRecord, error) {
	for i := range a.Arrays {
		if a.Arrays[i].Name == name {
			return &a.Arrays[i], nil
		}
	}
	return nil, fmt.Errorf("%w: array %q not present", ErrArtifactCorrupt, name)
}

// Matrix returns the rank-2 array stored under name.
func (a *Artifact) Matrix(name string) (*numeric.Matrix, error) {
	rec, err := a.array(name)
	if err != nil {
		return nil, err
	}
	if len(rec.Shape) != 2 {
		return nil, fmt.Errorf("%w: array %q has rank %d, want 2", ErrArtifactCorrupt, name, len(rec.Shape))
	}
	m, err := numeric.MatrixFromData(rec.Shape[0], rec.Shape[1], rec.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: array %q: %v", ErrArtifactCorrupt, name, err) //nolint:errorlint // sentinel carries the class
	}
	return m, nil
}

// Vector returns the rank-1 array stored under name.
func (a *Artifact) Vector(name string) ([]float64, error) {
	rec, err := a.array(name)
	if err != nil {
		return nil, err
	}
	if len(rec.Shape) != 1 || rec.Shape[0] != len(rec.Data) {
		return nil, fmt.Errorf("%w: array %q is not a vector of length %d", ErrArtifactCorrupt, name, len(rec.Data))
	}
	return rec.Data, nil
}

// DecodeConfig unmarshals the config snapshot into v.
func (a *Artifact) DecodeConfig(v any) error {
	if err := json.Unmarshal(a.Config, v); err != nil {
		return fmt.Errorf("%w: config: %v", ErrArtifactCorrupt, err) //nolint:errorlint // sentinel carries the class
	}
	return nil
}

// ExpectType returns ErrModelTypeMismatch unless the artifact holds modelType.
func (a *Artifact) ExpectType(modelType string) error {
	if a.ModelType != modelType {
		return fmt.Errorf("%w: have %q, want %q", ErrModelTypeMismatch, a.ModelType, modelType)
	}
	return nil
}

// Validate checks the format version and that every array's data length
// matches its shape.
func (a *Artifact) Validate() error {
	if a.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedFormat, a.FormatVersion)
	}
	if a.ModelType == "" {
		return fmt.Errorf("%w: missing model_type", ErrArtifactCorrupt)
	}
	for i := range a.Arrays {
		rec := &a.Arrays[i]
		if rec.DType != DTypeFloat64 {
			return fmt.Errorf("%w: array %q has dtype %q", ErrArtifactCorrupt, rec.Name, rec.DType)
		}
		n := 1
		for _, d := range rec.Shape {
			if d < 0 {
				return fmt.Errorf("%w: array %q has negative dimension", ErrArtifactCorrupt, rec.Name)
			}
			n *= d
		}
		if n != len(rec.Data) {
			return fmt.Errorf("%w: array %q shape %v holds %d values, want %d",
				ErrArtifactCorrupt, rec.Name, rec.Shape, len(rec.Data), n)
		}
	}
	return nil
}
