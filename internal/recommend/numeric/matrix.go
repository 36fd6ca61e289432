// Wayfarer - Personalized Activity Recommendation Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wayfarer

package numeric

import (
	"fmt"
	"math/rand"
)

// Matrix is a dense row-major matrix backed by one contiguous buffer.
// As a layer weight it is laid out in x out, so MulVec computes x·W.
type Matrix struct {
	Rows int
	Cols int
	Data []float64
}

// NewMatrix returns a zeroed rows x cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// NewGaussianMatrix draws every entry from N(0, std^2) using rng.
func NewGaussianMatrix(rng *rand.Rand, rows, cols int, std float64) *Matrix {
	m := NewMatrix(rows, cols)
	for i := range m.Data {
		m.Data[i] = rng.NormFloat64() * std
	}
	return m
}

// MatrixFromData wraps data, checking that it holds exactly rows*cols values.
func MatrixFromData(rows, cols int, data []float64) (*Matrix, error) {
	if rows < 0 || cols < 0 || len(data) != rows*cols {
		return nil, fmt.Errorf("matrix data length %d does not match shape [%d %d]", len(data), rows, cols)
	}
	return &Matrix{Rows: rows, Cols: cols, Data: data}, nil
}

// Row returns row i as a slice view into Data.
func (m *Matrix) Row(i int) []float64 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// At returns element (i, j).
func (m *Matrix) At(i, j int) float64 {
	return m.Data[i*m.Cols+j]
}

// Set assigns element (i, j).
func (m *Matrix) Set(i, j int, v float64) {
	m.Data[i*m.Cols+j] = v
}

// Shape returns [Rows, Cols].
func (m *Matrix) Shape() []int {
	return []int{m.Rows, m.Cols}
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	data := make([]float64, len(m.Data))
	copy(data, m.Data)
	return &Matrix{Rows: m.Rows, Cols: m.Cols, Data: data}
}

// MulVec writes x·M (len(x) == Rows) into dst (len Cols) and returns it.
func (m *Matrix) MulVec(dst, x []float64) []float64 {
	dst = ensure(dst, m.Cols)
	Zero(dst)
	for i := 0; i < m.Rows; i++ {
		xi := x[i]
		if xi == 0 {
			continue
		}
		Axpy(dst, xi, m.Row(i))
	}
	return dst
}

// MulVecT writes M·y (len(y) == Cols) into dst (len Rows) and returns it.
// For a layer weight this maps an output gradient back to the input.
func (m *Matrix) MulVecT(dst, y []float64) []float64 {
	dst = ensure(dst, m.Rows)
	for i := 0; i < m.Rows; i++ {
		dst[i] = Dot(m.Row(i), y)
	}
	return dst
}

// AddOuter computes M += alpha * x yᵀ.
func (m *Matrix) AddOuter(alpha float64, x, y []float64) {
	for i := 0; i < m.Rows; i++ {
		a := alpha * x[i]
		if a == 0 {
			continue
		}
		Axpy(m.Row(i), a, y)
	}
}
