package model

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// StandardScaler standardizes features as (x - mean) / scale, matching the
// transform fitted at training time. It is immutable and safe to share.
type StandardScaler struct {
	mean  []float64
	scale []float64
}

// NewStandardScaler copies the fitted statistics. A zero scale is treated as
// one so that constant features pass through centered.
func NewStandardScaler(mean, scale []float64) (*StandardScaler, error) {
	if len(mean) == 0 || len(mean) != len(scale) {
		return nil, fmt.Errorf("scaler: %d means and %d scales", len(mean), len(scale))
	}
	s := &StandardScaler{
		mean:  append([]float64(nil), mean...),
		scale: append([]float64(nil), scale...),
	}
	for i, v := range s.scale {
		if v == 0 {
			s.scale[i] = 1
		}
	}
	return s, nil
}

// Features returns the expected row width.
func (s *StandardScaler) Features() int { return len(s.mean) }

// Scale returns a new standardized matrix; rows is left untouched.
func (s *StandardScaler) Scale(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(s.mean) {
			return nil, fmt.Errorf("scaler: row %d has %d features, want %d", i, len(row), len(s.mean))
		}
		dst := make([]float64, len(row))
		floats.SubTo(dst, row, s.mean)
		floats.Div(dst, s.scale)
		out[i] = dst
	}
	return out, nil
}
