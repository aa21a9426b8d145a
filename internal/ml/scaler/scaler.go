// Package scaler standardizes feature columns to zero mean and unit variance
// using statistics learned from training data.
package scaler

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

// zeroVarianceTolerance is the std below which a column is treated as constant.
const zeroVarianceTolerance = 10 * 2.220446049250313e-16

// Params holds the fitted per-column mean and scale. Params are immutable
// after Fit and safe for concurrent use.
type Params struct {
	Means  []float64 `json:"means"`
	Scales []float64 `json:"scales"`

	// Samples is the number of rows the statistics were computed from.
	Samples int `json:"samples"`
}

// Fit computes the column means and population standard deviations of x.
// Every row must have the same width.
func Fit(x [][]float64) (*Params, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("scaler fit: %w", domain.ErrEmptyBatch)
	}
	width := len(x[0])
	if width == 0 {
		return nil, &domain.SchemaError{Reason: "scaler fit: rows have no columns"}
	}

	means := make([]float64, width)
	for i, row := range x {
		if len(row) != width {
			return nil, &domain.SchemaError{Reason: fmt.Sprintf("scaler fit: row %d has %d columns, want %d", i, len(row), width)}
		}
		for j, v := range row {
			means[j] += v
		}
	}
	n := float64(len(x))
	for j := range means {
		means[j] /= n
	}

	// Two passes keep the variance accurate for large offsets like Time.
	scales := make([]float64, width)
	for _, row := range x {
		for j, v := range row {
			d := v - means[j]
			scales[j] += d * d
		}
	}
	for j := range scales {
		std := math.Sqrt(scales[j] / n)
		if std < zeroVarianceTolerance {
			std = 1
		}
		scales[j] = std
	}

	return &Params{Means: means, Scales: scales, Samples: len(x)}, nil
}

// Width returns the number of fitted columns.
func (p *Params) Width() int {
	return len(p.Means)
}

// Transform returns a standardized copy of x. The input is not modified.
func (p *Params) Transform(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		scaled, err := p.TransformRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}

// TransformRow standardizes a single row.
func (p *Params) TransformRow(row []float64) ([]float64, error) {
	if len(row) != len(p.Means) {
		return nil, &domain.SchemaError{Reason: fmt.Sprintf("scaler expects %d columns, got %d", len(p.Means), len(row))}
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - p.Means[j]) / p.Scales[j]
	}
	return out, nil
}

// Validate checks the internal consistency of decoded parameters.
func (p *Params) Validate() error {
	if len(p.Means) == 0 || len(p.Means) != len(p.Scales) {
		return &domain.SchemaError{Reason: fmt.Sprintf("scaler has %d means and %d scales", len(p.Means), len(p.Scales))}
	}
	for j, s := range p.Scales {
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return &domain.SchemaError{Reason: fmt.Sprintf("scaler column %d has invalid scale %v", j, s)}
		}
	}
	return nil
}

// Digest returns a stable hex SHA-256 fingerprint of the parameters.
// A model bundle records the digest of the scaler it was trained with.
func (p *Params) Digest() string {
	h := sha256.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(p.Means)))
	h.Write(buf[:])
	for _, vals := range [][]float64{p.Means, p.Scales} {
		for _, v := range vals {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
