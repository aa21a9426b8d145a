package scaler

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

func sample() [][]float64 {
	return [][]float64{
		{0, 1.5, -2, 100},
		{3600, 0.5, -1, 250},
		{7200, -1.0, 0, 3.5},
		{86400, 2.0, 4, 0},
		{90000, 0.0, 2, 42},
	}
}

func TestFitReproducesStandardizedColumns(t *testing.T) {
	x := sample()
	p, err := Fit(x)
	require.NoError(t, err)

	scaled, err := p.Transform(x)
	require.NoError(t, err)

	for j := 0; j < p.Width(); j++ {
		var sum, sq float64
		for _, row := range scaled {
			sum += row[j]
		}
		mean := sum / float64(len(scaled))
		for _, row := range scaled {
			sq += (row[j] - mean) * (row[j] - mean)
		}
		std := math.Sqrt(sq / float64(len(scaled)))

		assert.InDelta(t, 0, mean, 1e-9, "column %d mean", j)
		assert.InDelta(t, 1, std, 1e-9, "column %d std", j)
	}
}

func TestTransformIsIdempotentAndPure(t *testing.T) {
	x := sample()
	p, err := Fit(x)
	require.NoError(t, err)

	first, err := p.Transform(x)
	require.NoError(t, err)
	second, err := p.Transform(x)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, sample(), x, "input must not be modified")
}

func TestZeroVarianceColumnKeepsScaleOne(t *testing.T) {
	x := [][]float64{{5, 1}, {5, 2}, {5, 3}}
	p, err := Fit(x)
	require.NoError(t, err)

	assert.Equal(t, 1.0, p.Scales[0])
	row, err := p.TransformRow([]float64{5, 2})
	require.NoError(t, err)
	assert.Equal(t, 0.0, row[0])
}

func TestTransformRejectsWrongWidth(t *testing.T) {
	p, err := Fit(sample())
	require.NoError(t, err)

	_, err = p.Transform([][]float64{{1, 2, 3}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSchema))
}

func TestFitErrors(t *testing.T) {
	_, err := Fit(nil)
	assert.True(t, errors.Is(err, domain.ErrEmptyBatch))

	_, err = Fit([][]float64{{1, 2}, {3}})
	assert.True(t, errors.Is(err, domain.ErrSchema))
}

func TestDigest(t *testing.T) {
	p, err := Fit(sample())
	require.NoError(t, err)
	q, err := Fit(sample())
	require.NoError(t, err)

	assert.Len(t, p.Digest(), 64)
	assert.Equal(t, p.Digest(), q.Digest())

	q.Means[0] += 1e-12
	assert.NotEqual(t, p.Digest(), q.Digest())
}

func TestValidate(t *testing.T) {
	p, err := Fit(sample())
	require.NoError(t, err)
	assert.NoError(t, p.Validate())

	bad := &Params{Means: []float64{0, 1}, Scales: []float64{1}}
	assert.True(t, errors.Is(bad.Validate(), domain.ErrSchema))

	bad = &Params{Means: []float64{0}, Scales: []float64{0}}
	assert.True(t, errors.Is(bad.Validate(), domain.ErrSchema))
}

func TestIdentityParamsLeaveValuesUnchanged(t *testing.T) {
	p := &Params{
		Means:  make([]float64, domain.FeatureCount),
		Scales: make([]float64, domain.FeatureCount),
	}
	for j := range p.Scales {
		p.Scales[j] = 1
	}

	row := make([]float64, domain.FeatureCount)
	row[domain.IndexAmount] = 100

	out, err := p.TransformRow(row)
	require.NoError(t, err)
	assert.Equal(t, 100.0, out[domain.IndexAmount])
	assert.Equal(t, row, out)
}
