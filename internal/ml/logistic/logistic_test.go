package logistic

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

func linearData(n int, seed int64) ([][]float64, []int) {
	r := rand.New(rand.NewSource(seed))
	x := make([][]float64, n)
	y := make([]int, n)
	for i := range x {
		x[i] = []float64{r.NormFloat64(), r.NormFloat64(), r.NormFloat64()}
		if 2*x[i][0]-x[i][1]+0.3*r.NormFloat64() > 0 {
			y[i] = 1
		}
	}
	return x, y
}

func TestInterceptOnlyMatchesLogOdds(t *testing.T) {
	x := [][]float64{{}, {}, {}, {}}
	y := []int{1, 1, 1, 0}

	m, err := Fit(context.Background(), x, y, DefaultParams())
	require.NoError(t, err)
	assert.InDelta(t, math.Log(3), m.Intercept, 1e-6)

	p, err := m.PredictProba([]float64{})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, p, 1e-6)
}

func TestFitReachesStationaryPoint(t *testing.T) {
	x, y := linearData(300, 1)
	p := DefaultParams()

	m, err := Fit(context.Background(), x, y, p)
	require.NoError(t, err)
	assert.Less(t, m.Iterations, p.MaxIter)

	coef := append(append([]float64{}, m.Weights...), m.Intercept)
	grad, _ := (&objective{x: x, y: y, c: p.C, width: 3}).derivatives(coef)
	assert.Less(t, maxAbs(grad), 1e-6)

	assert.Greater(t, m.Weights[0], 0.0)
	assert.Less(t, m.Weights[1], 0.0)
	assert.Less(t, math.Abs(m.Weights[2]), math.Abs(m.Weights[1]))
}

func TestFitSeparatesLinearData(t *testing.T) {
	x, y := linearData(300, 2)

	m, err := Fit(context.Background(), x, y, DefaultParams())
	require.NoError(t, err)

	correct := 0
	for i, row := range x {
		label, err := m.Predict(row)
		require.NoError(t, err)
		if label == y[i] {
			correct++
		}
	}
	assert.Greater(t, float64(correct)/float64(len(x)), 0.9)
}

func TestRegularizationShrinksWeights(t *testing.T) {
	x, y := linearData(200, 3)

	loose, err := Fit(context.Background(), x, y, Params{C: 10, MaxIter: 100, Tolerance: 1e-8})
	require.NoError(t, err)
	tight, err := Fit(context.Background(), x, y, Params{C: 0.01, MaxIter: 100, Tolerance: 1e-8})
	require.NoError(t, err)

	assert.Less(t, math.Abs(tight.Weights[0]), math.Abs(loose.Weights[0]))
}

func TestFitIsDeterministic(t *testing.T) {
	x, y := linearData(100, 4)

	a, err := Fit(context.Background(), x, y, DefaultParams())
	require.NoError(t, err)
	b, err := Fit(context.Background(), x, y, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSeparableDataStaysFinite(t *testing.T) {
	x := [][]float64{{-2}, {-1}, {1}, {2}}
	y := []int{0, 0, 1, 1}

	m, err := Fit(context.Background(), x, y, DefaultParams())
	require.NoError(t, err)
	assert.False(t, math.IsNaN(m.Weights[0]) || math.IsInf(m.Weights[0], 0))
	assert.Greater(t, m.Weights[0], 0.0)
}

func TestFitErrors(t *testing.T) {
	ctx := context.Background()
	x, y := linearData(10, 5)

	_, err := Fit(ctx, nil, nil, DefaultParams())
	assert.True(t, errors.Is(err, domain.ErrEmptyBatch))

	_, err = Fit(ctx, x, y[:5], DefaultParams())
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = Fit(ctx, x, make([]int, len(x)), DefaultParams())
	assert.True(t, errors.Is(err, domain.ErrInvalidInput), "single class")

	bad := append([]int{}, y...)
	bad[0] = 2
	_, err = Fit(ctx, x, bad, DefaultParams())
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = Fit(ctx, x, y, Params{C: 0})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	ragged := append([][]float64{{1}}, x[1:]...)
	_, err = Fit(ctx, ragged, y, DefaultParams())
	assert.True(t, errors.Is(err, domain.ErrSchema))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = Fit(cancelled, x, append([]int{1, 0}, y[2:]...), DefaultParams())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPredictRejectsWrongWidth(t *testing.T) {
	m := &Model{Weights: []float64{1, 2}}
	_, err := m.PredictProba([]float64{1})
	assert.True(t, errors.Is(err, domain.ErrSchema))
}
