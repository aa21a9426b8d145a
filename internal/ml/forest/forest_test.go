package forest

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

// separable returns rows where feature 0 decides the label and features 1..3 are noise.
func separable(n int) ([][]float64, []int) {
	r := rand.New(rand.NewSource(1))
	x := make([][]float64, n)
	y := make([]int, n)
	for i := range x {
		label := i % 2
		signal := -2 + r.Float64()
		if label == 1 {
			signal = 1 + r.Float64()
		}
		x[i] = []float64{signal, r.NormFloat64(), r.NormFloat64(), r.NormFloat64()}
		y[i] = label
	}
	return x, y
}

func smallParams() Hyperparams {
	hp := DefaultHyperparams()
	hp.Trees = 15
	hp.MaxDepth = 4
	return hp
}

func TestFitSeparatesClasses(t *testing.T) {
	x, y := separable(200)
	m, err := Fit(context.Background(), x, y, smallParams())
	require.NoError(t, err)

	fraud, err := m.PredictProba([]float64{1.5, 0, 0, 0})
	require.NoError(t, err)
	legit, err := m.PredictProba([]float64{-1.5, 0, 0, 0})
	require.NoError(t, err)

	assert.Greater(t, fraud, 0.8)
	assert.Less(t, legit, 0.2)

	label, err := m.Predict([]float64{1.5, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, label)
}

func TestFitIsDeterministic(t *testing.T) {
	x, y := separable(120)

	hp := smallParams()
	hp.Workers = 1
	a, err := Fit(context.Background(), x, y, hp)
	require.NoError(t, err)

	hp.Workers = 8
	b, err := Fit(context.Background(), x, y, hp)
	require.NoError(t, err)

	assert.Equal(t, a.Trees, b.Trees, "tree structure must not depend on worker count")
	assert.Equal(t, a.FeatureImportances, b.FeatureImportances)

	for _, row := range x {
		pa, _ := a.PredictProba(row)
		pb, _ := b.PredictProba(row)
		assert.Equal(t, pa, pb)
	}
}

func TestDifferentSeedsDiffer(t *testing.T) {
	x, y := separable(120)
	hp := smallParams()
	a, err := Fit(context.Background(), x, y, hp)
	require.NoError(t, err)
	hp.Seed = 7
	b, err := Fit(context.Background(), x, y, hp)
	require.NoError(t, err)
	assert.NotEqual(t, a.Trees, b.Trees)
}

func TestProbabilitiesInUnitInterval(t *testing.T) {
	x, y := separable(150)
	m, err := Fit(context.Background(), x, y, smallParams())
	require.NoError(t, err)

	probs, err := m.PredictProbaBatch(x)
	require.NoError(t, err)
	for _, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestMaxDepthIsRespected(t *testing.T) {
	x, y := separable(300)
	hp := smallParams()
	hp.MaxDepth = 2
	m, err := Fit(context.Background(), x, y, hp)
	require.NoError(t, err)

	for i := range m.Trees {
		assert.LessOrEqual(t, m.Trees[i].Depth(), 2)
	}
}

func TestImportancesFavorSignal(t *testing.T) {
	x, y := separable(200)
	m, err := Fit(context.Background(), x, y, smallParams())
	require.NoError(t, err)

	imp := m.Importances()
	require.Len(t, imp, 4)
	var total float64
	for _, v := range imp {
		total += v
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Greater(t, imp[0], imp[1])
	assert.Greater(t, imp[0], imp[2])
	assert.Greater(t, imp[0], imp[3])
}

func TestPredictTieGoesToFraud(t *testing.T) {
	m := &Model{
		Features: 1,
		Trees: []Tree{
			{Nodes: []Node{{Feature: leafFeature, Value: 0}}},
			{Nodes: []Node{{Feature: leafFeature, Value: 1}}},
		},
	}
	p, err := m.PredictProba([]float64{0})
	require.NoError(t, err)
	assert.Equal(t, 0.5, p)

	label, err := m.Predict([]float64{0})
	require.NoError(t, err)
	assert.Equal(t, 1, label)
}

func TestFitErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Fit(ctx, nil, nil, smallParams())
	assert.True(t, errors.Is(err, domain.ErrEmptyBatch))

	_, err = Fit(ctx, [][]float64{{1}, {2}}, []int{0}, smallParams())
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = Fit(ctx, [][]float64{{1}, {2, 3}}, []int{0, 1}, smallParams())
	assert.True(t, errors.Is(err, domain.ErrSchema))

	_, err = Fit(ctx, [][]float64{{1}, {2}}, []int{0, 3}, smallParams())
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	x, y := separable(20)
	_, err = Fit(cancelled, x, y, smallParams())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPredictRejectsWrongWidth(t *testing.T) {
	x, y := separable(50)
	m, err := Fit(context.Background(), x, y, smallParams())
	require.NoError(t, err)

	_, err = m.PredictProba([]float64{1, 2})
	assert.True(t, errors.Is(err, domain.ErrSchema))
}

func TestValidate(t *testing.T) {
	x, y := separable(50)
	m, err := Fit(context.Background(), x, y, smallParams())
	require.NoError(t, err)
	assert.NoError(t, m.Validate())

	broken := &Model{Features: 1, Trees: []Tree{{Nodes: []Node{{Feature: 3, Left: 1, Right: 2}}}}}
	assert.True(t, errors.Is(broken.Validate(), domain.ErrSchema))

	assert.True(t, errors.Is((&Model{}).Validate(), domain.ErrSchema))
}

func TestPureNodeIsLeaf(t *testing.T) {
	x := [][]float64{{0}, {1}, {2}}
	y := []int{1, 1, 1}
	hp := smallParams()
	hp.Trees = 1
	m, err := Fit(context.Background(), x, y, hp)
	require.NoError(t, err)

	require.Len(t, m.Trees[0].Nodes, 1)
	assert.Equal(t, 1.0, m.Trees[0].Nodes[0].Value)
}
