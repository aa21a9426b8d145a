// Package forest implements a random forest binary classifier built from
// CART trees with Gini impurity.
package forest

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/ml/rng"
)

// DefaultCutoff is the probability at which Predict labels a row as fraud.
// It is the model's own cutoff and is independent of the decision
// threshold a caller supplies when scoring a batch.
const DefaultCutoff = 0.5

// Hyperparams configures Fit. Fit performs no tuning.
type Hyperparams struct {
	Trees    int   `json:"trees"`
	MaxDepth int   `json:"maxDepth"` // 0 = unlimited
	Seed     int64 `json:"seed"`

	MinSamplesSplit int `json:"minSamplesSplit"`
	MinSamplesLeaf  int `json:"minSamplesLeaf"`

	// MaxFeatures is the number of features drawn per node. 0 = floor(sqrt(d)).
	MaxFeatures int `json:"maxFeatures"`

	// Bootstrap draws each tree's rows with replacement.
	Bootstrap bool `json:"bootstrap"`

	// Workers bounds concurrent tree fitting. 0 = GOMAXPROCS.
	Workers int `json:"-"`
}

// DefaultHyperparams returns the production settings.
func DefaultHyperparams() Hyperparams {
	return Hyperparams{
		Trees:           100,
		MaxDepth:        12,
		Seed:            42,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
	}
}

func (h Hyperparams) normalized() Hyperparams {
	if h.MinSamplesSplit < 2 {
		h.MinSamplesSplit = 2
	}
	if h.MinSamplesLeaf < 1 {
		h.MinSamplesLeaf = 1
	}
	if h.Workers <= 0 {
		h.Workers = runtime.GOMAXPROCS(0)
	}
	return h
}

// Model is a fitted forest. It is immutable and safe for concurrent use.
type Model struct {
	Features int         `json:"features"`
	Params   Hyperparams `json:"params"`
	Trees    []Tree      `json:"trees"`

	// FeatureImportances holds the normalized mean Gini decrease per feature.
	FeatureImportances []float64 `json:"importances"`
}

// Fit grows Trees trees concurrently. Tree i draws from a random stream
// derived from Seed and i, so the model does not depend on scheduling.
func Fit(ctx context.Context, x [][]float64, y []int, hp Hyperparams) (*Model, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("forest fit: %w", domain.ErrEmptyBatch)
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d rows but %d labels", domain.ErrInvalidInput, len(x), len(y))
	}
	if hp.Trees < 1 {
		return nil, fmt.Errorf("%w: trees must be positive, got %d", domain.ErrInvalidInput, hp.Trees)
	}
	width := len(x[0])
	if width == 0 {
		return nil, &domain.SchemaError{Reason: "forest fit: rows have no columns"}
	}
	for i, row := range x {
		if len(row) != width {
			return nil, &domain.SchemaError{Reason: fmt.Sprintf("forest fit: row %d has %d columns, want %d", i, len(row), width)}
		}
		if y[i] != 0 && y[i] != 1 {
			return nil, fmt.Errorf("%w: label %d at row %d is not 0 or 1", domain.ErrInvalidInput, y[i], i)
		}
	}

	hp = hp.normalized()
	maxFeatures := hp.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Sqrt(float64(width)))
	}
	maxFeatures = min(max(maxFeatures, 1), width)

	trees := make([]Tree, hp.Trees)
	importances := make([][]float64, hp.Trees)

	var wg sync.WaitGroup
	sem := make(chan struct{}, hp.Workers)

	for i := 0; i < hp.Trees; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			if ctx.Err() != nil {
				return
			}
			trees[idx], importances[idx] = fitTree(x, y, hp, maxFeatures, idx)
		}(i)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("forest fit cancelled: %w", err)
	}

	return &Model{
		Features:           width,
		Params:             hp,
		Trees:              trees,
		FeatureImportances: meanImportances(importances, width),
	}, nil
}

func fitTree(x [][]float64, y []int, hp Hyperparams, maxFeatures int, index int) (Tree, []float64) {
	r := rng.Derive(hp.Seed, rng.StreamTree(index))

	rows := make([]int, len(x))
	if hp.Bootstrap {
		for i := range rows {
			rows[i] = r.Intn(len(x))
		}
	} else {
		for i := range rows {
			rows[i] = i
		}
	}

	b := newBuilder(x, y, hp, maxFeatures, r)
	b.grow(rows, 0)

	imp := b.importances
	var total float64
	for _, v := range imp {
		total += v
	}
	if total > 0 {
		for j := range imp {
			imp[j] /= total
		}
	}
	return Tree{Nodes: b.nodes}, imp
}

func meanImportances(perTree [][]float64, width int) []float64 {
	out := make([]float64, width)
	for _, imp := range perTree {
		for j, v := range imp {
			out[j] += v
		}
	}
	var total float64
	for _, v := range out {
		total += v
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}

// PredictProba returns the mean leaf fraud fraction across trees.
func (m *Model) PredictProba(row []float64) (float64, error) {
	if len(row) != m.Features {
		return 0, &domain.SchemaError{Reason: fmt.Sprintf("model expects %d features, got %d", m.Features, len(row))}
	}
	var sum float64
	for i := range m.Trees {
		sum += m.Trees[i].Proba(row)
	}
	return sum / float64(len(m.Trees)), nil
}

// PredictProbaBatch scores every row of x.
func (m *Model) PredictProbaBatch(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, row := range x {
		p, err := m.PredictProba(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

// Predict labels a row with the model's own cutoff: 1 when
// PredictProba >= DefaultCutoff. Batch scoring uses a caller threshold
// instead; see the decision package.
func (m *Model) Predict(row []float64) (int, error) {
	p, err := m.PredictProba(row)
	if err != nil {
		return 0, err
	}
	if p >= DefaultCutoff {
		return 1, nil
	}
	return 0, nil
}

// Importances returns a copy of the normalized feature importances.
func (m *Model) Importances() []float64 {
	out := make([]float64, len(m.FeatureImportances))
	copy(out, m.FeatureImportances)
	return out
}

// Validate checks structural consistency of a decoded model.
func (m *Model) Validate() error {
	if m.Features <= 0 || len(m.Trees) == 0 {
		return &domain.SchemaError{Reason: fmt.Sprintf("model has %d features and %d trees", m.Features, len(m.Trees))}
	}
	for ti := range m.Trees {
		nodes := m.Trees[ti].Nodes
		if len(nodes) == 0 {
			return &domain.SchemaError{Reason: fmt.Sprintf("tree %d is empty", ti)}
		}
		for ni, n := range nodes {
			if n.IsLeaf() {
				continue
			}
			if n.Feature < 0 || n.Feature >= m.Features {
				return &domain.SchemaError{Reason: fmt.Sprintf("tree %d node %d splits on feature %d", ti, ni, n.Feature)}
			}
			// Children are always appended after their parent.
			if n.Left <= int32(ni) || n.Right <= int32(ni) || int(n.Left) >= len(nodes) || int(n.Right) >= len(nodes) {
				return &domain.SchemaError{Reason: fmt.Sprintf("tree %d node %d has invalid children", ti, ni)}
			}
		}
	}
	return nil
}
