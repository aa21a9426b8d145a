// Package logistic fits an L2-regularized logistic regression. It serves
// as a linear baseline next to the forest.
package logistic

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

var errNotPositiveDefinite = errors.New("hessian is not positive definite")

// Params configures Fit.
type Params struct {
	// C is the inverse regularization strength. The intercept is not penalized.
	C float64 `json:"c"`

	MaxIter   int     `json:"maxIter"`
	Tolerance float64 `json:"tolerance"` // on the largest gradient component
}

// DefaultParams returns C = 1 with a tight convergence tolerance.
func DefaultParams() Params {
	return Params{
		C:         1,
		MaxIter:   100,
		Tolerance: 1e-8,
	}
}

// Model is a fitted logistic regression. It is immutable.
type Model struct {
	Weights    []float64 `json:"weights"`
	Intercept  float64   `json:"intercept"`
	Iterations int       `json:"iterations"`
}

// Fit minimizes C * sum(log loss) + ||w||^2 / 2 with damped Newton steps.
// Both classes must be present.
func Fit(ctx context.Context, x [][]float64, y []int, p Params) (*Model, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("logistic fit: %w", domain.ErrEmptyBatch)
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d rows but %d labels", domain.ErrInvalidInput, len(x), len(y))
	}
	if p.C <= 0 {
		return nil, fmt.Errorf("%w: C must be positive, got %v", domain.ErrInvalidInput, p.C)
	}
	if p.MaxIter < 1 {
		p.MaxIter = DefaultParams().MaxIter
	}

	width := len(x[0])
	positives := 0
	for i, row := range x {
		if len(row) != width {
			return nil, &domain.SchemaError{Reason: fmt.Sprintf("logistic fit: row %d has %d columns, want %d", i, len(row), width)}
		}
		switch y[i] {
		case 0:
		case 1:
			positives++
		default:
			return nil, fmt.Errorf("%w: label %d at row %d is not 0 or 1", domain.ErrInvalidInput, y[i], i)
		}
	}
	if positives == 0 || positives == len(y) {
		return nil, fmt.Errorf("%w: logistic fit needs both classes", domain.ErrInvalidInput)
	}

	// coef holds the weights followed by the intercept.
	d := width + 1
	coef := make([]float64, d)
	f := &objective{x: x, y: y, c: p.C, width: width}

	m := &Model{}
	for m.Iterations < p.MaxIter {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		grad, hess := f.derivatives(coef)
		if maxAbs(grad) < p.Tolerance {
			break
		}
		step, err := solve(hess, grad)
		if err != nil {
			return nil, fmt.Errorf("logistic fit: %w", err)
		}

		// Backtracking keeps every step a descent step.
		current := f.value(coef)
		slope := dot(grad, step)
		t := 1.0
		next := make([]float64, d)
		for {
			for j := range coef {
				next[j] = coef[j] - t*step[j]
			}
			if f.value(next) <= current-1e-4*t*slope || t < 1e-10 {
				break
			}
			t /= 2
		}
		copy(coef, next)
		m.Iterations++
	}

	m.Weights = coef[:width]
	m.Intercept = coef[width]
	return m, nil
}

// PredictProba returns P(fraud) for row.
func (m *Model) PredictProba(row []float64) (float64, error) {
	if len(row) != len(m.Weights) {
		return 0, &domain.SchemaError{Reason: fmt.Sprintf("logistic predict: row has %d columns, want %d", len(row), len(m.Weights))}
	}
	return sigmoid(m.Intercept + dot(m.Weights, row)), nil
}

// Predict labels row as fraud when the decision function is positive.
func (m *Model) Predict(row []float64) (int, error) {
	p, err := m.PredictProba(row)
	if err != nil {
		return 0, err
	}
	if p > 0.5 {
		return domain.PredictionFraud, nil
	}
	return domain.PredictionLegit, nil
}

type objective struct {
	x     [][]float64
	y     []int
	c     float64
	width int
}

func (f *objective) z(coef []float64, row []float64) float64 {
	return coef[f.width] + dot(coef[:f.width], row)
}

func (f *objective) value(coef []float64) float64 {
	loss := 0.0
	for i, row := range f.x {
		z := f.z(coef, row)
		loss += softplus(z) - float64(f.y[i])*z
	}
	reg := 0.0
	for _, w := range coef[:f.width] {
		reg += w * w
	}
	return f.c*loss + reg/2
}

func (f *objective) derivatives(coef []float64) ([]float64, [][]float64) {
	d := f.width + 1
	grad := make([]float64, d)
	hess := make([][]float64, d)
	for j := range hess {
		hess[j] = make([]float64, d)
	}

	xa := make([]float64, d)
	xa[f.width] = 1
	for i, row := range f.x {
		copy(xa, row)
		p := sigmoid(f.z(coef, row))
		r := f.c * (p - float64(f.y[i]))
		s := f.c * p * (1 - p)
		for j := 0; j < d; j++ {
			grad[j] += r * xa[j]
			if xa[j] == 0 {
				continue
			}
			sj := s * xa[j]
			for k := 0; k <= j; k++ {
				hess[j][k] += sj * xa[k]
			}
		}
	}

	for j := 0; j < f.width; j++ {
		grad[j] += coef[j]
		hess[j][j]++
	}
	hess[f.width][f.width] += 1e-10

	for j := 0; j < d; j++ {
		for k := 0; k < j; k++ {
			hess[k][j] = hess[j][k]
		}
	}
	return grad, hess
}

// solve returns x with a x = b for symmetric positive definite a
// (Cholesky factorization).
func solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	l := make([][]float64, n)
	for i := range l {
		l[i] = make([]float64, n)
		for j := 0; j <= i; j++ {
			sum := a[i][j]
			for k := 0; k < j; k++ {
				sum -= l[i][k] * l[j][k]
			}
			if i == j {
				if sum <= 0 {
					return nil, errNotPositiveDefinite
				}
				l[i][i] = math.Sqrt(sum)
			} else {
				l[i][j] = sum / l[j][j]
			}
		}
	}

	z := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := b[i]
		for k := 0; k < i; k++ {
			sum -= l[i][k] * z[k]
		}
		z[i] = sum / l[i][i]
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := z[i]
		for k := i + 1; k < n; k++ {
			sum -= l[k][i] * x[k]
		}
		x[i] = sum / l[i][i]
	}
	return x, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus is log(1 + e^z) without overflow.
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func maxAbs(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		m = math.Max(m, math.Abs(x))
	}
	return m
}
