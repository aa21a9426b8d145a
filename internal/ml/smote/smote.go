// Package smote balances a binary training set by synthesizing minority
// class samples (Synthetic Minority Over-sampling Technique).
package smote

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/ml/rng"
)

// DefaultNeighbors is the k used for neighbour selection.
const DefaultNeighbors = 5

// Balancer oversamples the minority class until both classes are equal.
type Balancer struct {
	// Neighbors is k, the number of nearest minority neighbours considered.
	Neighbors int

	// Seed makes the output reproducible.
	Seed int64
}

// New creates a Balancer with the default neighbour count.
func New(seed int64) *Balancer {
	return &Balancer{Neighbors: DefaultNeighbors, Seed: seed}
}

// Result is a resampled training set. Originals come first in input order,
// followed by the synthetic minority rows.
type Result struct {
	X         [][]float64
	Y         []int
	Synthetic int
}

// Resample returns a class-balanced copy of (x, y). Original rows are shared
// with the input, never modified.
func (b *Balancer) Resample(x [][]float64, y []int) (*Result, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d rows but %d labels", domain.ErrInvalidInput, len(x), len(y))
	}
	k := b.Neighbors
	if k <= 0 {
		k = DefaultNeighbors
	}

	var counts [2]int
	for i, label := range y {
		if label != 0 && label != 1 {
			return nil, fmt.Errorf("%w: label %d at row %d is not 0 or 1", domain.ErrInvalidInput, label, i)
		}
		counts[label]++
	}

	minority := 1
	if counts[0] < counts[1] {
		minority = 0
	}
	majority := 1 - minority
	need := counts[majority] - counts[minority]
	if need > 0 && counts[minority] < k+1 {
		return nil, &domain.InsufficientMinorityError{
			MinorityClass: minority,
			MinorityCount: counts[minority],
			Neighbors:     k,
		}
	}

	out := &Result{
		X: make([][]float64, len(x), len(x)+need),
		Y: make([]int, len(y), len(y)+need),
	}
	copy(out.X, x)
	copy(out.Y, y)

	if need == 0 {
		return out, nil
	}

	samples := make([][]float64, 0, counts[minority])
	for i, label := range y {
		if label == minority {
			samples = append(samples, x[i])
		}
	}
	width := len(samples[0])
	for _, s := range samples {
		if len(s) != width {
			return nil, &domain.SchemaError{Reason: "smote: rows have different widths"}
		}
	}

	nn := nearestNeighbors(samples, k)
	r := rng.Derive(b.Seed, rng.StreamResample)
	for i := 0; i < need; i++ {
		out.X = append(out.X, synthesize(r, samples, nn, k))
		out.Y = append(out.Y, minority)
	}
	out.Synthetic = need
	return out, nil
}

// synthesize interpolates between a random minority sample and one of its
// neighbours with a uniform gap in [0, 1).
func synthesize(r *rand.Rand, samples [][]float64, nn [][]int, k int) []float64 {
	pick := r.Intn(len(samples) * k)
	base := samples[pick/k]
	neighbor := samples[nn[pick/k][pick%k]]
	gap := r.Float64()

	row := make([]float64, len(base))
	for j := range base {
		row[j] = base[j] + gap*(neighbor[j]-base[j])
	}
	return row
}

// nearestNeighbors returns, for every sample, the indexes of its k nearest
// other samples by Euclidean distance. Ties break on the lower index.
func nearestNeighbors(samples [][]float64, k int) [][]int {
	type candidate struct {
		idx  int
		dist float64
	}

	out := make([][]int, len(samples))
	cands := make([]candidate, 0, len(samples)-1)
	for i, a := range samples {
		cands = cands[:0]
		for j, b := range samples {
			if i == j {
				continue
			}
			cands = append(cands, candidate{idx: j, dist: squaredDistance(a, b)})
		}
		sort.Slice(cands, func(p, q int) bool {
			if cands[p].dist != cands[q].dist {
				return cands[p].dist < cands[q].dist
			}
			return cands[p].idx < cands[q].idx
		})

		neighbors := make([]int, k)
		for n := 0; n < k; n++ {
			neighbors[n] = cands[n].idx
		}
		out[i] = neighbors
	}
	return out
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for j := range a {
		d := a[j] - b[j]
		sum += d * d
	}
	return sum
}
