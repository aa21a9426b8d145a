// Package decision turns fraud probabilities into binary decisions and
// suggests a cutoff from a batch's score distribution.
package decision

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

// SuggestPercentile is the percentile of the batch distribution offered as
// a suggested threshold.
const SuggestPercentile = 95.0

// Rounding precision for outputs.
const (
	ProbabilityPlaces = 4
	ThresholdPlaces   = 2
)

// Policy applies a fixed threshold to probabilities.
type Policy struct {
	// Threshold at or above which a probability is labeled fraud
	Threshold float64
}

// NewPolicy creates a policy after validating the threshold.
func NewPolicy(threshold float64) (*Policy, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	return &Policy{Threshold: threshold}, nil
}

// Decide labels a single probability.
func (p *Policy) Decide(probability float64) int {
	return Decide(probability, p.Threshold)
}

// Apply labels every probability in order.
func (p *Policy) Apply(probabilities []float64) []int {
	out := make([]int, len(probabilities))
	for i, prob := range probabilities {
		out[i] = Decide(prob, p.Threshold)
	}
	return out
}

// Decide returns 1 when probability >= threshold, else 0.
func Decide(probability, threshold float64) int {
	if probability >= threshold {
		return domain.PredictionFraud
	}
	return domain.PredictionLegit
}

// ValidateThreshold rejects thresholds outside [0, 1] and NaN.
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: got %v", domain.ErrInvalidThreshold, threshold)
	}
	return nil
}

// SuggestThreshold returns the 95th percentile of probabilities rounded to
// two decimals. An empty input fails with ErrEmptyBatch and an input where
// every probability is identical fails with ErrUniformScores.
func SuggestThreshold(probabilities []float64) (float64, error) {
	if len(probabilities) == 0 {
		return 0, fmt.Errorf("suggest threshold: %w", domain.ErrEmptyBatch)
	}

	sorted := make([]float64, len(probabilities))
	copy(sorted, probabilities)
	sort.Float64s(sorted)

	if sorted[0] == sorted[len(sorted)-1] {
		return 0, fmt.Errorf("suggest threshold: %w", domain.ErrUniformScores)
	}

	return Round(Percentile(sorted, SuggestPercentile), ThresholdPlaces), nil
}

// Percentile returns the q-th percentile (0..100) of an ascending slice,
// interpolating linearly between the two closest ranks (rank = q/100 * (n-1)).
func Percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}

	rank := q / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	if lo >= n-1 {
		return sorted[n-1]
	}
	if lo < 0 {
		return sorted[0]
	}

	t := rank - float64(lo)
	a, b := sorted[lo], sorted[lo+1]
	diff := b - a

	// Interpolate from the nearer end to keep the result monotonic in t.
	if t >= 0.5 {
		return b - diff*(1-t)
	}
	return a + diff*t
}

// Round rounds v to the given decimal places. v is scaled by 10^places in
// binary floating point first and the scaled value is rounded half to even,
// so 0.00015 (stored just below the tie) rounds down to 0.0001.
func Round(v float64, places int32) float64 {
	scaled := v * math.Pow10(int(places))
	f, _ := decimal.NewFromFloat(scaled).RoundBank(0).Shift(-places).Float64()
	return f
}

// FraudCount returns the number of fraud predictions in records.
func FraudCount(records []domain.ScoredRecord) int {
	n := 0
	for _, r := range records {
		if r.Prediction == domain.PredictionFraud {
			n++
		}
	}
	return n
}
