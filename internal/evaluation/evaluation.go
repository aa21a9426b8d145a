// Package evaluation computes binary classification metrics: the confusion
// matrix and a per-class precision/recall/F1 report.
package evaluation

import (
	"fmt"
	"io"
	"strings"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

// ConfusionMatrix counts outcomes with fraud (1) as the positive class.
type ConfusionMatrix struct {
	TrueNegatives  int `json:"tn"`
	FalsePositives int `json:"fp"`
	FalseNegatives int `json:"fn"`
	TruePositives  int `json:"tp"`
}

// Add records one (actual, predicted) pair.
func (m *ConfusionMatrix) Add(actual, predicted int) {
	switch {
	case actual == 1 && predicted == 1:
		m.TruePositives++
	case actual == 0 && predicted == 1:
		m.FalsePositives++
	case actual == 0 && predicted == 0:
		m.TrueNegatives++
	default:
		m.FalseNegatives++
	}
}

// Total returns the number of recorded pairs.
func (m *ConfusionMatrix) Total() int {
	return m.TrueNegatives + m.FalsePositives + m.FalseNegatives + m.TruePositives
}

// ClassMetrics holds the scores for one class.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report is a classification report over a held-out set.
type Report struct {
	Matrix      ConfusionMatrix `json:"confusionMatrix"`
	Legit       ClassMetrics    `json:"legit"`
	Fraud       ClassMetrics    `json:"fraud"`
	Accuracy    float64         `json:"accuracy"`
	MacroAvg    ClassMetrics    `json:"macroAvg"`
	WeightedAvg ClassMetrics    `json:"weightedAvg"`
}

// Evaluate compares predictions with ground truth labels.
func Evaluate(actual, predicted []int) (*Report, error) {
	if len(actual) != len(predicted) {
		return nil, fmt.Errorf("%w: %d labels but %d predictions", domain.ErrInvalidInput, len(actual), len(predicted))
	}
	if len(actual) == 0 {
		return nil, fmt.Errorf("evaluate: %w", domain.ErrEmptyBatch)
	}

	var m ConfusionMatrix
	for i := range actual {
		m.Add(actual[i], predicted[i])
	}
	return FromMatrix(m), nil
}

// FromMatrix derives the report from a confusion matrix.
// Undefined ratios (zero denominators) are reported as 0.
func FromMatrix(m ConfusionMatrix) *Report {
	r := &Report{Matrix: m}

	r.Fraud = classMetrics(m.TruePositives, m.FalsePositives, m.FalseNegatives)
	r.Legit = classMetrics(m.TrueNegatives, m.FalseNegatives, m.FalsePositives)

	total := m.Total()
	if total > 0 {
		r.Accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	r.MacroAvg = ClassMetrics{
		Precision: (r.Legit.Precision + r.Fraud.Precision) / 2,
		Recall:    (r.Legit.Recall + r.Fraud.Recall) / 2,
		F1:        (r.Legit.F1 + r.Fraud.F1) / 2,
		Support:   total,
	}

	r.WeightedAvg = ClassMetrics{Support: total}
	if total > 0 {
		wl := float64(r.Legit.Support) / float64(total)
		wf := float64(r.Fraud.Support) / float64(total)
		r.WeightedAvg.Precision = wl*r.Legit.Precision + wf*r.Fraud.Precision
		r.WeightedAvg.Recall = wl*r.Legit.Recall + wf*r.Fraud.Recall
		r.WeightedAvg.F1 = wl*r.Legit.F1 + wf*r.Fraud.F1
	}
	return r
}

func classMetrics(tp, fp, fn int) ClassMetrics {
	c := ClassMetrics{Support: tp + fn}
	if tp+fp > 0 {
		c.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		c.Recall = float64(tp) / float64(tp+fn)
	}
	if c.Precision+c.Recall > 0 {
		c.F1 = 2 * c.Precision * c.Recall / (c.Precision + c.Recall)
	}
	return c
}

// WriteText prints the report in the conventional tabular layout.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%12s %10s %10s %10s %10s\n\n", "", "precision", "recall", "f1-score", "support")
	for _, row := range []struct {
		name string
		c    ClassMetrics
	}{{"0", r.Legit}, {"1", r.Fraud}} {
		fmt.Fprintf(&b, "%12s %10.2f %10.2f %10.2f %10d\n", row.name, row.c.Precision, row.c.Recall, row.c.F1, row.c.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%12s %10s %10s %10.2f %10d\n", "accuracy", "", "", r.Accuracy, r.Matrix.Total())
	fmt.Fprintf(&b, "%12s %10.2f %10.2f %10.2f %10d\n", "macro avg", r.MacroAvg.Precision, r.MacroAvg.Recall, r.MacroAvg.F1, r.MacroAvg.Support)
	fmt.Fprintf(&b, "%12s %10.2f %10.2f %10.2f %10d\n", "weighted avg", r.WeightedAvg.Precision, r.WeightedAvg.Recall, r.WeightedAvg.F1, r.WeightedAvg.Support)

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteMatrix prints the confusion matrix as [[TN FP] [FN TP]].
func (m ConfusionMatrix) WriteMatrix(w io.Writer) error {
	width := len(fmt.Sprint(max(m.TrueNegatives, m.FalsePositives, m.FalseNegatives, m.TruePositives)))
	_, err := fmt.Fprintf(w, "[[%*d %*d]\n [%*d %*d]]\n",
		width, m.TrueNegatives, width, m.FalsePositives,
		width, m.FalseNegatives, width, m.TruePositives)
	return err
}
