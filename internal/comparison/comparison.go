// Package comparison refits a logistic regression and a random forest on a
// scored batch, using the batch's own predictions as labels, and reports
// how closely each model reproduces them.
package comparison

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/evaluation"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/ml/forest"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/ml/logistic"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/ml/scaler"
)

// Model names in the order they are reported.
const (
	ModelLogistic = "Logistic Regression"
	ModelForest   = "Random Forest"
)

// Config holds the hyperparameters of both refits.
type Config struct {
	Logistic logistic.Params
	Forest   forest.Hyperparams
}

// DefaultConfig returns C = 1 for the linear model and 100 fully grown
// trees with seed 42 for the forest.
func DefaultConfig() Config {
	hp := forest.DefaultHyperparams()
	hp.MaxDepth = 0
	return Config{
		Logistic: logistic.DefaultParams(),
		Forest:   hp,
	}
}

// ModelResult is one refit model's agreement with the batch predictions.
type ModelResult struct {
	Model      string             `json:"model"`
	Accuracy   float64            `json:"accuracy"`
	Report     *evaluation.Report `json:"report"`
	DurationMs int64              `json:"durationMs"`
}

// Result is the comparison for one batch.
type Result struct {
	BatchID  string        `json:"batchId"`
	BundleID string        `json:"bundleId"`
	Rows     int           `json:"rows"`
	Models   []ModelResult `json:"models"`
}

type predictor interface {
	Predict(row []float64) (int, error)
}

// Compare scales records with sc and refits both models on them. Labels
// are the records' predictions, so both classes must be present.
func Compare(ctx context.Context, sc *scaler.Params, records []domain.ScoredRecord, cfg Config) ([]ModelResult, error) {
	ctx, span := otel.Tracer("fraudscore/comparison").Start(ctx, "comparison.Compare")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.rows", len(records)))

	if len(records) == 0 {
		return nil, fmt.Errorf("compare: %w", domain.ErrEmptyBatch)
	}

	raw := make([][]float64, len(records))
	labels := make([]int, len(records))
	for i := range records {
		raw[i] = records[i].Record.Features[:]
		labels[i] = records[i].Prediction
	}
	x, err := sc.Transform(raw)
	if err != nil {
		return nil, err
	}

	fits := []struct {
		name string
		fit  func() (predictor, error)
	}{
		{ModelLogistic, func() (predictor, error) { return logistic.Fit(ctx, x, labels, cfg.Logistic) }},
		{ModelForest, func() (predictor, error) { return forest.Fit(ctx, x, labels, cfg.Forest) }},
	}

	results := make([]ModelResult, 0, len(fits))
	for _, f := range fits {
		start := time.Now()
		model, err := f.fit()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}

		predicted := make([]int, len(x))
		for i, row := range x {
			if predicted[i], err = model.Predict(row); err != nil {
				return nil, fmt.Errorf("%s: %w", f.name, err)
			}
		}

		report, err := evaluation.Evaluate(labels, predicted)
		if err != nil {
			return nil, err
		}
		results = append(results, ModelResult{
			Model:      f.name,
			Accuracy:   report.Accuracy,
			Report:     report,
			DurationMs: time.Since(start).Milliseconds(),
		})
	}
	return results, nil
}

// WriteText prints each model's accuracy, confusion matrix and
// classification report.
func (r *Result) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Model comparison for batch %s (%d rows)\n", r.BatchID, r.Rows); err != nil {
		return err
	}
	for _, m := range r.Models {
		if _, err := fmt.Fprintf(w, "\n%s\nAccuracy: %.4f\nConfusion Matrix:\n", m.Model, m.Accuracy); err != nil {
			return err
		}
		if err := m.Report.Matrix.WriteMatrix(w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "Classification Report:\n"); err != nil {
			return err
		}
		if err := m.Report.WriteText(w); err != nil {
			return err
		}
	}
	return nil
}
