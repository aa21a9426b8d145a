package comparison

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/artifact/artifacttest"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

func scoredRecords(n int, seed int64) []domain.ScoredRecord {
	x, y := artifacttest.Data(n, seed)
	records := make([]domain.ScoredRecord, n)
	for i := range x {
		copy(records[i].Record.Features[:], x[i])
		records[i].Prediction = y[i]
	}
	return records
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Forest.Trees = 20
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 100, cfg.Forest.Trees)
	assert.Equal(t, int64(42), cfg.Forest.Seed)
	assert.Zero(t, cfg.Forest.MaxDepth, "trees are fully grown")
	assert.Equal(t, 1.0, cfg.Logistic.C)
}

func TestCompareReportsBothModels(t *testing.T) {
	bundle := artifacttest.Bundle(t)
	records := scoredRecords(120, 7)

	results, err := Compare(context.Background(), bundle.Scaler, records, smallConfig())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, ModelLogistic, results[0].Model)
	assert.Equal(t, ModelForest, results[1].Model)

	for _, r := range results {
		t.Run(r.Model, func(t *testing.T) {
			assert.Equal(t, 120, r.Report.Matrix.Total())
			assert.Equal(t, 60, r.Report.Fraud.Support, "labels are the batch predictions")
			assert.Equal(t, r.Report.Accuracy, r.Accuracy)
			assert.GreaterOrEqual(t, r.Accuracy, 0.99)
		})
	}
}

func TestCompareIsDeterministic(t *testing.T) {
	bundle := artifacttest.Bundle(t)
	records := scoredRecords(60, 8)

	a, err := Compare(context.Background(), bundle.Scaler, records, smallConfig())
	require.NoError(t, err)
	b, err := Compare(context.Background(), bundle.Scaler, records, smallConfig())
	require.NoError(t, err)

	for i := range a {
		assert.Equal(t, a[i].Report, b[i].Report)
	}
}

func TestCompareErrors(t *testing.T) {
	bundle := artifacttest.Bundle(t)
	ctx := context.Background()

	_, err := Compare(ctx, bundle.Scaler, nil, smallConfig())
	assert.True(t, errors.Is(err, domain.ErrEmptyBatch))

	legit := scoredRecords(10, 9)
	for i := range legit {
		legit[i].Prediction = domain.PredictionLegit
	}
	_, err = Compare(ctx, bundle.Scaler, legit, smallConfig())
	assert.True(t, errors.Is(err, domain.ErrInvalidInput), "a single predicted class cannot be compared")
}

func TestWriteText(t *testing.T) {
	bundle := artifacttest.Bundle(t)
	models, err := Compare(context.Background(), bundle.Scaler, scoredRecords(40, 10), smallConfig())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, (&Result{BatchID: "b-1", Rows: 40, Models: models}).WriteText(&buf))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Model comparison for batch b-1 (40 rows)"))
	for _, want := range []string{ModelLogistic, ModelForest, "Accuracy: ", "Confusion Matrix:", "Classification Report:"} {
		assert.Contains(t, out, want)
	}
	assert.Equal(t, 2, strings.Count(out, "Confusion Matrix:"))
}
