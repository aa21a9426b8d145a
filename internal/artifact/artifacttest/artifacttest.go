// Package artifacttest builds small trained bundles for tests.
package artifacttest

import (
	"bytes"
	"context"
	"encoding/csv"
	"math/rand"
	"strconv"
	"testing"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/artifact"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/ml/forest"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/ml/scaler"
)

// FraudV14 is the V14 value typical of synthetic fraud rows; legit rows
// sit near zero.
const FraudV14 = -8.0

// Row returns a schema-ordered feature row. Fraud rows have a strongly
// negative V14 and a larger amount.
func Row(r *rand.Rand, fraud bool) []float64 {
	row := make([]float64, domain.FeatureCount)
	row[domain.IndexTime] = float64(r.Intn(172800))
	for j := 1; j < domain.FeatureCount-1; j++ {
		row[j] = r.NormFloat64()
	}
	row[domain.IndexAmount] = 5 + r.Float64()*100
	if fraud {
		v14, _ := domain.FeatureIndex("V14")
		row[v14] = FraudV14 + r.NormFloat64()*0.5
		row[domain.IndexAmount] = 400 + r.Float64()*600
	}
	return row
}

// Data returns n labeled rows, alternating fraud and legit.
func Data(n int, seed int64) ([][]float64, []int) {
	r := rand.New(rand.NewSource(seed))
	x := make([][]float64, n)
	y := make([]int, n)
	for i := range x {
		fraud := i%2 == 0
		x[i] = Row(r, fraud)
		if fraud {
			y[i] = 1
		}
	}
	return x, y
}

// Bundle fits a small scaler and forest and wraps them in a bundle.
func Bundle(tb testing.TB) *artifact.Bundle {
	tb.Helper()

	x, y := Data(240, 1)
	sc, err := scaler.Fit(x)
	if err != nil {
		tb.Fatalf("scaler fit: %v", err)
	}
	scaled, err := sc.Transform(x)
	if err != nil {
		tb.Fatalf("scaler transform: %v", err)
	}

	hp := forest.DefaultHyperparams()
	hp.Trees = 25
	hp.MaxDepth = 6
	model, err := forest.Fit(context.Background(), scaled, y, hp)
	if err != nil {
		tb.Fatalf("forest fit: %v", err)
	}
	return artifact.New(sc, model, nil, len(x))
}

// CSV encodes rows with the schema header. A Class column is appended when
// labels is non-nil.
func CSV(rows [][]float64, labels []int) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := domain.FeatureNames()
	if labels != nil {
		header = append(header, domain.ColumnLabel)
	}
	_ = w.Write(header)

	for i, row := range rows {
		rec := make([]string, 0, len(header))
		for _, v := range row {
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if labels != nil {
			rec = append(rec, strconv.Itoa(labels[i]))
		}
		_ = w.Write(rec)
	}
	w.Flush()
	return buf.Bytes()
}
