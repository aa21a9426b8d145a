// Package dataset reads transaction CSV files into frames and labeled
// matrices, and writes scored batches back out as CSV.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

// ReadCSV reads a header row followed by data rows. Header names are
// trimmed; cell values are kept as text until they are parsed against
// the schema.
func ReadCSV(r io.Reader) (*domain.Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &domain.SchemaError{Reason: "csv has no header row"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	frame := &domain.Frame{Columns: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, &domain.SchemaError{Reason: fmt.Sprintf("csv line %d: %v", perr.Line, perr.Err)}
			}
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		frame.Rows = append(frame.Rows, record)
	}
	return frame, nil
}

// ReadFile opens path and reads it with ReadCSV.
func ReadFile(path string) (*domain.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCSV(file)
}

// Records parses every frame row into schema-ordered records. Columns
// outside the schema are ignored, except the label column which is
// parsed when present.
func Records(frame *domain.Frame) ([]domain.TransactionRecord, error) {
	if missing := domain.MissingColumns(frame.Columns); len(missing) > 0 {
		return nil, &domain.SchemaError{Missing: missing}
	}

	var positions [domain.FeatureCount]int
	for i, name := range domain.FeatureColumns {
		positions[i] = frame.ColumnIndex(name)
	}
	labelPos := frame.ColumnIndex(domain.ColumnLabel)

	records := make([]domain.TransactionRecord, len(frame.Rows))
	for r, row := range frame.Rows {
		if len(row) != len(frame.Columns) {
			return nil, &domain.SchemaError{Reason: fmt.Sprintf("row %d has %d cells, header has %d", r+1, len(row), len(frame.Columns))}
		}
		rec := &records[r]
		for i, pos := range positions {
			v, err := parseCell(row[pos])
			if err != nil {
				return nil, &domain.SchemaError{Reason: fmt.Sprintf("row %d column %s: %v", r+1, domain.FeatureColumns[i], err)}
			}
			rec.Features[i] = v
		}
		if labelPos >= 0 {
			label, err := parseLabel(row[labelPos])
			if err != nil {
				return nil, &domain.SchemaError{Reason: fmt.Sprintf("row %d column %s: %v", r+1, domain.ColumnLabel, err)}
			}
			rec.Label = &label
		}
	}
	return records, nil
}

// Labeled splits records into a feature matrix and a label vector.
// Every record must carry a label.
func Labeled(records []domain.TransactionRecord) ([][]float64, []int, error) {
	x := make([][]float64, len(records))
	y := make([]int, len(records))
	for i := range records {
		if records[i].Label == nil {
			return nil, nil, &domain.SchemaError{Missing: []string{domain.ColumnLabel}}
		}
		row := make([]float64, domain.FeatureCount)
		copy(row, records[i].Features[:])
		x[i] = row
		y[i] = *records[i].Label
	}
	return x, y, nil
}

// Matrix returns the features of records as rows.
func Matrix(records []domain.TransactionRecord) [][]float64 {
	x := make([][]float64, len(records))
	for i := range records {
		row := make([]float64, domain.FeatureCount)
		copy(row, records[i].Features[:])
		x[i] = row
	}
	return x
}

func parseCell(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return v, nil
}

// parseLabel accepts 0/1 written as integers or floats ("1.0").
func parseLabel(s string) (int, error) {
	v, err := parseCell(s)
	if err != nil {
		return 0, err
	}
	switch v {
	case 0:
		return 0, nil
	case 1:
		return 1, nil
	}
	return 0, fmt.Errorf("label must be 0 or 1, got %q", s)
}

// WriteScored writes the schema columns, Prediction and Fraud_Prob for
// every scored record.
func WriteScored(w io.Writer, records []domain.ScoredRecord) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, domain.FeatureCount+2)
	header = append(header, domain.FeatureColumns[:]...)
	header = append(header, domain.ColumnPrediction, domain.ColumnFraudProb)
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for _, rec := range records {
		for i, v := range rec.Record.Features {
			row[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		row[domain.FeatureCount] = strconv.Itoa(rec.Prediction)
		row[domain.FeatureCount+1] = strconv.FormatFloat(rec.FraudProbability, 'f', -1, 64)
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadScored parses CSV produced by WriteScored.
func ReadScored(r io.Reader) ([]domain.ScoredRecord, error) {
	frame, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	predPos := frame.ColumnIndex(domain.ColumnPrediction)
	probPos := frame.ColumnIndex(domain.ColumnFraudProb)
	var missing []string
	if predPos < 0 {
		missing = append(missing, domain.ColumnPrediction)
	}
	if probPos < 0 {
		missing = append(missing, domain.ColumnFraudProb)
	}
	if len(missing) > 0 {
		return nil, &domain.SchemaError{Missing: missing}
	}

	records, err := Records(frame)
	if err != nil {
		return nil, err
	}

	scored := make([]domain.ScoredRecord, len(records))
	for i, row := range frame.Rows {
		pred, err := parseLabel(row[predPos])
		if err != nil {
			return nil, &domain.SchemaError{Reason: fmt.Sprintf("row %d column %s: %v", i+1, domain.ColumnPrediction, err)}
		}
		prob, err := parseCell(row[probPos])
		if err != nil {
			return nil, &domain.SchemaError{Reason: fmt.Sprintf("row %d column %s: %v", i+1, domain.ColumnFraudProb, err)}
		}
		scored[i] = domain.ScoredRecord{Record: records[i], FraudProbability: prob, Prediction: pred}
	}
	return scored, nil
}
