package domain

import (
	"math"
	"time"
)

// TransactionRecord is one card transaction in schema order.
type TransactionRecord struct {
	Features [FeatureCount]float64 `json:"features"`

	// Label is only set on training data.
	Label *int `json:"label,omitempty"`
}

// Time returns the seconds-since-origin field.
func (r *TransactionRecord) Time() float64 {
	return r.Features[IndexTime]
}

// Amount returns the transaction amount.
func (r *TransactionRecord) Amount() float64 {
	return r.Features[IndexAmount]
}

// Hour returns the hour of day derived from Time, in [0, 24).
func (r *TransactionRecord) Hour() int {
	h := int(math.Floor(r.Time()/3600)) % 24
	if h < 0 {
		h += 24
	}
	return h
}

// Frame is a tabular batch as uploaded: a header plus raw cell values.
// Rows may carry columns outside the schema.
type Frame struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of data rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// ColumnIndex returns the position of a column name in the frame header.
func (f *Frame) ColumnIndex(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// DropColumn returns a copy of the frame without the named column.
// The receiver is left untouched.
func (f *Frame) DropColumn(name string) *Frame {
	idx := f.ColumnIndex(name)
	if idx < 0 {
		return f
	}

	out := &Frame{
		Columns: make([]string, 0, len(f.Columns)-1),
		Rows:    make([][]string, len(f.Rows)),
	}
	out.Columns = append(out.Columns, f.Columns[:idx]...)
	out.Columns = append(out.Columns, f.Columns[idx+1:]...)

	for i, row := range f.Rows {
		r := make([]string, 0, len(row))
		for j, v := range row {
			if j != idx {
				r = append(r, v)
			}
		}
		out.Rows[i] = r
	}
	return out
}

// TransactionRequest is the API payload for scoring a single transaction.
type TransactionRequest struct {
	Time   *float64           `json:"time" validate:"required,gte=0"`
	Amount *float64           `json:"amount" validate:"required,gte=0"`
	V      map[string]float64 `json:"v" validate:"required"`
}

// ToRecord converts a request into a schema-ordered record.
// Every V1..V28 key must be present.
func (r *TransactionRequest) ToRecord() (*TransactionRecord, error) {
	rec := &TransactionRecord{}
	rec.Features[IndexTime] = *r.Time
	rec.Features[IndexAmount] = *r.Amount

	var missing []string
	for i := 1; i < FeatureCount-1; i++ {
		name := FeatureColumns[i]
		v, ok := r.V[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		rec.Features[i] = v
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}
	return rec, nil
}

// ModelInfo describes the currently loaded artifact bundle.
type ModelInfo struct {
	BundleID      string    `json:"bundleId"`
	SchemaVersion string    `json:"schemaVersion"`
	Trees         int       `json:"trees"`
	MaxDepth      int       `json:"maxDepth"`
	TrainedAt     time.Time `json:"trainedAt"`
	TrainRows     int       `json:"trainRows"`
	Accuracy      float64   `json:"accuracy"`
}
