package domain

// SchemaVersion tags every artifact bundle. A bundle written under a different
// schema version is rejected at load time.
const SchemaVersion = "creditcard-v1"

// FeatureCount is the number of model input columns.
const FeatureCount = 30

// Column names outside the feature set.
const (
	ColumnTime       = "Time"
	ColumnAmount     = "Amount"
	ColumnLabel      = "Class"
	ColumnPrediction = "Prediction"
	ColumnFraudProb  = "Fraud_Prob"
)

// FeatureColumns is the fixed, ordered model input schema.
var FeatureColumns = [FeatureCount]string{
	ColumnTime,
	"V1", "V2", "V3", "V4", "V5", "V6", "V7",
	"V8", "V9", "V10", "V11", "V12", "V13", "V14",
	"V15", "V16", "V17", "V18", "V19", "V20", "V21",
	"V22", "V23", "V24", "V25", "V26", "V27", "V28",
	ColumnAmount,
}

// Feature indexes used by the report layer.
const (
	IndexTime   = 0
	IndexAmount = FeatureCount - 1
)

var featureIndex = func() map[string]int {
	m := make(map[string]int, FeatureCount)
	for i, c := range FeatureColumns {
		m[c] = i
	}
	return m
}()

// FeatureIndex returns the schema position of a column name.
func FeatureIndex(name string) (int, bool) {
	i, ok := featureIndex[name]
	return i, ok
}

// FeatureNames returns the schema as a fresh slice.
func FeatureNames() []string {
	names := make([]string, FeatureCount)
	copy(names, FeatureColumns[:])
	return names
}

// MissingColumns returns the schema columns absent from columns, in schema order.
func MissingColumns(columns []string) []string {
	present := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		present[c] = struct{}{}
	}

	var missing []string
	for _, c := range FeatureColumns {
		if _, ok := present[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}
