package domain

import (
	"time"
)

// ScoredRecord is a transaction decorated with the model output.
type ScoredRecord struct {
	Record           TransactionRecord `json:"record"`
	FraudProbability float64           `json:"fraudProbability"` // rounded to 4 decimals
	Prediction       int               `json:"prediction"`       // 0 legit, 1 fraud
}

// BatchResult is the outcome of scoring one uploaded batch.
type BatchResult struct {
	BatchID   string         `json:"batchId"`
	BundleID  string         `json:"bundleId"`
	Threshold float64        `json:"threshold"`
	Records   []ScoredRecord `json:"records"`
	Total     int            `json:"total"`

	// FraudCount is the number of rows with Prediction = 1.
	FraudCount int `json:"fraudCount"`

	// SuggestedThreshold is advisory and never applied. Nil when the
	// probability distribution is uniform.
	SuggestedThreshold *float64 `json:"suggestedThreshold,omitempty"`

	// Reviews holds review rule matches. They do not change predictions.
	Reviews []ReviewFinding `json:"reviews,omitempty"`

	Metadata ScoringMetadata `json:"metadata"`
}

// ScoringMetadata contains processing information.
type ScoringMetadata struct {
	TraceID    string `json:"traceId,omitempty"`
	ParseMs    int64  `json:"parseMs"`
	ScoreMs    int64  `json:"scoreMs"`
	TotalMs    int64  `json:"totalMs"`
	CacheHit   bool   `json:"cacheHit,omitempty"`
	RulesCount int    `json:"rulesCount"`

	// ReviewsFailed is set when review rules could not be evaluated.
	// Reviews is then incomplete.
	ReviewsFailed bool `json:"reviewsFailed,omitempty"`
}

// SinglePrediction is the result of an ad-hoc single transaction query.
// Decision uses the model's internal 0.5 cutoff, not a caller threshold.
type SinglePrediction struct {
	Probability float64 `json:"probability"`
	Decision    int     `json:"decision"`
	BundleID    string  `json:"bundleId"`
}

// Decision labels.
const (
	PredictionLegit = 0
	PredictionFraud = 1
)

// Label returns a human readable label for a prediction.
func Label(prediction int) string {
	if prediction == PredictionFraud {
		return "Fraud"
	}
	return "Legit"
}

// HistoryEntry is a persisted scoring run owned by a user.
type HistoryEntry struct {
	ID                 string    `json:"id"`
	UserEmail          string    `json:"userEmail"`
	BundleID           string    `json:"bundleId"`
	Threshold          float64   `json:"threshold"`
	TotalRows          int       `json:"totalRows"`
	FraudCount         int       `json:"fraudCount"`
	SuggestedThreshold *float64  `json:"suggestedThreshold,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`

	// ResultsCSV is the scored batch as CSV; omitted from listings.
	ResultsCSV []byte `json:"-"`
}

// NewHistoryEntry builds a history entry for a scored batch.
func NewHistoryEntry(userEmail string, result *BatchResult, csv []byte) *HistoryEntry {
	return &HistoryEntry{
		ID:                 result.BatchID,
		UserEmail:          userEmail,
		BundleID:           result.BundleID,
		Threshold:          result.Threshold,
		TotalRows:          result.Total,
		FraudCount:         result.FraudCount,
		SuggestedThreshold: result.SuggestedThreshold,
		CreatedAt:          time.Now().UTC(),
		ResultsCSV:         csv,
	}
}
