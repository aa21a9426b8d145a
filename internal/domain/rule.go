package domain

import "time"

// ReviewRule is a CEL expression evaluated against every scored row.
// A row matching an enabled rule is surfaced for manual review; the
// model prediction is left as is.
type ReviewRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Expression must evaluate to bool. Available variables: amount, time,
	// hour, fraud_probability, prediction and features (map of V1..V28).
	Expression string `json:"expression"`

	// Reason is attached to every finding produced by this rule.
	Reason string `json:"reason"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// ReviewFinding is a single rule match on a scored row.
type ReviewFinding struct {
	Row    int    `json:"row"`
	RuleID string `json:"ruleId"`
	Reason string `json:"reason"`
}
