package rules

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

func scored(amount, timeSecs, prob float64, prediction int) domain.ScoredRecord {
	var rec domain.TransactionRecord
	rec.Features[domain.IndexAmount] = amount
	rec.Features[domain.IndexTime] = timeSecs
	rec.Features[14] = -7.5 // V14
	return domain.ScoredRecord{Record: rec, FraudProbability: prob, Prediction: prediction}
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rule := &domain.ReviewRule{
		ID:         "large-amount",
		Name:       "Large Amount",
		Expression: "amount > 1000.0",
		Reason:     "amount above 1000",
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}
	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	tests := []struct {
		name string
		rule *domain.ReviewRule
	}{
		{"syntax", &domain.ReviewRule{ID: "bad", Expression: "this is not valid CEL !!!"}},
		{"non bool", &domain.ReviewRule{ID: "num", Expression: "amount * 2.0"}},
		{"unknown variable", &domain.ReviewRule{ID: "var", Expression: "debtor_id == 'x'"}},
		{"missing id", &domain.ReviewRule{Expression: "amount > 1.0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.LoadRule(tt.rule)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	if err := engine.ValidateRule(nil); err == nil {
		t.Error("expected error for nil rule")
	}
}

func TestReview(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(&domain.ReviewRule{
		ID:         "b-night-large",
		Expression: "hour < 6 && amount > 500.0",
		Reason:     "large amount at night",
		Enabled:    true,
	})
	engine.LoadRule(&domain.ReviewRule{
		ID:         "a-near-threshold",
		Expression: "prediction == 0 && fraud_probability > 0.4",
		Reason:     "legit but close to the threshold",
		Enabled:    true,
	})
	engine.LoadRule(&domain.ReviewRule{
		ID:         "c-v14",
		Expression: "features['V14'] < -5.0 && prediction == 0",
		Reason:     "V14 strongly negative",
		Enabled:    true,
	})

	records := []domain.ScoredRecord{
		scored(800, 3600, 0.9, 1),   // 01:00, large -> night rule
		scored(20, 50000, 0.45, 0),  // near threshold + V14
		scored(20, 50000, 0.1, 1),   // nothing
		scored(900, 90000, 0.42, 0), // 01:00 next day, all three rules
	}

	findings, err := engine.Review(context.Background(), records)
	if err != nil {
		t.Fatalf("review failed: %v", err)
	}

	want := []domain.ReviewFinding{
		{Row: 0, RuleID: "b-night-large", Reason: "large amount at night"},
		{Row: 1, RuleID: "a-near-threshold", Reason: "legit but close to the threshold"},
		{Row: 1, RuleID: "c-v14", Reason: "V14 strongly negative"},
		{Row: 3, RuleID: "a-near-threshold", Reason: "legit but close to the threshold"},
		{Row: 3, RuleID: "b-night-large", Reason: "large amount at night"},
		{Row: 3, RuleID: "c-v14", Reason: "V14 strongly negative"},
	}
	if len(findings) != len(want) {
		t.Fatalf("expected %d findings, got %d: %+v", len(want), len(findings), findings)
	}
	for i := range want {
		if findings[i] != want[i] {
			t.Errorf("finding %d: expected %+v, got %+v", i, want[i], findings[i])
		}
	}

	// Predictions are untouched
	if records[0].Prediction != 1 || records[1].Prediction != 0 {
		t.Error("review must not change predictions")
	}
}

func TestReviewWithoutRules(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	findings, err := engine.Review(context.Background(), []domain.ScoredRecord{scored(1, 1, 0.1, 0)})
	if err != nil {
		t.Fatalf("review failed: %v", err)
	}
	if findings != nil {
		t.Errorf("expected no findings, got %v", findings)
	}
}

func TestReviewCancelled(t *testing.T) {
	engine, _ := NewEngine(2)
	defer engine.Close()
	engine.LoadRule(&domain.ReviewRule{ID: "any", Expression: "amount > 0.0", Enabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Review(ctx, []domain.ScoredRecord{scored(1, 1, 0.1, 0)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestParallelExecution(t *testing.T) {
	engine, _ := NewEngine(3)
	defer engine.Close()

	for i := 0; i < 10; i++ {
		engine.LoadRule(&domain.ReviewRule{
			ID:         fmt.Sprintf("rule-%02d", i),
			Expression: "amount > 0.0",
			Enabled:    true,
		})
	}

	records := make([]domain.ScoredRecord, 50)
	for i := range records {
		records[i] = scored(float64(i+1), 0, 0.2, 0)
	}

	findings, err := engine.Review(context.Background(), records)
	if err != nil {
		t.Fatalf("parallel review failed: %v", err)
	}
	if len(findings) != 500 {
		t.Errorf("expected 500 findings, got %d", len(findings))
	}
	for i := 1; i < len(findings); i++ {
		prev, cur := findings[i-1], findings[i]
		if prev.Row > cur.Row || (prev.Row == cur.Row && prev.RuleID >= cur.RuleID) {
			t.Fatalf("findings out of order at %d: %+v then %+v", i, prev, cur)
		}
	}
}

func TestReloadRules(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(&domain.ReviewRule{ID: "old", Expression: "amount > 1.0", Enabled: true})

	err := engine.ReloadRules([]*domain.ReviewRule{
		{ID: "new-1", Expression: "amount > 2.0", Enabled: true},
		{ID: "new-2", Expression: "amount > 3.0", Enabled: false},
	})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	loaded := engine.GetLoadedRules()
	if len(loaded) != 1 || loaded[0].ID != "new-1" {
		t.Errorf("expected only new-1 loaded, got %+v", loaded)
	}

	// A broken rule set keeps the previous rules
	err = engine.ReloadRules([]*domain.ReviewRule{{ID: "broken", Expression: "amount >", Enabled: true}})
	if err == nil {
		t.Fatal("expected error for broken rule set")
	}
	if engine.RulesCount() != 1 {
		t.Errorf("expected previous rule to remain, got %d rules", engine.RulesCount())
	}
}

func TestActivation(t *testing.T) {
	rec := scored(123.45, 7200, 0.77, 1)
	act := Activation(&rec)

	if act["amount"] != 123.45 {
		t.Errorf("expected amount 123.45, got %v", act["amount"])
	}
	if act["hour"] != int64(2) {
		t.Errorf("expected hour 2, got %v", act["hour"])
	}
	if act["prediction"] != int64(1) {
		t.Errorf("expected prediction 1, got %v", act["prediction"])
	}
	features := act["features"].(map[string]float64)
	if len(features) != 28 {
		t.Errorf("expected 28 features, got %d", len(features))
	}
	if features["V14"] != -7.5 {
		t.Errorf("expected V14 -7.5, got %v", features["V14"])
	}
}
