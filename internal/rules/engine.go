// Package rules provides the CEL-Go based review rule engine. Review rules
// flag scored rows for a human look; they never change a prediction.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

// Engine is the CEL-based review rule engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.ReviewRule
	Program cel.Program
}

// NewEngine creates a new rule engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// Create CEL environment with scored row variables
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("time", cel.DoubleType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("fraud_probability", cel.DoubleType),
		cel.Variable("prediction", cel.IntType),
		cel.Variable("features", cel.MapType(cel.StringType, cel.DoubleType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without mutating the loaded rules.
func (e *Engine) ValidateRule(cfg *domain.ReviewRule) error {
	if cfg == nil {
		return fmt.Errorf("%w: rule is required", domain.ErrInvalidInput)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.ReviewRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled
	return nil
}

// ReloadRules replaces every loaded rule. Disabled rules are skipped.
// On a compile error the previous rule set stays in place.
func (e *Engine) ReloadRules(configs []*domain.ReviewRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// Activation builds the CEL variables for a scored row.
func Activation(rec *domain.ScoredRecord) map[string]any {
	features := make(map[string]float64, domain.FeatureCount-2)
	for i := 1; i < domain.FeatureCount-1; i++ {
		features[domain.FeatureColumns[i]] = rec.Record.Features[i]
	}
	return map[string]any{
		"amount":            rec.Record.Amount(),
		"time":              rec.Record.Time(),
		"hour":              int64(rec.Record.Hour()),
		"fraud_probability": rec.FraudProbability,
		"prediction":        int64(rec.Prediction),
		"features":          features,
	}
}

// Review evaluates every loaded rule against every record in parallel.
// Findings are ordered by row, then rule ID. A rule that errors on a row
// is treated as not matching that row.
func (e *Engine) Review(ctx context.Context, records []domain.ScoredRecord) ([]domain.ReviewFinding, error) {
	rules := e.sortedRules()
	if len(rules) == 0 || len(records) == 0 {
		return nil, nil
	}

	activations := make([]map[string]any, len(records))
	for i := range records {
		activations[i] = Activation(&records[i])
	}

	// Parallel evaluation using worker pool pattern
	matches := make([][]int, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			for row, act := range activations {
				if ctx.Err() != nil {
					return
				}
				if matched(r, act) {
					matches[idx] = append(matches[idx], row)
				}
			}
		}(i, rule)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var findings []domain.ReviewFinding
	for i, rows := range matches {
		for _, row := range rows {
			findings = append(findings, domain.ReviewFinding{
				Row:    row,
				RuleID: rules[i].Config.ID,
				Reason: rules[i].Config.Reason,
			})
		}
	}
	sort.SliceStable(findings, func(a, b int) bool {
		return findings[a].Row < findings[b].Row
	})
	return findings, nil
}

func matched(rule *CompiledRule, activation map[string]any) bool {
	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		return false
	}
	b, ok := out.(types.Bool)
	return ok && bool(b)
}

func (e *Engine) sortedRules() []*CompiledRule {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	sort.Slice(rules, func(a, b int) bool { return rules[a].Config.ID < rules[b].Config.ID })
	return rules
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the loaded rule configurations ordered by ID.
func (e *Engine) GetLoadedRules() []*domain.ReviewRule {
	rules := e.sortedRules()
	out := make([]*domain.ReviewRule, len(rules))
	for i, r := range rules {
		out[i] = r.Config
	}
	return out
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.ReviewRule) (*CompiledRule, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("%w: rule id is required", domain.ErrInvalidInput)
	}
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: failed to compile rule %s: %v", domain.ErrInvalidInput, cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: rule %s: expression must return bool, got %s", domain.ErrInvalidInput, cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
