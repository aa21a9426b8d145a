// Package scoring runs batch and single-record inference with a loaded
// artifact bundle.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/artifact"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/dataset"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/decision"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

// chunkSize is the number of rows one goroutine scores at a time.
const chunkSize = 2048

// Reviewer produces advisory findings for scored rows.
type Reviewer interface {
	Review(ctx context.Context, records []domain.ScoredRecord) ([]domain.ReviewFinding, error)
	RulesCount() int
}

// Scorer scores transaction batches. It is safe for concurrent use; the
// bundle can be replaced at any time with Swap.
type Scorer struct {
	mu       sync.RWMutex
	bundle   *artifact.Bundle
	reviewer Reviewer
	workers  int
	tracer   trace.Tracer
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithReviewer attaches review rules to batch scoring.
func WithReviewer(r Reviewer) Option {
	return func(s *Scorer) { s.reviewer = r }
}

// WithWorkers bounds concurrent chunk scoring.
func WithWorkers(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.workers = n
		}
	}
}

// New creates a scorer. A nil bundle is allowed; scoring then fails with
// ErrModelNotLoaded until Swap installs one.
func New(bundle *artifact.Bundle, opts ...Option) (*Scorer, error) {
	s := &Scorer{
		workers: runtime.GOMAXPROCS(0),
		tracer:  otel.Tracer("fraudscore/scoring"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if bundle != nil {
		if err := s.Swap(bundle); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Swap validates and installs a new bundle. Batches already in flight
// finish with the bundle they started with.
func (s *Scorer) Swap(bundle *artifact.Bundle) error {
	if bundle == nil {
		return fmt.Errorf("swap: %w", domain.ErrModelNotLoaded)
	}
	if err := bundle.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundle = bundle
	return nil
}

// Bundle returns the currently installed bundle, or nil.
func (s *Scorer) Bundle() *artifact.Bundle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bundle
}

func (s *Scorer) pin() (*artifact.Bundle, error) {
	b := s.Bundle()
	if b == nil {
		return nil, domain.ErrModelNotLoaded
	}
	return b, nil
}

// Score validates frame against the schema, scores every row and applies
// threshold. The label column is dropped first; other extra columns are
// ignored. Nothing is scored when any row fails validation.
func (s *Scorer) Score(ctx context.Context, frame *domain.Frame, threshold float64) (*domain.BatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "scoring.Score")
	defer span.End()

	start := time.Now()

	if err := decision.ValidateThreshold(threshold); err != nil {
		return nil, spanError(span, err)
	}

	records, err := Prepare(frame)
	if err != nil {
		return nil, spanError(span, err)
	}
	parseMs := time.Since(start).Milliseconds()

	result, err := s.ScoreRecords(ctx, records, threshold)
	if err != nil {
		return nil, spanError(span, err)
	}
	result.Metadata.ParseMs = parseMs
	result.Metadata.TotalMs = time.Since(start).Milliseconds()
	return result, nil
}

// Prepare drops the label column, checks frame against the schema and
// parses every row. It fails with a SchemaError naming the missing
// columns, or ErrEmptyBatch when there are no rows.
func Prepare(frame *domain.Frame) ([]domain.TransactionRecord, error) {
	frame = frame.DropColumn(domain.ColumnLabel)
	if missing := domain.MissingColumns(frame.Columns); len(missing) > 0 {
		return nil, &domain.SchemaError{Missing: missing}
	}
	if frame.Len() == 0 {
		return nil, fmt.Errorf("score: %w", domain.ErrEmptyBatch)
	}
	return dataset.Records(frame)
}

// ScoreRecords scores already parsed records. Records keep their order.
func (s *Scorer) ScoreRecords(ctx context.Context, records []domain.TransactionRecord, threshold float64) (*domain.BatchResult, error) {
	if err := decision.ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("score: %w", domain.ErrEmptyBatch)
	}

	bundle, err := s.pin()
	if err != nil {
		return nil, err
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.Int("batch.rows", len(records)),
		attribute.Float64("batch.threshold", threshold),
		attribute.String("bundle.id", bundle.ID),
	)

	start := time.Now()
	probs, err := s.predict(ctx, bundle, records)
	if err != nil {
		return nil, err
	}

	policy := decision.Policy{Threshold: threshold}
	scored := make([]domain.ScoredRecord, len(records))
	fraud := 0
	for i := range records {
		rec := records[i]
		rec.Label = nil
		scored[i] = domain.ScoredRecord{
			Record:           rec,
			FraudProbability: decision.Round(probs[i], decision.ProbabilityPlaces),
			Prediction:       policy.Decide(probs[i]),
		}
		if scored[i].Prediction == domain.PredictionFraud {
			fraud++
		}
	}

	result := &domain.BatchResult{
		BatchID:    uuid.New().String(),
		BundleID:   bundle.ID,
		Threshold:  threshold,
		Records:    scored,
		Total:      len(scored),
		FraudCount: fraud,
	}

	suggested, err := decision.SuggestThreshold(probs)
	switch {
	case err == nil:
		result.SuggestedThreshold = &suggested
	case errors.Is(err, domain.ErrUniformScores):
		slog.Debug("suggested threshold omitted", "reason", err.Error(), "rows", len(probs))
	default:
		return nil, err
	}

	if s.reviewer != nil {
		findings, err := s.reviewer.Review(ctx, scored)
		if err != nil {
			slog.Warn("review rules failed", "error", err)
			result.Metadata.ReviewsFailed = true
		}
		result.Reviews = findings
		result.Metadata.RulesCount = s.reviewer.RulesCount()
	}

	result.Metadata.ScoreMs = time.Since(start).Milliseconds()
	result.Metadata.TotalMs = result.Metadata.ScoreMs
	if sc := span.SpanContext(); sc.HasTraceID() {
		result.Metadata.TraceID = sc.TraceID().String()
	}
	span.SetAttributes(attribute.Int("batch.frauds", fraud))
	return result, nil
}

// predict returns the raw fraud probability of every record. Rows are
// scored in chunks on a bounded worker pool.
func (s *Scorer) predict(ctx context.Context, bundle *artifact.Bundle, records []domain.TransactionRecord) ([]float64, error) {
	probs := make([]float64, len(records))
	errs := make([]error, (len(records)+chunkSize-1)/chunkSize)

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.workers)

	for c := 0; c*chunkSize < len(records); c++ {
		wg.Add(1)
		go func(chunk int) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			if err := ctx.Err(); err != nil {
				errs[chunk] = err
				return
			}

			lo := chunk * chunkSize
			hi := min(lo+chunkSize, len(records))
			for i := lo; i < hi; i++ {
				row, err := bundle.Scaler.TransformRow(records[i].Features[:])
				if err != nil {
					errs[chunk] = fmt.Errorf("row %d: %w", i+1, err)
					return
				}
				p, err := bundle.Model.PredictProba(row)
				if err != nil {
					errs[chunk] = fmt.Errorf("row %d: %w", i+1, err)
					return
				}
				probs[i] = p
			}
		}(c)
	}

	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return probs, nil
}

// ScoreOne scores a single record with the model's own 0.5 cutoff. It does
// not take a caller threshold; batch scoring does.
func (s *Scorer) ScoreOne(ctx context.Context, record *domain.TransactionRecord) (*domain.SinglePrediction, error) {
	_, span := s.tracer.Start(ctx, "scoring.ScoreOne")
	defer span.End()

	bundle, err := s.pin()
	if err != nil {
		return nil, spanError(span, err)
	}

	row, err := bundle.Scaler.TransformRow(record.Features[:])
	if err != nil {
		return nil, spanError(span, err)
	}
	p, err := bundle.Model.PredictProba(row)
	if err != nil {
		return nil, spanError(span, err)
	}
	label, err := bundle.Model.Predict(row)
	if err != nil {
		return nil, spanError(span, err)
	}

	span.SetAttributes(attribute.Float64("fraud.probability", p), attribute.Int("fraud.decision", label))
	return &domain.SinglePrediction{
		Probability: decision.Round(p, decision.ProbabilityPlaces),
		Decision:    label,
		BundleID:    bundle.ID,
	}, nil
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
