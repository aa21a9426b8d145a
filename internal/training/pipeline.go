// Package training runs the offline job that turns a labeled CSV into a
// persisted model bundle.
package training

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/artifact"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/dataset"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/evaluation"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/ml/forest"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/ml/rng"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/ml/scaler"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/ml/smote"
)

// Pipeline fits scaler, balancer and forest in sequence.
type Pipeline struct {
	cfg    domain.TrainingConfig
	output string
	logger *slog.Logger
	tracer trace.Tracer
}

// NewPipeline creates a pipeline. An empty output path skips persistence.
func NewPipeline(cfg domain.TrainingConfig, output string) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		output: output,
		logger: slog.Default().With("component", "training"),
		tracer: otel.Tracer("fraudscore/training"),
	}
}

// Stats describes a completed run.
type Stats struct {
	Rows      int           `json:"rows"`
	Frauds    int           `json:"frauds"`
	Synthetic int           `json:"synthetic"`
	TrainRows int           `json:"trainRows"`
	TestRows  int           `json:"testRows"`
	Duration  time.Duration `json:"duration"`
}

// Result is the output of a run.
type Result struct {
	Bundle *artifact.Bundle
	Report *evaluation.Report
	Stats  Stats
}

// Run reads the configured CSV and trains on it.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	p.logger.Info("loading training data", "path", p.cfg.DataPath)
	frame, err := dataset.ReadFile(p.cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read training data: %w", err)
	}
	return p.RunFrame(ctx, frame)
}

// RunFrame trains on an in-memory frame. The frame must carry the label
// column. The bundle is written only after every stage succeeds.
func (p *Pipeline) RunFrame(ctx context.Context, frame *domain.Frame) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "training.Run")
	defer span.End()
	start := time.Now()

	if frame.ColumnIndex(domain.ColumnLabel) < 0 {
		return nil, &domain.SchemaError{Missing: []string{domain.ColumnLabel}}
	}
	records, err := dataset.Records(frame)
	if err != nil {
		return nil, err
	}
	x, y, err := dataset.Labeled(records)
	if err != nil {
		return nil, err
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("training data: %w", domain.ErrEmptyBatch)
	}

	stats := Stats{Rows: len(x)}
	for _, label := range y {
		stats.Frauds += label
	}
	p.logger.Info("training data loaded", "rows", stats.Rows, "frauds", stats.Frauds)

	// The scaler is fit on every labeled row before resampling.
	sc, scaled, err := p.scale(ctx, x)
	if err != nil {
		return nil, err
	}

	balanced, err := p.resample(ctx, scaled, y)
	if err != nil {
		return nil, err
	}
	stats.Synthetic = balanced.Synthetic

	trainX, trainY, testX, testY := Split(balanced.X, balanced.Y, p.cfg.TestSize, p.cfg.Seed)
	stats.TrainRows, stats.TestRows = len(trainX), len(testX)
	p.logger.Info("split resampled data", "train_rows", stats.TrainRows, "test_rows", stats.TestRows)

	model, err := p.fit(ctx, trainX, trainY)
	if err != nil {
		return nil, err
	}

	report, err := p.evaluate(ctx, model, testX, testY)
	if err != nil {
		return nil, err
	}

	bundle := artifact.New(sc, model, report, stats.TrainRows)
	if p.output != "" {
		if err := artifact.Save(p.output, bundle); err != nil {
			return nil, fmt.Errorf("failed to save bundle: %w", err)
		}
		p.logger.Info("bundle saved", "path", p.output, "bundle_id", bundle.ID)
	}

	stats.Duration = time.Since(start)
	span.SetAttributes(
		attribute.String("bundle.id", bundle.ID),
		attribute.Int("train.rows", stats.TrainRows),
		attribute.Float64("eval.accuracy", report.Accuracy),
	)
	return &Result{Bundle: bundle, Report: report, Stats: stats}, nil
}

func (p *Pipeline) scale(ctx context.Context, x [][]float64) (*scaler.Params, [][]float64, error) {
	_, span := p.tracer.Start(ctx, "training.Scale")
	defer span.End()

	sc, err := scaler.Fit(x)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fit scaler: %w", err)
	}
	scaled, err := sc.Transform(x)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scale features: %w", err)
	}
	return sc, scaled, nil
}

func (p *Pipeline) resample(ctx context.Context, x [][]float64, y []int) (*smote.Result, error) {
	_, span := p.tracer.Start(ctx, "training.Resample")
	defer span.End()

	balancer := &smote.Balancer{Neighbors: p.cfg.Neighbors, Seed: p.cfg.Seed}
	res, err := balancer.Resample(x, y)
	if err != nil {
		return nil, fmt.Errorf("failed to resample: %w", err)
	}
	span.SetAttributes(attribute.Int("smote.synthetic", res.Synthetic))
	p.logger.Info("resampled minority class", "synthetic", res.Synthetic, "rows", len(res.X))
	return res, nil
}

func (p *Pipeline) fit(ctx context.Context, x [][]float64, y []int) (*forest.Model, error) {
	ctx, span := p.tracer.Start(ctx, "training.Fit")
	defer span.End()

	hp := forest.DefaultHyperparams()
	hp.Trees = p.cfg.Trees
	hp.MaxDepth = p.cfg.MaxDepth
	hp.Seed = p.cfg.Seed
	hp.MinSamplesSplit = p.cfg.MinSamplesSplit
	hp.MinSamplesLeaf = p.cfg.MinSamplesLeaf
	hp.MaxFeatures = p.cfg.MaxFeatures
	hp.Workers = p.cfg.Workers

	start := time.Now()
	model, err := forest.Fit(ctx, x, y, hp)
	if err != nil {
		return nil, fmt.Errorf("failed to fit forest: %w", err)
	}
	p.logger.Info("forest fitted", "trees", hp.Trees, "max_depth", hp.MaxDepth, "duration_ms", time.Since(start).Milliseconds())
	return model, nil
}

// evaluate labels the held-out rows with the model's own cutoff.
func (p *Pipeline) evaluate(ctx context.Context, model *forest.Model, x [][]float64, y []int) (*evaluation.Report, error) {
	_, span := p.tracer.Start(ctx, "training.Evaluate")
	defer span.End()

	predicted := make([]int, len(x))
	for i, row := range x {
		label, err := model.Predict(row)
		if err != nil {
			return nil, err
		}
		predicted[i] = label
	}
	report, err := evaluation.Evaluate(y, predicted)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate: %w", err)
	}
	return report, nil
}

// Split shuffles rows with a stream derived from seed and holds out
// ceil(testSize * n) of them for evaluation.
func Split(x [][]float64, y []int, testSize float64, seed int64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	n := len(x)
	nTest := int(math.Ceil(testSize * float64(n)))
	nTest = min(max(nTest, 0), n)

	perm := rng.New(seed).Stream(rng.StreamSplit).Perm(n)

	testX = make([][]float64, 0, nTest)
	testY = make([]int, 0, nTest)
	trainX = make([][]float64, 0, n-nTest)
	trainY = make([]int, 0, n-nTest)
	for i, idx := range perm {
		if i < nTest {
			testX = append(testX, x[idx])
			testY = append(testY, y[idx])
		} else {
			trainX = append(trainX, x[idx])
			trainY = append(trainY, y[idx])
		}
	}
	return trainX, trainY, testX, testY
}
