// Package worker scores batches submitted over the event bus.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/cache"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/dataset"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/scoring"
)

// Worker consumes fraudscore.batch.submitted, scores each batch, stores it in
// the submitter's history and announces the outcome on fraudscore.batch.scored.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	scorer *scoring.Scorer
	cache  domain.Cache
	cfg    Config

	sem           chan struct{}
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// WorkerCount is the number of batches scored concurrently.
	WorkerCount int

	// AlertOnFraud publishes fraudscore.alert for batches with frauds.
	AlertOnFraud bool

	// ResultTTL is how long results stay in the cache when one is set.
	ResultTTL time.Duration
}

// Option configures a Worker.
type Option func(*Worker)

// WithCache stores scored results so repeated uploads are served from cache.
func WithCache(c domain.Cache) Option {
	return func(w *Worker) { w.cache = c }
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, scorer *scoring.Scorer, cfg Config, opts ...Option) *Worker {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		bus:    bus,
		repo:   repo,
		scorer: scorer,
		cfg:    cfg,
		sem:    make(chan struct{}, cfg.WorkerCount),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start subscribes to submitted batches.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicBatchSubmitted, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicBatchSubmitted, err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"topic", domain.TopicBatchSubmitted,
		"worker_count", w.cfg.WorkerCount,
	)
	return nil
}

// handleMessage hands the batch to a free slot. It blocks while every slot
// is busy, which backs up the subscription queue.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	select {
	case w.sem <- struct{}{}: // Acquire
	case <-ctx.Done():
		return ctx.Err()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }() // Release

		if err := w.Process(w.ctx, msg.Payload); err != nil {
			slog.Error("batch processing failed",
				"message_id", msg.ID,
				"error", err,
			)
		}
	}()
	return nil
}

// Process scores one BatchSubmission payload. Scoring failures are reported
// on fraudscore.batch.scored with Error set; the returned error covers
// payloads that cannot be decoded and infrastructure failures.
func (w *Worker) Process(ctx context.Context, payload []byte) error {
	start := time.Now()

	var sub domain.BatchSubmission
	if err := json.Unmarshal(payload, &sub); err != nil {
		return fmt.Errorf("failed to parse batch submission: %w", err)
	}
	if sub.BatchID == "" || sub.UserEmail == "" {
		return fmt.Errorf("%w: batch id and user email are required", domain.ErrInvalidInput)
	}

	slog.Debug("processing batch",
		"batch_id", sub.BatchID,
		"trace_id", sub.TraceID,
		"bytes", len(sub.CSV),
	)

	result, err := w.score(ctx, &sub)
	if err != nil {
		slog.Warn("batch rejected",
			"batch_id", sub.BatchID,
			"error", err,
		)
		w.publish(ctx, domain.TopicBatchScored, &domain.BatchScoredEvent{
			BatchID:   sub.BatchID,
			UserEmail: sub.UserEmail,
			Threshold: sub.Threshold,
			Error:     err.Error(),
		})
		return nil
	}

	var out bytes.Buffer
	if err := dataset.WriteScored(&out, result.Records); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := w.repo.SaveHistory(ctx, domain.NewHistoryEntry(sub.UserEmail, result, out.Bytes())); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}

	if w.cache != nil {
		key := cache.ResultKey(sub.CSV, sub.Threshold)
		if err := w.cache.SetBatchResult(ctx, result.BundleID, key, result, w.cfg.ResultTTL); err != nil {
			slog.Warn("failed to cache result", "batch_id", sub.BatchID, "error", err)
		}
	}

	event := &domain.BatchScoredEvent{
		BatchID:    result.BatchID,
		UserEmail:  sub.UserEmail,
		BundleID:   result.BundleID,
		Threshold:  result.Threshold,
		Total:      result.Total,
		FraudCount: result.FraudCount,
	}
	w.publish(ctx, domain.TopicBatchScored, event)
	if w.cfg.AlertOnFraud && result.FraudCount > 0 {
		w.publish(ctx, domain.TopicAlert, event)
	}

	slog.Info("batch processed",
		"batch_id", result.BatchID,
		"bundle_id", result.BundleID,
		"rows", result.Total,
		"frauds", result.FraudCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Worker) score(ctx context.Context, sub *domain.BatchSubmission) (*domain.BatchResult, error) {
	frame, err := dataset.ReadCSV(bytes.NewReader(sub.CSV))
	if err != nil {
		return nil, err
	}
	result, err := w.scorer.Score(ctx, frame, sub.Threshold)
	if err != nil {
		return nil, err
	}
	result.BatchID = sub.BatchID
	result.Metadata.TraceID = sub.TraceID
	return result, nil
}

func (w *Worker) publish(ctx context.Context, topic string, event *domain.BatchScoredEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal event", "topic", topic, "error", err)
		return
	}
	if err := w.bus.Publish(ctx, topic, payload); err != nil {
		slog.Error("failed to publish event",
			"topic", topic,
			"batch_id", event.BatchID,
			"error", err,
		)
	}
}

// Stop unsubscribes and waits for batches in flight.
func (w *Worker) Stop() error {
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()
	w.cancel()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	InFlight          int      `json:"inFlight"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		InFlight:          len(w.sem),
	}
}
