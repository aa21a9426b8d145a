package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/cache"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/dataset"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/decision"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/scoring"
)

const csvContentType = "text/csv"

// AsyncResponse is returned by POST /score?async=true.
type AsyncResponse struct {
	BatchID string `json:"batchId"`
	Status  string `json:"status"`
}

// Score handles POST /score. The batch is a CSV request body or the
// "file" part of a multipart form. With ?async=true the batch is queued
// for the worker instead.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	email := GetUserEmail(ctx)

	threshold, err := h.threshold(r)
	if err != nil {
		h.metrics.batchOutcome("rejected")
		writeError(w, r, err)
		return
	}

	upload, err := h.readUpload(w, r)
	if err != nil {
		h.metrics.batchOutcome("rejected")
		writeError(w, r, err)
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		h.submit(w, r, email, threshold, upload)
		return
	}

	result, err := h.scoreUpload(ctx, upload, threshold)
	if err != nil {
		h.metrics.batchOutcome("rejected")
		writeError(w, r, err)
		return
	}

	var scored bytes.Buffer
	if err := dataset.WriteScored(&scored, result.Records); err != nil {
		writeError(w, r, fmt.Errorf("failed to encode results: %w", err))
		return
	}

	if err := h.repo.SaveHistory(ctx, domain.NewHistoryEntry(email, result, scored.Bytes())); err != nil {
		writeError(w, r, fmt.Errorf("failed to save history: %w", err))
		return
	}

	h.metrics.observeBatch(result, time.Since(start))
	h.publishScored(ctx, email, result)

	slog.Info("batch scored",
		"batch_id", result.BatchID,
		"bundle_id", result.BundleID,
		"rows", result.Total,
		"frauds", result.FraudCount,
		"reviews", len(result.Reviews),
		"cache_hit", result.Metadata.CacheHit,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if acceptsCSV(r) {
		writeScoredCSV(w, result, scored.Bytes())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// scoreUpload scores a raw CSV upload, serving repeated uploads from the
// cache. Cached results are keyed by bundle, so a reload never serves a
// previous model's output.
func (h *Handler) scoreUpload(ctx context.Context, upload []byte, threshold float64) (*domain.BatchResult, error) {
	bundle := h.scorer.Bundle()
	if bundle == nil {
		return nil, domain.ErrModelNotLoaded
	}
	key := cache.ResultKey(upload, threshold)

	if h.cache != nil {
		cached, err := h.cache.GetBatchResult(ctx, bundle.ID, key)
		if err != nil {
			slog.Warn("cache lookup failed", "error", err)
		}
		if cached != nil {
			h.metrics.cacheLookup(true)
			cached.BatchID = uuid.New().String()
			cached.Metadata.CacheHit = true
			cached.Metadata.TraceID = GetTraceID(ctx)
			// Rules may have changed since the result was cached.
			if h.engine != nil {
				findings, err := h.engine.Review(ctx, cached.Records)
				cached.Metadata.ReviewsFailed = err != nil
				if err != nil {
					slog.Warn("review rules failed", "error", err)
				}
				cached.Reviews = findings
				cached.Metadata.RulesCount = h.engine.RulesCount()
			}
			return cached, nil
		}
		h.metrics.cacheLookup(false)
	}

	frame, err := dataset.ReadCSV(bytes.NewReader(upload))
	if err != nil {
		return nil, err
	}
	result, err := h.scorer.Score(ctx, frame, threshold)
	if err != nil {
		return nil, err
	}
	if result.Metadata.TraceID == "" {
		result.Metadata.TraceID = GetTraceID(ctx)
	}

	if h.cache != nil {
		if err := h.cache.SetBatchResult(ctx, result.BundleID, key, result, h.resultTTL); err != nil {
			slog.Warn("failed to cache result", "batch_id", result.BatchID, "error", err)
		}
	}
	return result, nil
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, email string, threshold float64, upload []byte) {
	if !h.asyncEnabled {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "async scoring is disabled"})
		return
	}

	// Reject what the worker would reject.
	if err := h.checkUpload(upload); err != nil {
		h.metrics.batchOutcome("rejected")
		writeError(w, r, err)
		return
	}

	sub := domain.BatchSubmission{
		BatchID:   uuid.New().String(),
		UserEmail: email,
		Threshold: threshold,
		TraceID:   GetTraceID(r.Context()),
		CSV:       upload,
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		writeError(w, r, fmt.Errorf("failed to encode submission: %w", err))
		return
	}

	if err := h.bus.Publish(r.Context(), domain.TopicBatchSubmitted, payload); err != nil {
		h.metrics.batchOutcome("rejected")
		writeError(w, r, fmt.Errorf("failed to queue batch: %w", err))
		return
	}

	h.metrics.batchOutcome("queued")
	slog.Info("batch queued", "batch_id", sub.BatchID, "bytes", len(upload))
	w.Header().Set("Location", "/history/"+sub.BatchID)
	writeJSON(w, http.StatusAccepted, AsyncResponse{BatchID: sub.BatchID, Status: "queued"})
}

func (h *Handler) checkUpload(upload []byte) error {
	if h.scorer.Bundle() == nil {
		return domain.ErrModelNotLoaded
	}
	frame, err := dataset.ReadCSV(bytes.NewReader(upload))
	if err != nil {
		return err
	}
	_, err = scoring.Prepare(frame)
	return err
}

// publishScored announces a synchronously scored batch. Delivery is best
// effort; the batch is already persisted.
func (h *Handler) publishScored(ctx context.Context, email string, result *domain.BatchResult) {
	if h.bus == nil {
		return
	}

	payload, err := json.Marshal(domain.BatchScoredEvent{
		BatchID:    result.BatchID,
		UserEmail:  email,
		BundleID:   result.BundleID,
		Threshold:  result.Threshold,
		Total:      result.Total,
		FraudCount: result.FraudCount,
	})
	if err != nil {
		return
	}

	if err := h.bus.Publish(ctx, domain.TopicBatchScored, payload); err != nil {
		slog.Warn("failed to publish event", "topic", domain.TopicBatchScored, "error", err)
	}
	if h.alertOnFraud && result.FraudCount > 0 {
		if err := h.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
			slog.Warn("failed to publish event", "topic", domain.TopicAlert, "error", err)
		}
	}
}

// threshold reads ?threshold, falling back to the configured default.
func (h *Handler) threshold(r *http.Request) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("threshold"))
	if raw == "" {
		return h.defaultThreshold, nil
	}

	t, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: threshold %q is not a number", domain.ErrInvalidThreshold, raw)
	}
	if err := decision.ValidateThreshold(t); err != nil {
		return 0, err
	}
	return t, nil
}

// readUpload returns the uploaded CSV bytes, capped at maxUploadBytes.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: multipart form has no \"file\" part", domain.ErrInvalidInput)
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}
		defer part.Close()
		return io.ReadAll(part)
	}
}

func acceptsCSV(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), csvContentType)
}

func writeScoredCSV(w http.ResponseWriter, result *domain.BatchResult, scored []byte) {
	w.Header().Set("Content-Type", csvContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "scored_"+result.BatchID+".csv"))
	w.Header().Set("X-Batch-ID", result.BatchID)
	w.Header().Set("X-Fraud-Count", strconv.Itoa(result.FraudCount))
	if result.SuggestedThreshold != nil {
		w.Header().Set("X-Suggested-Threshold", strconv.FormatFloat(*result.SuggestedThreshold, 'f', -1, 64))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(scored); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

// ScoreOne handles POST /score/one. The decision uses the model's own 0.5
// cutoff; batch thresholds do not apply.
func (h *Handler) ScoreOne(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	record, err := req.ToRecord()
	if err != nil {
		writeError(w, r, err)
		return
	}

	prediction, err := h.scorer.ScoreOne(r.Context(), record)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"probability": prediction.Probability,
		"decision":    prediction.Decision,
		"label":       domain.Label(prediction.Decision),
		"bundleId":    prediction.BundleID,
	})
}
