package api

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/comparison"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/dataset"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/report"
)

// ListHistory returns the caller's scored batches, newest first.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.repo.ListHistory(r.Context(), GetUserEmail(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*domain.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"history": entries,
		"count":   len(entries),
	})
}

// GetHistory returns one batch summary.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.historyEntry(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// DownloadHistory returns the scored CSV of one batch.
func (h *Handler) DownloadHistory(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.historyEntry(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", csvContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "scored_"+entry.ID+".csv"))
	w.Header().Set("X-Batch-ID", entry.ID)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(entry.ResultsCSV); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

// HistoryReport builds the batch report: totals, fraud share, hourly
// pattern, amount summaries and a preview. Accept: text/plain renders it
// as text.
func (h *Handler) HistoryReport(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.historyEntry(w, r)
	if !ok {
		return
	}

	records, err := dataset.ReadScored(bytes.NewReader(entry.ResultsCSV))
	if err != nil {
		writeError(w, r, fmt.Errorf("failed to read stored results for %s: %w", entry.ID, err))
		return
	}
	rep := report.FromHistory(entry, records)

	if strings.Contains(r.Header.Get("Accept"), "text/plain") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := rep.WriteText(w); err != nil {
			slog.Debug("failed to write report", "batch_id", entry.ID, "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// CompareHistory refits a logistic regression and a random forest on a
// stored batch, labeled by its predictions, and reports each model's
// agreement. Accept: text/plain renders it as text.
func (h *Handler) CompareHistory(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.historyEntry(w, r)
	if !ok {
		return
	}

	bundle := h.scorer.Bundle()
	if bundle == nil {
		writeError(w, r, domain.ErrModelNotLoaded)
		return
	}

	records, err := dataset.ReadScored(bytes.NewReader(entry.ResultsCSV))
	if err != nil {
		writeError(w, r, fmt.Errorf("failed to read stored results for %s: %w", entry.ID, err))
		return
	}

	models, err := comparison.Compare(r.Context(), bundle.Scaler, records, h.comparison)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result := &comparison.Result{
		BatchID:  entry.ID,
		BundleID: bundle.ID,
		Rows:     len(records),
		Models:   models,
	}
	slog.Info("batch models compared", "batch_id", entry.ID, "rows", len(records))

	if strings.Contains(r.Header.Get("Accept"), "text/plain") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := result.WriteText(w); err != nil {
			slog.Debug("failed to write comparison", "batch_id", entry.ID, "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ClearHistory deletes all of the caller's batches.
func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	email := GetUserEmail(r.Context())

	n, err := h.repo.DeleteHistory(r.Context(), email)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("history cleared", "user", email, "deleted", n)
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": n,
	})
}

func (h *Handler) historyEntry(w http.ResponseWriter, r *http.Request) (*domain.HistoryEntry, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "batch id is required"})
		return nil, false
	}

	entry, err := h.repo.GetHistory(r.Context(), GetUserEmail(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return entry, true
}
