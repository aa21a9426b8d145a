package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/artifact"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/evaluation"
)

// ModelResponse describes the installed bundle.
type ModelResponse struct {
	domain.ModelInfo
	Features []string           `json:"features"`
	Report   *evaluation.Report `json:"report,omitempty"`
}

// GetModel handles GET /model.
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	bundle := h.scorer.Bundle()
	if bundle == nil {
		writeError(w, r, domain.ErrModelNotLoaded)
		return
	}

	writeJSON(w, http.StatusOK, ModelResponse{
		ModelInfo: bundle.Info(),
		Features:  bundle.Features,
		Report:    bundle.Report,
	})
}

// ReloadModel reads the bundle from disk and installs it. Batches already
// being scored finish on the previous bundle.
func (h *Handler) ReloadModel(w http.ResponseWriter, r *http.Request) {
	bundle, err := artifact.Load(h.bundlePath)
	if err == nil {
		err = h.scorer.Swap(bundle)
	}
	h.metrics.modelReload(err)
	if err != nil {
		slog.Error("model reload failed", "path", h.bundlePath, "error", err)
		writeError(w, r, err)
		return
	}

	info := bundle.Info()
	if h.bus != nil {
		payload, _ := json.Marshal(info)
		if err := h.bus.Publish(r.Context(), domain.TopicModelReloaded, payload); err != nil {
			slog.Warn("failed to publish event", "topic", domain.TopicModelReloaded, "error", err)
		}
	}

	slog.Info("model reloaded", "bundle_id", info.BundleID, "trees", info.Trees)
	writeJSON(w, http.StatusOK, info)
}

// RuleRequest is the body of POST /rules.
type RuleRequest struct {
	ID          string `json:"id" validate:"required,max=64"`
	Name        string `json:"name" validate:"required,max=128"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression" validate:"required"`
	Reason      string `json:"reason" validate:"required"`
	Enabled     bool   `json:"enabled"`
}

// ListRules returns the review rules currently loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loaded,
		"count": len(loaded),
	})
}

// CreateRule compiles, stores and applies a review rule. Saving an
// existing ID replaces it.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	rule := &domain.ReviewRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Reason:      req.Reason,
		Enabled:     req.Enabled,
	}

	if err := h.engine.ValidateRule(rule); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.repo.SaveReviewRule(r.Context(), rule); err != nil {
		writeError(w, r, fmt.Errorf("failed to save rule: %w", err))
		return
	}

	count, err := h.reloadRules(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("rule saved", "id", rule.ID, "enabled", rule.Enabled, "loaded", count)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":   rule,
		"loaded": count,
	})
}

// ReloadRules reloads every enabled rule from the repository.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	count, err := h.reloadRules(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("rules reloaded from database", "count", count)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   count,
	})
}

func (h *Handler) reloadRules(ctx context.Context) (int, error) {
	stored, err := h.repo.ListReviewRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load rules from database: %w", err)
	}
	if err := h.engine.ReloadRules(stored); err != nil {
		return 0, fmt.Errorf("failed to reload rules: %w", err)
	}
	return h.engine.RulesCount(), nil
}
