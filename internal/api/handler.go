package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/auth"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/bus"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/comparison"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/repository"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/rules"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/scoring"
)

// maxJSONBytes bounds JSON request bodies.
const maxJSONBytes = 1 << 20

// Deps are the services the API is built on. Cache and Bus may be nil.
type Deps struct {
	Repo    domain.Repository
	Cache   domain.Cache
	Bus     domain.EventBus
	Scorer  *scoring.Scorer
	Engine  *rules.Engine
	Auth    *auth.Service
	Version string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	scorer   *scoring.Scorer
	engine   *rules.Engine
	auth     *auth.Service
	metrics  *Metrics
	validate *validator.Validate
	version  string

	bundlePath       string
	defaultThreshold float64
	maxUploadBytes   int64
	resultTTL        time.Duration
	asyncEnabled     bool
	alertOnFraud     bool
	comparison       comparison.Config
}

// NewHandler creates a new API handler.
func NewHandler(cfg *domain.Config, deps Deps, metrics *Metrics) *Handler {
	cmp := comparison.DefaultConfig()
	if cfg.Scoring.CompareTrees > 0 {
		cmp.Forest.Trees = cfg.Scoring.CompareTrees
	}

	maxUpload := cfg.Server.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = domain.DefaultConfig().Server.MaxUploadBytes
	}

	return &Handler{
		repo:             deps.Repo,
		cache:            deps.Cache,
		bus:              deps.Bus,
		scorer:           deps.Scorer,
		engine:           deps.Engine,
		auth:             deps.Auth,
		metrics:          metrics,
		validate:         validator.New(validator.WithRequiredStructEnabled()),
		version:          deps.Version,
		bundlePath:       cfg.Artifacts.BundlePath,
		defaultThreshold: cfg.Scoring.DefaultThreshold,
		maxUploadBytes:   maxUpload,
		resultTTL:        cfg.Cache.ResultTTL,
		asyncEnabled:     cfg.Worker.Enabled && deps.Bus != nil,
		alertOnFraud:     cfg.Scoring.AlertOnFraud,
		comparison:       cmp,
	}
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			slog.Warn("repository ping failed", "error", err)
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			slog.Warn("cache ping failed", "error", err)
			status = "degraded"
		}
	}

	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			slog.Warn("event bus ping failed", "error", err)
			status = "degraded"
		}
	}

	modelLoaded := h.scorer != nil && h.scorer.Bundle() != nil
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      status,
		"version":     h.version,
		"modelLoaded": modelLoaded,
	})
}

// Ready reports whether a bundle is installed and batches can be scored.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.scorer == nil || h.scorer.Bundle() == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready":  "false",
			"reason": domain.ErrModelNotLoaded.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &tooLarge), errors.Is(err, nats.ErrMaxPayload):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrSchema),
		errors.Is(err, domain.ErrInvalidThreshold),
		errors.Is(err, domain.ErrEmptyBatch),
		errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrUserExists), errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrArtifactMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrModelNotLoaded),
		errors.Is(err, bus.ErrFull),
		errors.Is(err, bus.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err with its mapped status. Internal errors are
// logged and replaced with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"path", r.URL.Path,
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON reads a bounded JSON body into v and validates it.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, err)
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON request body: " + err.Error()})
		return false
	}

	if err := h.validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  "validation failed",
			Fields: validationFields(err),
		})
		return false
	}
	return true
}

// validationFields converts validator errors into a field -> message map.
func validationFields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"body": err.Error()}
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		var msg string
		switch fe.Tag() {
		case "required":
			msg = "this field is required"
		case "email":
			msg = "must be a valid email address"
		case "gte":
			msg = fmt.Sprintf("must be at least %s", fe.Param())
		case "max":
			msg = fmt.Sprintf("must be at most %s characters", fe.Param())
		default:
			msg = fmt.Sprintf("failed %s validation", fe.Tag())
		}
		fields[strings.ToLower(fe.Field()[:1])+fe.Field()[1:]] = msg
	}
	return fields
}
