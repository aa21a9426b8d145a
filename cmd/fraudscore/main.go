// Fraudscore serves batch and single-transaction fraud scoring over HTTP.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/api"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/artifact"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/auth"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/bus"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/cache"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/config"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/repository"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/rules"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/scoring"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fraudscore failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		setupLogger(domain.DefaultConfig().Logging)
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogger(cfg.Logging)

	slog.Info("starting fraudscore",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"bundle_path", cfg.Artifacts.BundlePath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Review rules come from the database; configure them via POST /rules.
	engine, err := rules.NewEngine(cfg.Scoring.MaxRules)
	if err != nil {
		return fmt.Errorf("failed to initialize rule engine: %w", err)
	}
	defer engine.Close()
	loadRulesFromDatabase(ctx, repo, engine)

	bundle, err := loadBundle(cfg.Artifacts.BundlePath)
	if err != nil {
		return err
	}
	scorer, err := scoring.New(bundle, scoring.WithReviewer(engine))
	if err != nil {
		return fmt.Errorf("failed to initialize scorer: %w", err)
	}

	authCfg := cfg.Auth
	if authCfg.JWTSecret == "" {
		authCfg.JWTSecret = ephemeralSecret()
		slog.Warn("no jwt secret configured; sessions will not survive a restart",
			"env", config.EnvPrefix+"AUTH__JWT_SECRET",
		)
	}
	authSvc, err := auth.New(repo, authCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize auth: %w", err)
	}
	if len(authCfg.AdminEmails) == 0 {
		slog.Warn("no admin emails configured; model reload and rule edits are disabled",
			"env", config.EnvPrefix+"AUTH__ADMIN_EMAILS",
		)
	}

	// Async worker
	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, repo, scorer, worker.Config{
			WorkerCount:  cfg.Worker.WorkerCount,
			AlertOnFraud: cfg.Scoring.AlertOnFraud,
			ResultTTL:    cfg.Cache.ResultTTL,
		}, worker.WithCache(cacheImpl))

		if err := asyncWorker.Start(); err != nil {
			return fmt.Errorf("failed to start async worker: %w", err)
		}
		slog.Info("async worker started", "workers", cfg.Worker.WorkerCount)
	}

	srv := api.NewServer(cfg, api.Deps{
		Repo:    repo,
		Cache:   cacheImpl,
		Bus:     busImpl,
		Scorer:  scorer,
		Engine:  engine,
		Auth:    authSvc,
		Version: Version,
	}, api.NewMetrics())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("fraudscore is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"model_loaded", bundle != nil,
	)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop async worker after the server so queued batches are not cut off.
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	slog.Info("fraudscore shutdown complete")
	return nil
}

func setupLogger(cfg domain.LoggingConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	if os.Getenv(config.EnvPrefix+"DEBUG") == "true" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadBundle reads the model bundle. A missing file is not fatal: the
// server starts and scoring returns 503 until POST /model/reload succeeds.
func loadBundle(path string) (*artifact.Bundle, error) {
	bundle, err := artifact.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("no model bundle found; run the train command first", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load model bundle: %w", err)
	}

	info := bundle.Info()
	slog.Info("model bundle loaded",
		"bundle_id", info.BundleID,
		"schema_version", info.SchemaVersion,
		"trees", info.Trees,
		"trained_at", info.TrainedAt,
	)
	return bundle, nil
}

// loadRulesFromDatabase loads stored review rules. Failures leave the
// engine empty; rules can be reloaded over the API.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) {
	stored, err := repo.ListReviewRules(ctx)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return
	}
	if err := engine.ReloadRules(stored); err != nil {
		slog.Warn("failed to load rules", "error", err)
		return
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())
}

func ephemeralSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
