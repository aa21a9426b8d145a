package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.NoError(t, err)

	assert.Equal(t, domain.TierCommunity, cfg.Tier)
	assert.Equal(t, "sqlite", cfg.Repository.Driver)
	assert.Equal(t, "model/fraud_model.bundle", cfg.Artifacts.BundlePath)
	assert.Equal(t, 100, cfg.Training.Trees)
	assert.Equal(t, 12, cfg.Training.MaxDepth)
	assert.Equal(t, int64(42), cfg.Training.Seed)
	assert.InDelta(t, 0.5, cfg.Scoring.DefaultThreshold, 1e-12)
}

func TestLoadFromProTier(t *testing.T) {
	cfg, err := LoadFrom("", string(domain.TierPro))
	require.NoError(t, err)

	assert.Equal(t, domain.TierPro, cfg.Tier)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.Equal(t, "nats", cfg.EventBus.Type)
	assert.True(t, cfg.Worker.Enabled)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fraudscore.yaml")
	yaml := []byte(`
server:
  port: 9090
training:
  trees: 25
cache:
  result_ttl: 2m
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	t.Setenv("FRAUDSCORE_TRAINING__TREES", "50")
	t.Setenv("FRAUDSCORE_REPOSITORY__SQLITE_PATH", "/tmp/scores.db")

	cfg, err := LoadFrom(path, "")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Training.Trees, "env overrides file")
	assert.Equal(t, "/tmp/scores.db", cfg.Repository.SQLitePath)
	assert.Equal(t, 2*time.Minute, cfg.Cache.ResultTTL)
}

func TestAdminEmailsFromEnv(t *testing.T) {
	t.Setenv("FRAUDSCORE_AUTH__ADMIN_EMAILS", "ops@example.com, lead@example.com,")

	cfg, err := LoadFrom("", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ops@example.com", "lead@example.com"}, cfg.Auth.AdminEmails)
}

func TestZeroDefaultThresholdIsKept(t *testing.T) {
	t.Setenv("FRAUDSCORE_SCORING__DEFAULT_THRESHOLD", "0")

	cfg, err := LoadFrom("", "")
	require.NoError(t, err)
	assert.Zero(t, cfg.Scoring.DefaultThreshold)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Config)
		want   error
	}{
		{"defaults", func(*domain.Config) {}, nil},
		{"threshold above one", func(c *domain.Config) { c.Scoring.DefaultThreshold = 1.5 }, domain.ErrInvalidThreshold},
		{"zero test size", func(c *domain.Config) { c.Training.TestSize = 0 }, domain.ErrInvalidInput},
		{"no trees", func(c *domain.Config) { c.Training.Trees = 0 }, domain.ErrInvalidInput},
		{"unknown driver", func(c *domain.Config) { c.Repository.Driver = "mysql" }, domain.ErrInvalidInput},
		{"empty bundle path", func(c *domain.Config) { c.Artifacts.BundlePath = "" }, domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
