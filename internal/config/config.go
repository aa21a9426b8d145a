// Package config loads the service configuration from layered sources:
// the tier profile defaults, an optional YAML file and FRAUDSCORE_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

// EnvPrefix prefixes every environment override.
// Nested keys are separated by a double underscore:
// FRAUDSCORE_REPOSITORY__SQLITE_PATH sets repository.sqlite_path.
const EnvPrefix = "FRAUDSCORE_"

// DefaultPath is read when FRAUDSCORE_CONFIG is unset.
const DefaultPath = "configs/fraudscore.yaml"

// Load builds the configuration. The tier profile is picked from
// FRAUDSCORE_TIER before any other source is applied.
func Load() (*domain.Config, error) {
	path := os.Getenv(EnvPrefix + "CONFIG")
	if path == "" {
		path = DefaultPath
	}
	return LoadFrom(path, os.Getenv(EnvPrefix+"TIER"))
}

// LoadFrom builds the configuration from an explicit file path and tier.
// A missing file is not an error.
func LoadFrom(path string, tier string) (*domain.Config, error) {
	k := koanf.New(".")

	defaults := domain.DefaultConfig()
	if domain.Tier(tier) == domain.TierPro {
		defaults = domain.ProConfig()
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg domain.Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// listKeys hold comma separated values when set from the environment.
var listKeys = map[string]bool{
	"auth.admin_emails": true,
}

func envValue(name, value string) (string, any) {
	key := envKey(name)
	if !listKeys[key] {
		return key, value
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return key, items
}

// Validate rejects configurations the service cannot start with.
func Validate(cfg *domain.Config) error {
	if cfg.Scoring.DefaultThreshold < 0 || cfg.Scoring.DefaultThreshold > 1 {
		return fmt.Errorf("%w: scoring.default_threshold %v", domain.ErrInvalidThreshold, cfg.Scoring.DefaultThreshold)
	}
	if cfg.Training.TestSize <= 0 || cfg.Training.TestSize >= 1 {
		return fmt.Errorf("%w: training.test_size must be in (0,1), got %v", domain.ErrInvalidInput, cfg.Training.TestSize)
	}
	if cfg.Training.Trees < 1 || cfg.Training.MaxDepth < 1 || cfg.Training.Neighbors < 1 {
		return fmt.Errorf("%w: training.trees, max_depth and neighbors must be positive", domain.ErrInvalidInput)
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unsupported repository driver %q", domain.ErrInvalidInput, cfg.Repository.Driver)
	}
	if cfg.Artifacts.BundlePath == "" {
		return fmt.Errorf("%w: artifacts.bundle_path is required", domain.ErrInvalidInput)
	}
	return nil
}
