package domain

import "time"

// Config holds the complete fraudscore configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" koanf:"server"`

	// Tier determines which backing services are used
	Tier Tier `json:"tier" koanf:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" koanf:"repository"`
	Cache      CacheConfig      `json:"cache" koanf:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" koanf:"event_bus"`

	// Model lifecycle
	Artifacts ArtifactsConfig `json:"artifacts" koanf:"artifacts"`
	Training  TrainingConfig  `json:"training" koanf:"training"`
	Scoring   ScoringConfig   `json:"scoring" koanf:"scoring"`

	Auth   AuthConfig   `json:"-" koanf:"auth"`
	Worker WorkerConfig `json:"worker" koanf:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging" koanf:"logging"`
	Tracing TracingConfig `json:"tracing" koanf:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" koanf:"host"`
	Port         int    `json:"port" koanf:"port"`
	ReadTimeout  int    `json:"readTimeout" koanf:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" koanf:"write_timeout"` // seconds

	// MaxUploadBytes caps the CSV body accepted by POST /score.
	MaxUploadBytes int64 `json:"maxUploadBytes" koanf:"max_upload_bytes"`
}

// ArtifactsConfig locates the persisted model bundle.
type ArtifactsConfig struct {
	BundlePath string `json:"bundlePath" koanf:"bundle_path"`
}

// TrainingConfig holds the offline training job settings.
type TrainingConfig struct {
	DataPath string `json:"dataPath" koanf:"data_path"`

	// TestSize is the held-out fraction used for the evaluation report.
	TestSize float64 `json:"testSize" koanf:"test_size"`
	Seed     int64   `json:"seed" koanf:"seed"`

	// SMOTE
	Neighbors int `json:"neighbors" koanf:"neighbors"`

	// Forest
	Trees           int `json:"trees" koanf:"trees"`
	MaxDepth        int `json:"maxDepth" koanf:"max_depth"`
	MinSamplesSplit int `json:"minSamplesSplit" koanf:"min_samples_split"`
	MinSamplesLeaf  int `json:"minSamplesLeaf" koanf:"min_samples_leaf"`
	MaxFeatures     int `json:"maxFeatures" koanf:"max_features"` // 0 = floor(sqrt(d))
	Workers         int `json:"workers" koanf:"workers"`          // 0 = GOMAXPROCS
}

// ScoringConfig holds batch scoring settings.
type ScoringConfig struct {
	DefaultThreshold float64 `json:"defaultThreshold" koanf:"default_threshold"`

	// AlertOnFraud publishes fraudscore.alert when a batch has frauds.
	AlertOnFraud bool `json:"alertOnFraud" koanf:"alert_on_fraud"`

	// MaxRules bounds concurrent review rule evaluation.
	MaxRules int `json:"maxRules" koanf:"max_rules"`

	// CompareTrees is the forest size used by model comparison.
	CompareTrees int `json:"compareTrees" koanf:"compare_trees"`
}

// AuthConfig holds session token settings.
type AuthConfig struct {
	JWTSecret   string        `koanf:"jwt_secret"`
	TokenExpiry time.Duration `koanf:"token_expiry"`
	BcryptCost  int           `koanf:"bcrypt_cost"`

	// AdminEmails may reload the model and edit review rules.
	AdminEmails []string `koanf:"admin_emails"`
}

// WorkerConfig controls the asynchronous scoring worker.
type WorkerConfig struct {
	Enabled     bool `json:"enabled" koanf:"enabled"`
	WorkerCount int  `json:"workerCount" koanf:"worker_count"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" koanf:"level"`   // debug, info, warn, error
	Format string `json:"format" koanf:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" koanf:"enabled"`
	ServiceName string `json:"serviceName" koanf:"service_name"`
}

// Tier represents the deployment profile.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process LRU
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultThreshold is the decision threshold used when a batch omits one.
const DefaultThreshold = 0.5

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30,
			WriteTimeout:   60,
			MaxUploadBytes: 200 << 20,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./fraudscore.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 256,
			LocalTTL:     5 * time.Minute,
			ResultTTL:    10 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 100,
		},
		Artifacts: ArtifactsConfig{
			BundlePath: "model/fraud_model.bundle",
		},
		Training: TrainingConfig{
			DataPath:        "data/creditcard.csv",
			TestSize:        0.3,
			Seed:            42,
			Neighbors:       5,
			Trees:           100,
			MaxDepth:        12,
			MinSamplesSplit: 2,
			MinSamplesLeaf:  1,
		},
		Scoring: ScoringConfig{
			DefaultThreshold: DefaultThreshold,
			AlertOnFraud:     true,
			MaxRules:         100,
			CompareTrees:     100,
		},
		Auth: AuthConfig{
			TokenExpiry: 24 * time.Hour,
			BcryptCost:  10,
		},
		Worker: WorkerConfig{
			WorkerCount: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "fraudscore",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:          "postgres",
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresDB:      "fraudscore",
		PostgresSSLMode: "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   64,
		LocalTTL:       time.Minute,
		ResultTTL:      30 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "fraudscore-workers",
	}
	cfg.Worker.Enabled = true
	cfg.Worker.WorkerCount = 5
	cfg.Tracing.Enabled = true
	return cfg
}
