// Package domain defines the core interfaces and types for the fraud scoring service.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// History methods are scoped by user email.
type Repository interface {
	// Scoring history
	SaveHistory(ctx context.Context, entry *HistoryEntry) error
	GetHistory(ctx context.Context, userEmail string, id string) (*HistoryEntry, error)
	ListHistory(ctx context.Context, userEmail string) ([]*HistoryEntry, error)
	DeleteHistory(ctx context.Context, userEmail string) (int64, error)

	// Credentials
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, email string) (*User, error)
	DeleteUser(ctx context.Context, email string) error

	// Review rules
	SaveReviewRule(ctx context.Context, rule *ReviewRule) error
	ListReviewRules(ctx context.Context) ([]*ReviewRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// User is a stored credential. PasswordHash is never serialized.
type User struct {
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserStore owns identity. The scoring core never calls it.
type UserStore interface {
	Create(ctx context.Context, email, password string) (*User, error)
	Verify(ctx context.Context, email, password string) (*User, error)
	Delete(ctx context.Context, email string) error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" koanf:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" koanf:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" koanf:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" koanf:"postgres_port"`
	PostgresUser     string `json:"postgresUser" koanf:"postgres_user"`
	PostgresPassword string `json:"-" koanf:"postgres_password"`
	PostgresDB       string `json:"postgresDb" koanf:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSslMode" koanf:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" koanf:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" koanf:"conn_max_lifetime"`
}
