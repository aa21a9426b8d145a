// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrConflict     = errors.New("record already exists")
	ErrInvalidInput = domain.ErrInvalidInput
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveHistory stores a scored batch for its owner.
func (r *SQLRepository) SaveHistory(ctx context.Context, entry *domain.HistoryEntry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("%w: history id is required", ErrInvalidInput)
	}
	if entry.UserEmail == "" {
		return fmt.Errorf("%w: user email is required", ErrInvalidInput)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var suggested sql.NullFloat64
	if entry.SuggestedThreshold != nil {
		suggested = sql.NullFloat64{Float64: *entry.SuggestedThreshold, Valid: true}
	}

	query := `
		INSERT INTO scoring_history (
			id, user_email, bundle_id, threshold, total_rows, fraud_count,
			suggested_threshold, created_at, results_csv
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.ID, entry.UserEmail, entry.BundleID,
		entry.Threshold, entry.TotalRows, entry.FraudCount,
		suggested, entry.CreatedAt, string(entry.ResultsCSV),
	)
	return err
}

// GetHistory retrieves one entry, including its results, for its owner.
func (r *SQLRepository) GetHistory(ctx context.Context, userEmail string, id string) (*domain.HistoryEntry, error) {
	if userEmail == "" {
		return nil, fmt.Errorf("%w: user email is required", ErrInvalidInput)
	}

	query := `
		SELECT id, user_email, bundle_id, threshold, total_rows, fraud_count,
			   suggested_threshold, created_at, results_csv
		FROM scoring_history
		WHERE user_email = ? AND id = ?
	`

	var entry domain.HistoryEntry
	var suggested sql.NullFloat64
	var results string

	err := r.db.QueryRowContext(ctx, r.rebind(query), userEmail, id).Scan(
		&entry.ID, &entry.UserEmail, &entry.BundleID,
		&entry.Threshold, &entry.TotalRows, &entry.FraudCount,
		&suggested, &entry.CreatedAt, &results,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if suggested.Valid {
		v := suggested.Float64
		entry.SuggestedThreshold = &v
	}
	entry.ResultsCSV = []byte(results)

	return &entry, nil
}

// ListHistory returns a user's entries newest first, without results.
func (r *SQLRepository) ListHistory(ctx context.Context, userEmail string) ([]*domain.HistoryEntry, error) {
	if userEmail == "" {
		return nil, fmt.Errorf("%w: user email is required", ErrInvalidInput)
	}

	query := `
		SELECT id, user_email, bundle_id, threshold, total_rows, fraud_count,
			   suggested_threshold, created_at
		FROM scoring_history
		WHERE user_email = ?
		ORDER BY created_at DESC, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.HistoryEntry
	for rows.Next() {
		var entry domain.HistoryEntry
		var suggested sql.NullFloat64

		if err := rows.Scan(
			&entry.ID, &entry.UserEmail, &entry.BundleID,
			&entry.Threshold, &entry.TotalRows, &entry.FraudCount,
			&suggested, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if suggested.Valid {
			v := suggested.Float64
			entry.SuggestedThreshold = &v
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// DeleteHistory removes every entry owned by a user and reports how many.
func (r *SQLRepository) DeleteHistory(ctx context.Context, userEmail string) (int64, error) {
	if userEmail == "" {
		return 0, fmt.Errorf("%w: user email is required", ErrInvalidInput)
	}

	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM scoring_history WHERE user_email = ?`), userEmail)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CreateUser stores a credential. Returns ErrConflict if the email is taken.
func (r *SQLRepository) CreateUser(ctx context.Context, user *domain.User) error {
	if user == nil || user.Email == "" || user.PasswordHash == "" {
		return fmt.Errorf("%w: email and password hash are required", ErrInvalidInput)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO users (email, password_hash, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (email) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: user %s", ErrConflict, user.Email)
	}

	return nil
}

// GetUser retrieves a credential by email.
func (r *SQLRepository) GetUser(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT email, password_hash, created_at
		FROM users
		WHERE email = ?
	`

	var user domain.User
	err := r.db.QueryRowContext(ctx, r.rebind(query), email).Scan(
		&user.Email, &user.PasswordHash, &user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// DeleteUser removes a credential.
func (r *SQLRepository) DeleteUser(ctx context.Context, email string) error {
	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM users WHERE email = ?`), email)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveReviewRule inserts or replaces a review rule.
func (r *SQLRepository) SaveReviewRule(ctx context.Context, rule *domain.ReviewRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(rule.Expression) == "" {
		return fmt.Errorf("%w: rule expression is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	query := `
		INSERT INTO review_rules (
			id, name, description, expression, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression, rule.Reason,
		enabled, rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

// ListReviewRules returns all review rules ordered by ID.
func (r *SQLRepository) ListReviewRules(ctx context.Context) ([]*domain.ReviewRule, error) {
	query := `
		SELECT id, name, description, expression, reason, enabled, created_at, updated_at
		FROM review_rules
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.ReviewRule
	for rows.Next() {
		var rule domain.ReviewRule
		var description sql.NullString
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &description, &rule.Expression, &rule.Reason,
			&enabled, &rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rule.Description = description.String
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
