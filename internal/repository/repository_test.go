package repository

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "fraudscore-test.db"),
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	owner := "analyst@example.com"
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	suggested := 0.95

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetHistory", func(t *testing.T) {
		entry := &domain.HistoryEntry{
			ID:                 "batch-001",
			UserEmail:          owner,
			BundleID:           "bundle-a",
			Threshold:          0.5,
			TotalRows:          3,
			FraudCount:         1,
			SuggestedThreshold: &suggested,
			CreatedAt:          base,
			ResultsCSV:         []byte("Time,Amount,Prediction\n0,10,0\n"),
		}

		if err := repo.SaveHistory(ctx, entry); err != nil {
			t.Fatalf("SaveHistory failed: %v", err)
		}

		got, err := repo.GetHistory(ctx, owner, entry.ID)
		if err != nil {
			t.Fatalf("GetHistory failed: %v", err)
		}

		if got.BundleID != "bundle-a" || got.TotalRows != 3 || got.FraudCount != 1 {
			t.Errorf("unexpected entry: %+v", got)
		}
		if got.SuggestedThreshold == nil || *got.SuggestedThreshold != 0.95 {
			t.Errorf("expected suggested threshold 0.95, got %v", got.SuggestedThreshold)
		}
		if string(got.ResultsCSV) != string(entry.ResultsCSV) {
			t.Errorf("results csv mismatch: %q", got.ResultsCSV)
		}
		if !got.CreatedAt.Equal(base) {
			t.Errorf("expected CreatedAt %v, got %v", base, got.CreatedAt)
		}
	})

	t.Run("NullSuggestedThreshold", func(t *testing.T) {
		entry := &domain.HistoryEntry{
			ID:         "batch-002",
			UserEmail:  owner,
			BundleID:   "bundle-a",
			Threshold:  0.3,
			TotalRows:  4,
			CreatedAt:  base.Add(time.Hour),
			ResultsCSV: []byte("x"),
		}
		if err := repo.SaveHistory(ctx, entry); err != nil {
			t.Fatalf("SaveHistory failed: %v", err)
		}

		got, err := repo.GetHistory(ctx, owner, entry.ID)
		if err != nil {
			t.Fatalf("GetHistory failed: %v", err)
		}
		if got.SuggestedThreshold != nil {
			t.Errorf("expected nil suggested threshold, got %v", *got.SuggestedThreshold)
		}
	})

	t.Run("ListHistoryNewestFirst", func(t *testing.T) {
		entries, err := repo.ListHistory(ctx, owner)
		if err != nil {
			t.Fatalf("ListHistory failed: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
		if entries[0].ID != "batch-002" || entries[1].ID != "batch-001" {
			t.Errorf("expected newest first, got %s, %s", entries[0].ID, entries[1].ID)
		}
		if entries[0].ResultsCSV != nil {
			t.Error("listing should not load results")
		}
	})

	t.Run("OwnerIsolation", func(t *testing.T) {
		_, err := repo.GetHistory(ctx, "intruder@example.com", "batch-001")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for other user, got: %v", err)
		}

		entries, err := repo.ListHistory(ctx, "intruder@example.com")
		if err != nil {
			t.Fatalf("ListHistory failed: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("expected no entries, got %d", len(entries))
		}
	})

	t.Run("RequiresUserEmail", func(t *testing.T) {
		err := repo.SaveHistory(ctx, &domain.HistoryEntry{ID: "batch-x"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got: %v", err)
		}

		if _, err := repo.ListHistory(ctx, ""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got: %v", err)
		}
	})

	t.Run("DeleteHistory", func(t *testing.T) {
		n, err := repo.DeleteHistory(ctx, owner)
		if err != nil {
			t.Fatalf("DeleteHistory failed: %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 deleted, got %d", n)
		}

		n, err = repo.DeleteHistory(ctx, owner)
		if err != nil {
			t.Fatalf("DeleteHistory failed: %v", err)
		}
		if n != 0 {
			t.Errorf("expected 0 deleted on second call, got %d", n)
		}
	})
}

func TestUsers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	user := &domain.User{Email: "a@example.com", PasswordHash: "$2a$10$hash"}
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	t.Run("Duplicate", func(t *testing.T) {
		err := repo.CreateUser(ctx, &domain.User{Email: "a@example.com", PasswordHash: "other"})
		if !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict, got: %v", err)
		}
	})

	t.Run("Get", func(t *testing.T) {
		got, err := repo.GetUser(ctx, "a@example.com")
		if err != nil {
			t.Fatalf("GetUser failed: %v", err)
		}
		if got.PasswordHash != "$2a$10$hash" {
			t.Errorf("unexpected hash %q", got.PasswordHash)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.DeleteUser(ctx, "a@example.com"); err != nil {
			t.Fatalf("DeleteUser failed: %v", err)
		}
		if _, err := repo.GetUser(ctx, "a@example.com"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if err := repo.DeleteUser(ctx, "a@example.com"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got: %v", err)
		}
	})
}

func TestReviewRules(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rule := &domain.ReviewRule{
		ID:         "large-amount",
		Name:       "Large amount",
		Expression: "amount > 1000.0",
		Reason:     "amount above review limit",
		Enabled:    true,
	}
	if err := repo.SaveReviewRule(ctx, rule); err != nil {
		t.Fatalf("SaveReviewRule failed: %v", err)
	}

	rule.Expression = "amount > 2000.0"
	rule.Enabled = false
	if err := repo.SaveReviewRule(ctx, rule); err != nil {
		t.Fatalf("SaveReviewRule upsert failed: %v", err)
	}

	if err := repo.SaveReviewRule(ctx, &domain.ReviewRule{
		ID:         "night",
		Name:       "Night",
		Expression: "hour < 6",
		Reason:     "night time",
		Enabled:    true,
	}); err != nil {
		t.Fatalf("SaveReviewRule failed: %v", err)
	}

	rules, err := repo.ListReviewRules(ctx)
	if err != nil {
		t.Fatalf("ListReviewRules failed: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if rules[0].ID != "large-amount" || rules[1].ID != "night" {
		t.Errorf("expected rules ordered by id, got %s, %s", rules[0].ID, rules[1].ID)
	}
	if rules[0].Expression != "amount > 2000.0" || rules[0].Enabled {
		t.Errorf("upsert not applied: %+v", rules[0])
	}

	err = repo.SaveReviewRule(ctx, &domain.ReviewRule{ID: "empty"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty expression, got: %v", err)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "mysql"})
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		if got := repo.rebind(tt.input); got != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}

	sqlite := &SQLRepository{driver: "sqlite"}
	if got := sqlite.rebind("id = ?"); got != "id = ?" {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(domain.RepositoryConfig{
		PostgresUser:     "fraud",
		PostgresPassword: "p a'ss",
	})

	for _, want := range []string{
		"host=localhost",
		"port=5432",
		"dbname=fraudscore",
		"sslmode=disable",
		"user=fraud",
		`password='p a\'ss'`,
	} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
}
