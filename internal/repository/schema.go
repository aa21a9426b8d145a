package repository

// Schema definitions for the fraudscore database.
// Compatible with both SQLite and PostgreSQL.

const schemaScoringHistory = `
CREATE TABLE IF NOT EXISTS scoring_history (
    id TEXT PRIMARY KEY,
    user_email TEXT NOT NULL,
    bundle_id TEXT NOT NULL,
    threshold REAL NOT NULL,
    total_rows INTEGER NOT NULL,
    fraud_count INTEGER NOT NULL,
    suggested_threshold REAL,
    created_at TIMESTAMP NOT NULL,
    results_csv TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scoring_history_user ON scoring_history(user_email, created_at);
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    email TEXT PRIMARY KEY,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`

const schemaReviewRules = `
CREATE TABLE IF NOT EXISTS review_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    reason TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_review_rules_enabled ON review_rules(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaScoringHistory,
		schemaUsers,
		schemaReviewRules,
	}
}
