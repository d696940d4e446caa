package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Connect opens a pooled Postgres handle (lib/pq) and pings it.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS analysis_jobs (
  id                 VARCHAR(36)  PRIMARY KEY,
  tenant_id          VARCHAR(64)  NOT NULL,
  analyzer_id        VARCHAR(128) NOT NULL,
  source             TEXT         NOT NULL,
  source_kind        VARCHAR(16)  NOT NULL,
  operation_location TEXT,
  state              VARCHAR(16)  NOT NULL,
  error              TEXT,
  archive_url        TEXT,
  submitted_at       TIMESTAMPTZ  NOT NULL,
  completed_at       TIMESTAMPTZ,
  duration_ms        BIGINT       NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_jobs_tenant_submitted ON analysis_jobs (tenant_id, submitted_at DESC);`

// Migrate creates the job table if it does not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

// stringOrDash returns "-" when the input is empty/whitespace
func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
