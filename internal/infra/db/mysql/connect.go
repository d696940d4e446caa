package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Connect opens a pooled MySQL handle and pings it.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
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
  id                 VARCHAR(36)  NOT NULL PRIMARY KEY,
  tenant_id          VARCHAR(64)  NOT NULL,
  analyzer_id        VARCHAR(128) NOT NULL,
  source             TEXT         NOT NULL,
  source_kind        VARCHAR(16)  NOT NULL,
  operation_location TEXT         NULL,
  state              VARCHAR(16)  NOT NULL,
  error              TEXT         NULL,
  archive_url        TEXT         NULL,
  submitted_at       DATETIME(3)  NOT NULL,
  completed_at       DATETIME(3)  NULL,
  duration_ms        BIGINT       NOT NULL DEFAULT 0,
  KEY idx_jobs_tenant_submitted (tenant_id, submitted_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

// Migrate creates the job table if it does not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
