package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/bryanwahyu/cu-relay/internal/domain/analysis"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

var _ domain.Repository = (*JobRepository)(nil)

// Save insert/update job record
func (r *JobRepository) Save(ctx context.Context, j *domain.Job) error {
	const q = `
INSERT INTO analysis_jobs
  (id, tenant_id, analyzer_id, source, source_kind, operation_location,
   state, error, archive_url, submitted_at, completed_at, duration_ms)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
  operation_location=VALUES(operation_location), state=VALUES(state), error=VALUES(error),
  archive_url=VALUES(archive_url), completed_at=VALUES(completed_at), duration_ms=VALUES(duration_ms);
`
	submitted := j.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		j.ID, stringOrDash(j.TenantID), stringOrDash(j.AnalyzerID), j.Source, string(j.SourceKind),
		j.OperationLocation, string(j.State), j.Error, j.ArchiveURL,
		submitted, nullTime(j.CompletedAt), j.DurationMS,
	)
	return err
}

const selectJob = `
SELECT id, tenant_id, analyzer_id, source, source_kind, COALESCE(operation_location, ''),
       state, COALESCE(error, ''), COALESCE(archive_url, ''), submitted_at, completed_at, duration_ms
FROM analysis_jobs`

// Get by ID + Tenant
func (r *JobRepository) Get(ctx context.Context, tenant string, id domain.JobID) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, selectJob+` WHERE tenant_id=? AND id=? LIMIT 1;`, stringOrDash(tenant), id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return j, err
}

// Latest jobs per tenant, newest first
func (r *JobRepository) Latest(ctx context.Context, tenant string, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, selectJob+` WHERE tenant_id=? ORDER BY submitted_at DESC, id DESC LIMIT ?;`, stringOrDash(tenant), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	var completed sql.NullTime
	if err := row.Scan(
		&j.ID, &j.TenantID, &j.AnalyzerID, &j.Source, &j.SourceKind, &j.OperationLocation,
		&j.State, &j.Error, &j.ArchiveURL, &j.SubmittedAt, &completed, &j.DurationMS,
	); err != nil {
		return nil, err
	}
	if completed.Valid {
		t := completed.Time
		j.CompletedAt = &t
	}
	return &j, nil
}
