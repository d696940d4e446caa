package postgres

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

// Save inserts or updates a job record
func (r *JobRepository) Save(ctx context.Context, j *domain.Job) error {
	const q = `
INSERT INTO analysis_jobs
  (id, tenant_id, analyzer_id, source, source_kind, operation_location,
   state, error, archive_url, submitted_at, completed_at, duration_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
  operation_location=EXCLUDED.operation_location,
  state=EXCLUDED.state,
  error=EXCLUDED.error,
  archive_url=EXCLUDED.archive_url,
  completed_at=EXCLUDED.completed_at,
  duration_ms=EXCLUDED.duration_ms;
`
	submitted := j.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now()
	}
	var completed sql.NullTime
	if j.CompletedAt != nil {
		completed = sql.NullTime{Time: *j.CompletedAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, q,
		string(j.ID), stringOrDash(j.TenantID), stringOrDash(j.AnalyzerID), j.Source, string(j.SourceKind),
		j.OperationLocation, string(j.State), j.Error, j.ArchiveURL,
		submitted, completed, j.DurationMS,
	)
	return err
}

const selectJob = `
SELECT id, tenant_id, analyzer_id, source, source_kind, COALESCE(operation_location, ''),
       state, COALESCE(error, ''), COALESCE(archive_url, ''), submitted_at, completed_at, duration_ms
FROM analysis_jobs`

// Get returns one job of a tenant
func (r *JobRepository) Get(ctx context.Context, tenant string, id domain.JobID) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, selectJob+` WHERE tenant_id=$1 AND id=$2 LIMIT 1;`, stringOrDash(tenant), string(id))
	var j domain.Job
	var completed sql.NullTime
	if err := row.Scan(
		&j.ID, &j.TenantID, &j.AnalyzerID, &j.Source, &j.SourceKind, &j.OperationLocation,
		&j.State, &j.Error, &j.ArchiveURL, &j.SubmittedAt, &completed, &j.DurationMS,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
		}
		return nil, err
	}
	if completed.Valid {
		j.CompletedAt = &completed.Time
	}
	return &j, nil
}

// Latest returns the newest jobs of a tenant
func (r *JobRepository) Latest(ctx context.Context, tenant string, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, selectJob+` WHERE tenant_id=$1 ORDER BY submitted_at DESC, id DESC LIMIT $2;`, stringOrDash(tenant), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		var j domain.Job
		var completed sql.NullTime
		if err := rows.Scan(
			&j.ID, &j.TenantID, &j.AnalyzerID, &j.Source, &j.SourceKind, &j.OperationLocation,
			&j.State, &j.Error, &j.ArchiveURL, &j.SubmittedAt, &completed, &j.DurationMS,
		); err != nil {
			return nil, err
		}
		if completed.Valid {
			t := completed.Time
			j.CompletedAt = &t
		}
		out = append(out, &j)
	}
	return out, rows.Err()
}
