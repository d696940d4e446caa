package analysis

import (
	"context"
	"time"
)

// Analyzer port (interface to the remote document-analysis service)
type Analyzer interface {
	Submit(ctx context.Context, analyzerID, location string) (Operation, error)
	Poll(ctx context.Context, op Operation, timeout, interval time.Duration) (Result, error)
}

// Repository port for job history
type Repository interface {
	Save(ctx context.Context, j *Job) error
	Get(ctx context.Context, tenant string, id JobID) (*Job, error)
	Latest(ctx context.Context, tenant string, limit int) ([]*Job, error)
}

// ResultArchive port (stores succeeded result bodies, returns their URL)
type ResultArchive interface {
	PutJSON(ctx context.Context, key string, body []byte) (string, error)
}
