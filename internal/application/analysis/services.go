package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/cu-relay/internal/application"
	domain "github.com/bryanwahyu/cu-relay/internal/domain/analysis"
)

const (
	DefaultPollTimeout  = time.Hour
	DefaultPollInterval = time.Second
)

// ErrHistoryDisabled is returned by job lookups when no repository is configured.
var ErrHistoryDisabled = errors.New("job history is not configured")

// Service runs one analysis per call: submit, poll, then record the outcome.
// Repo and Archive are optional. Service is safe for concurrent use.
type Service struct {
	Analyzer     domain.Analyzer
	Repo         domain.Repository
	Archive      domain.ResultArchive
	Clock        application.Clock
	PollTimeout  time.Duration
	PollInterval time.Duration
}

//
// ==== USE CASES ====
//

// AnalyzeCommand untuk satu request analyze
type AnalyzeCommand struct {
	TenantID   string
	AnalyzerID string
	Location   string
}

type AnalyzeResult struct {
	Job  *domain.Job
	Body json.RawMessage
}

// Analyze blocks until the remote job is terminal, the poll budget runs out, or ctx ends.
// On success Body is the terminal poll response, untouched.
func (s *Service) Analyze(ctx context.Context, cmd AnalyzeCommand) (AnalyzeResult, error) {
	if cmd.AnalyzerID == "" {
		return AnalyzeResult{}, fmt.Errorf("%w: analyzer id is required", domain.ErrInvalidInput)
	}
	in, err := domain.ClassifyInput(cmd.Location)
	if err != nil {
		return AnalyzeResult{}, err
	}

	now := s.now()
	job := &domain.Job{
		ID:          domain.JobID(uuid.New().String()),
		TenantID:    cmd.TenantID,
		AnalyzerID:  cmd.AnalyzerID,
		Source:      in.Location,
		SourceKind:  in.Kind,
		State:       domain.JobSubmitted,
		SubmittedAt: now,
	}

	op, err := s.Analyzer.Submit(ctx, cmd.AnalyzerID, in.Location)
	if err != nil {
		s.finish(ctx, job, domain.JobError, err)
		return AnalyzeResult{Job: job}, err
	}
	job.OperationLocation = op.Location
	job.State = domain.JobRunning
	s.record(ctx, job)

	res, err := s.Analyzer.Poll(ctx, op, s.pollTimeout(), s.pollInterval())
	if err != nil {
		s.finish(ctx, job, stateFor(err), err)
		return AnalyzeResult{Job: job}, err
	}

	if s.Archive != nil {
		key := fmt.Sprintf("%s/%s/%s.json", tenantOrDefault(cmd.TenantID), cmd.AnalyzerID, job.ID)
		url, aerr := s.Archive.PutJSON(context.WithoutCancel(ctx), key, res.Body)
		if aerr != nil {
			log.Printf("archive failed: job=%s key=%s err=%v", job.ID, key, aerr)
		} else {
			job.ArchiveURL = url
		}
	}
	s.finish(ctx, job, domain.JobSucceeded, nil)

	return AnalyzeResult{Job: job, Body: res.Body}, nil
}

// Latest ambil N job terakhir
func (s *Service) Latest(ctx context.Context, tenant string, limit int) ([]*domain.Job, error) {
	if s.Repo == nil {
		return nil, ErrHistoryDisabled
	}
	return s.Repo.Latest(ctx, tenant, limit)
}

// Get ambil 1 job by id
func (s *Service) Get(ctx context.Context, tenant string, id domain.JobID) (*domain.Job, error) {
	if s.Repo == nil {
		return nil, ErrHistoryDisabled
	}
	return s.Repo.Get(ctx, tenant, id)
}

func (s *Service) finish(ctx context.Context, job *domain.Job, state domain.JobState, cause error) {
	done := s.now()
	job.State = state
	job.CompletedAt = &done
	job.DurationMS = done.Sub(job.SubmittedAt).Milliseconds()
	if cause != nil {
		job.Error = cause.Error()
	}
	s.record(ctx, job)
}

// record saves the job; history failures are logged and never mask the analysis outcome.
func (s *Service) record(ctx context.Context, job *domain.Job) {
	if s.Repo == nil {
		return
	}
	if err := s.Repo.Save(context.WithoutCancel(ctx), job); err != nil {
		log.Printf("job record failed: job=%s state=%s err=%v", job.ID, job.State, err)
	}
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *Service) pollTimeout() time.Duration {
	if s.PollTimeout <= 0 {
		return DefaultPollTimeout
	}
	return s.PollTimeout
}

func (s *Service) pollInterval() time.Duration {
	if s.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return s.PollInterval
}

// helper
func stateFor(err error) domain.JobState {
	switch {
	case errors.Is(err, domain.ErrAnalysisFailed):
		return domain.JobFailed
	case errors.Is(err, domain.ErrTimeout):
		return domain.JobTimedOut
	default:
		return domain.JobError
	}
}

func tenantOrDefault(t string) string {
	if t == "" {
		return "default"
	}
	return t
}
