package analysis

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Status is the status string reported by the remote operation.
type Status string

const (
	StatusNotStarted Status = "notStarted"
	StatusRunning    Status = "running"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Is compares statuses case-insensitively; the service returns "Succeeded", "Running", ...
func (s Status) Is(other Status) bool {
	return strings.EqualFold(string(s), string(other))
}

// Terminal reports whether polling stops at this status.
func (s Status) Terminal() bool {
	return s.Is(StatusSucceeded) || s.Is(StatusFailed)
}

// Operation is the handle returned by submit: the operation-location URL.
type Operation struct {
	Location string `json:"operation_location"`
}

// Result is a terminal poll response. Body holds the exact bytes returned by the service.
type Result struct {
	Status Status          `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// InputKind tells how an input location is sent to the service.
type InputKind string

const (
	InputLocal  InputKind = "local"
	InputRemote InputKind = "remote"
)

// Input is a classified input location.
type Input struct {
	Location string
	Kind     InputKind
}

// ClassifyInput decides whether location is a local file or a remote URL.
// An existing local path always wins over URL interpretation.
func ClassifyInput(location string) (Input, error) {
	if location == "" {
		return Input{}, fmt.Errorf("%w: empty location", ErrInvalidInput)
	}
	if _, err := os.Stat(location); err == nil {
		return Input{Location: location, Kind: InputLocal}, nil
	}
	if strings.HasPrefix(location, "http") {
		return Input{Location: location, Kind: InputRemote}, nil
	}
	return Input{}, fmt.Errorf("%w: %q must be an existing path or an http(s) URL", ErrInvalidInput, location)
}

// JobState is the lifecycle of one relay request as recorded in job history.
type JobState string

const (
	JobSubmitted JobState = "submitted"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobTimedOut  JobState = "timed_out"
	JobError     JobState = "error"
)

// JobID identifier type
type JobID string

// Job is the persisted record of one analysis request.
type Job struct {
	ID                JobID      `json:"id"`
	TenantID          string     `json:"tenant_id"`
	AnalyzerID        string     `json:"analyzer_id"`
	Source            string     `json:"source"`
	SourceKind        InputKind  `json:"source_kind"`
	OperationLocation string     `json:"operation_location,omitempty"`
	State             JobState   `json:"state"`
	Error             string     `json:"error,omitempty"`
	ArchiveURL        string     `json:"archive_url,omitempty"`
	SubmittedAt       time.Time  `json:"submitted_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	DurationMS        int64      `json:"duration_ms"`
}
