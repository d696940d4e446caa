package analysis

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrConfig indicates the client or settings are missing a required value (usually a credential).
	ErrConfig = errors.New("analysis: configuration error")
	// ErrInvalidInput indicates the input location is neither an existing path nor an http(s) URL.
	ErrInvalidInput = errors.New("analysis: invalid input")
	// ErrUpstream indicates the remote service answered with a non-success HTTP status.
	ErrUpstream = errors.New("analysis: upstream error")
	// ErrProtocol indicates the remote response did not have the expected shape.
	ErrProtocol = errors.New("analysis: protocol error")
	// ErrAnalysisFailed indicates the remote service reported the job as failed.
	ErrAnalysisFailed = errors.New("analysis: remote job failed")
	// ErrTimeout indicates polling ran out of budget before a terminal status.
	ErrTimeout = errors.New("analysis: polling timed out")
	// ErrJobNotFound is returned by repositories when no job record matches.
	ErrJobNotFound = errors.New("analysis: job not found")
)

const maxErrorBody = 512

// UpstreamError carries the HTTP status and body of a failed call to the remote service.
type UpstreamError struct {
	Op         string // submit | poll
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	body := e.Body
	if len(body) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "..."
	}
	return fmt.Sprintf("analysis: upstream %s returned status %d: %s", e.Op, e.StatusCode, body)
}

// Is lets errors.Is(err, ErrUpstream) match any UpstreamError.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}
