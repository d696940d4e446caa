package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	domain "github.com/bryanwahyu/cu-relay/internal/domain/analysis"
)

// Metrics stores request and analysis counters. Create one per server with NewMetrics.
type Metrics struct {
	requestsTotal      atomic.Uint64
	requestsInProgress atomic.Int64
	requestsSuccess    atomic.Uint64
	requestsFailed     atomic.Uint64

	analysesTotal     atomic.Uint64
	analysesRunning   atomic.Int64
	analysesSucceeded atomic.Uint64
	analysesFailed    atomic.Uint64
	analysesTimedOut  atomic.Uint64
	analysesErrored   atomic.Uint64

	startTime time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// AnalysisStarted marks one analysis in flight; call the returned func with the final state.
func (m *Metrics) AnalysisStarted() func(domain.JobState) {
	m.analysesTotal.Add(1)
	m.analysesRunning.Add(1)
	return func(state domain.JobState) {
		m.analysesRunning.Add(-1)
		switch state {
		case domain.JobSucceeded:
			m.analysesSucceeded.Add(1)
		case domain.JobFailed:
			m.analysesFailed.Add(1)
		case domain.JobTimedOut:
			m.analysesTimedOut.Add(1)
		default:
			m.analysesErrored.Add(1)
		}
	}
}

// Snapshot returns current metrics
func (m *Metrics) Snapshot() map[string]any {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return map[string]any{
		"requests_total":       m.requestsTotal.Load(),
		"requests_in_progress": m.requestsInProgress.Load(),
		"requests_success":     m.requestsSuccess.Load(),
		"requests_failed":      m.requestsFailed.Load(),
		"analyses_total":       m.analysesTotal.Load(),
		"analyses_running":     m.analysesRunning.Load(),
		"analyses_succeeded":   m.analysesSucceeded.Load(),
		"analyses_failed":      m.analysesFailed.Load(),
		"analyses_timed_out":   m.analysesTimedOut.Load(),
		"analyses_errored":     m.analysesErrored.Load(),
		"uptime_seconds":       time.Since(m.startTime).Seconds(),
		"memory": map[string]any{
			"alloc_bytes":       ms.Alloc,
			"total_alloc_bytes": ms.TotalAlloc,
			"sys_bytes":         ms.Sys,
			"num_gc":            ms.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requestsTotal.Add(1)
		m.requestsInProgress.Add(1)
		defer m.requestsInProgress.Add(-1)

		wrapped := wrap(w)
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			m.requestsSuccess.Add(1)
		} else {
			m.requestsFailed.Add(1)
		}
	})
}

// Handler returns metrics as JSON
func (m *Metrics) Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m.Snapshot())
}
