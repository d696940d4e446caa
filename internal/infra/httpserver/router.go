package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appanalysis "github.com/bryanwahyu/cu-relay/internal/application/analysis"
	domain "github.com/bryanwahyu/cu-relay/internal/domain/analysis"
	"github.com/bryanwahyu/cu-relay/internal/middleware"
)

const (
	defaultTenant = "default"
	maxBodyBytes  = 1 << 20

	// statusClientClosed is the nginx convention for a caller that went away.
	statusClientClosed = 499
)

// Options for NewRouter. Zero values disable the matching feature.
type Options struct {
	DefaultAnalyzerID string
	LocalRoot         string
	AllowedOrigins    []string
	APIKeys           map[string]string
	RateLimiter       *middleware.RateLimiter
	Metrics           *middleware.Metrics
	HealthCheckers    map[string]middleware.HealthChecker
}

type Router struct {
	svc             *appanalysis.Service
	metrics         *middleware.Metrics
	defaultAnalyzer string
	localRoot       string
}

func NewRouter(svc *appanalysis.Service, opts Options) http.Handler {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = middleware.NewMetrics()
	}
	r := &Router{
		svc:             svc,
		metrics:         metrics,
		defaultAnalyzer: opts.DefaultAnalyzerID,
		localRoot:       opts.LocalRoot,
	}

	mux := chi.NewRouter()
	if len(opts.AllowedOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			ExposedHeaders: []string{"X-Job-ID"},
			MaxAge:         300,
		}))
	}
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(metrics.Middleware)
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	if opts.RateLimiter != nil {
		mux.Use(middleware.RateLimitMiddleware(opts.RateLimiter))
	}

	mux.Get("/health", middleware.HealthHandler(opts.HealthCheckers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", metrics.Handler)

	mux.Post("/analyze", r.wrap(r.handleAnalyze))

	mux.Route("/v1/{tenant}", func(rt chi.Router) {
		rt.Use(middleware.RequireTenantMatch)
		rt.Post("/analyze", r.wrap(r.handleAnalyze))
		rt.Get("/jobs/latest", r.wrap(r.handleLatest))
		rt.Get("/jobs/{id}", r.wrap(r.handleGet))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status := statusFor(err)
			if status >= http.StatusInternalServerError {
				log.Printf("request failed: method=%s path=%s status=%d err=%v", req.Method, req.URL.Path, status, err)
			}
			http.Error(w, err.Error(), status)
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, appanalysis.ErrHistoryDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, domain.ErrAnalysisFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUpstream), errors.Is(err, domain.ErrProtocol):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosed
	default:
		return http.StatusInternalServerError
	}
}

func tenantOf(req *http.Request) string {
	if t := chi.URLParam(req, "tenant"); t != "" {
		return t
	}
	if t := middleware.GetTenantFromContext(req.Context()); t != "" {
		return t
	}
	return defaultTenant
}

// POST /analyze, POST /v1/{tenant}/analyze
// Body: {"file_url": "<url or path>", "analyzer_id": "<id>"}
// Blocks until the remote job is terminal and returns its body as-is.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		FileURL    string `json:"file_url"`
		AnalyzerID string `json:"analyzer_id"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes)).Decode(&body); err != nil {
		return fmt.Errorf("%w: decode body: %v", domain.ErrInvalidInput, err)
	}

	analyzerID := middleware.SanitizeString(body.AnalyzerID)
	if analyzerID == "" {
		analyzerID = r.defaultAnalyzer
	}
	if err := middleware.ValidateAnalyzerID(analyzerID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	location, err := r.resolveLocation(middleware.SanitizeString(body.FileURL))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	done := r.metrics.AnalysisStarted()
	res, err := r.svc.Analyze(req.Context(), appanalysis.AnalyzeCommand{
		TenantID:   tenantOf(req),
		AnalyzerID: analyzerID,
		Location:   location,
	})
	state := domain.JobError
	if res.Job != nil {
		state = res.Job.State
		w.Header().Set("X-Job-ID", string(res.Job.ID))
	}
	done(state)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(res.Body)
	return err
}

// resolveLocation accepts http(s) URLs, and local paths only below the configured root.
func (r *Router) resolveLocation(fileURL string) (string, error) {
	if fileURL == "" {
		return "", fmt.Errorf("file_url is required")
	}
	if strings.HasPrefix(fileURL, "http://") || strings.HasPrefix(fileURL, "https://") {
		if err := middleware.ValidateURL(fileURL); err != nil {
			return "", err
		}
		return fileURL, nil
	}
	return middleware.ResolveLocalPath(r.localRoot, fileURL)
}

// GET /v1/{tenant}/jobs/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.svc.Latest(req.Context(), tenantOf(req), middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domain.Job{}
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

// GET /v1/{tenant}/jobs/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateJobID(id); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	job, err := r.svc.Get(req.Context(), tenantOf(req), domain.JobID(id))
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(job)
}
