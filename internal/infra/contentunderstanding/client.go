// Package contentunderstanding talks to the Azure AI Content Understanding analyze API:
// one POST to start an analysis, then GETs on the operation-location until the job ends.
package contentunderstanding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	domain "github.com/bryanwahyu/cu-relay/internal/domain/analysis"
)

const (
	DefaultUserAgent   = "cu-sample-code"
	defaultHTTPTimeout = 60 * time.Second
	maxBodyBytes       = 64 * 1024 * 1024
)

// Options for New. Exactly one credential form is used; the key wins if both are set.
type Options struct {
	Endpoint        string
	APIVersion      string
	SubscriptionKey string
	TokenProvider   TokenProvider
	UserAgent       string
	HTTPClient      *http.Client
}

// Client is immutable after New and safe for concurrent use.
type Client struct {
	endpoint   string
	apiVersion string
	headers    http.Header
	http       *http.Client
}

var _ domain.Analyzer = (*Client)(nil)

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, fmt.Errorf("%w: endpoint is required", domain.ErrConfig)
	}
	if strings.TrimSpace(opts.APIVersion) == "" {
		return nil, fmt.Errorf("%w: api version is required", domain.ErrConfig)
	}
	cred, err := resolveCredential(opts.SubscriptionKey, opts.TokenProvider)
	if err != nil {
		return nil, err
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	headers := http.Header{}
	name, value := cred.Header()
	headers.Set(name, value)
	headers.Set(userAgentHeader, ua)

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &Client{
		endpoint:   strings.TrimRight(opts.Endpoint, "/"),
		apiVersion: opts.APIVersion,
		headers:    headers,
		http:       hc,
	}, nil
}

// NewFromSettings builds a client from a validated Settings record.
func NewFromSettings(s domain.Settings, hc *http.Client) (*Client, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	var provider TokenProvider
	if p := s.TokenProvider(); p != nil {
		provider = TokenProvider(p)
	}
	return New(Options{
		Endpoint:        s.Endpoint,
		APIVersion:      s.APIVersion,
		SubscriptionKey: s.SubscriptionKey,
		TokenProvider:   provider,
		UserAgent:       s.UserAgent,
		HTTPClient:      hc,
	})
}

// AnalyzeURL returns the analyze endpoint for analyzerID.
func (c *Client) AnalyzeURL(analyzerID string) string {
	return fmt.Sprintf("%s/contentunderstanding/analyzers/%s:analyze?api-version=%s",
		c.endpoint, url.PathEscape(analyzerID), url.QueryEscape(c.apiVersion))
}

// Submit starts an analysis of location (local file or http(s) URL) and returns its operation.
func (c *Client) Submit(ctx context.Context, analyzerID, location string) (domain.Operation, error) {
	in, err := domain.ClassifyInput(location)
	if err != nil {
		return domain.Operation{}, err
	}

	var (
		body        []byte
		contentType string
	)
	switch in.Kind {
	case domain.InputLocal:
		body, err = os.ReadFile(in.Location)
		if err != nil {
			return domain.Operation{}, fmt.Errorf("read input file: %w", err)
		}
		contentType = "application/octet-stream"
	default:
		body, err = json.Marshal(map[string]string{"url": in.Location})
		if err != nil {
			return domain.Operation{}, fmt.Errorf("marshal url body: %w", err)
		}
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.AnalyzeURL(analyzerID), bytes.NewReader(body))
	if err != nil {
		return domain.Operation{}, fmt.Errorf("create submit request: %w", err)
	}
	c.applyHeaders(req)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Operation{}, fmt.Errorf("submit analyze request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		return domain.Operation{}, &domain.UpstreamError{Op: "submit", StatusCode: resp.StatusCode, Body: string(b)}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	loc := resp.Header.Get("operation-location")
	if loc == "" {
		return domain.Operation{}, fmt.Errorf("%w: operation-location header missing from submit response", domain.ErrProtocol)
	}
	return domain.Operation{Location: loc}, nil
}

// Poll fetches op every interval until it succeeds, fails, or timeout elapses.
// The timeout is checked before each attempt; ctx cancels both requests and waits.
func (c *Client) Poll(ctx context.Context, op domain.Operation, timeout, interval time.Duration) (domain.Result, error) {
	if op.Location == "" {
		return domain.Result{}, fmt.Errorf("%w: empty operation location", domain.ErrInvalidInput)
	}
	if timeout <= 0 || interval <= 0 {
		return domain.Result{}, fmt.Errorf("%w: timeout and interval must be positive", domain.ErrInvalidInput)
	}

	start := time.Now()
	for {
		if time.Since(start) > timeout {
			return domain.Result{}, fmt.Errorf("%w after %s", domain.ErrTimeout, timeout)
		}

		res, err := c.pollOnce(ctx, op.Location)
		if err != nil {
			return domain.Result{}, err
		}
		switch {
		case res.Status.Is(domain.StatusSucceeded):
			return res, nil
		case res.Status.Is(domain.StatusFailed):
			if msg := failureMessage(res.Body); msg != "" {
				return domain.Result{}, fmt.Errorf("%w: %s", domain.ErrAnalysisFailed, msg)
			}
			return domain.Result{}, domain.ErrAnalysisFailed
		}

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return domain.Result{}, ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Client) pollOnce(ctx context.Context, location string) (domain.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return domain.Result{}, fmt.Errorf("create poll request: %w", err)
	}
	c.applyHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Result{}, fmt.Errorf("poll operation: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.Result{}, fmt.Errorf("read poll response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Result{}, &domain.UpstreamError{Op: "poll", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var head struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return domain.Result{}, fmt.Errorf("%w: poll response is not a JSON object: %v", domain.ErrProtocol, err)
	}
	return domain.Result{Status: domain.Status(head.Status), Body: json.RawMessage(body)}, nil
}

func (c *Client) applyHeaders(req *http.Request) {
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
}

// failureMessage pulls error.message (or error.code) out of a failed operation body.
func failureMessage(body []byte) string {
	var doc struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &doc) != nil {
		return ""
	}
	if doc.Error.Message != "" {
		return doc.Error.Message
	}
	return doc.Error.Code
}
