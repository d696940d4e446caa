package contentunderstanding_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/bryanwahyu/cu-relay/internal/domain/analysis"
	cu "github.com/bryanwahyu/cu-relay/internal/infra/contentunderstanding"
)

func newClient(t *testing.T, ts *httptest.Server) *cu.Client {
	t.Helper()
	c, err := cu.New(cu.Options{
		Endpoint:        ts.URL + "/",
		APIVersion:      "2024-12-01-preview",
		SubscriptionKey: "test-key",
		HTTPClient:      ts.Client(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_WithoutCredential_ReturnsConfigError(t *testing.T) {
	_, err := cu.New(cu.Options{Endpoint: "https://example.test", APIVersion: "v1"})
	if !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestNew_TokenProviderCalledOnce(t *testing.T) {
	var calls int32
	provider := func() (string, error) {
		atomic.AddInt32(&calls, 1)
		return "aad-token", nil
	}

	var gotAuth, gotKey, gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("Ocp-Apim-Subscription-Key")
		gotUA = r.Header.Get("x-ms-useragent")
		_, _ = io.WriteString(w, `{"status":"Succeeded"}`)
	}))
	defer ts.Close()

	c, err := cu.New(cu.Options{
		Endpoint:      ts.URL,
		APIVersion:    "v1",
		TokenProvider: provider,
		HTTPClient:    ts.Client(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := c.Poll(context.Background(), domain.Operation{Location: ts.URL + "/op"}, time.Second, 10*time.Millisecond); err != nil {
			t.Fatalf("Poll: %v", err)
		}
	}

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected token provider to be called once, got %d", n)
	}
	if gotAuth != "Bearer aad-token" {
		t.Errorf("expected bearer header, got %q", gotAuth)
	}
	if gotKey != "" {
		t.Errorf("expected no subscription key header, got %q", gotKey)
	}
	if gotUA != cu.DefaultUserAgent {
		t.Errorf("expected user agent %q, got %q", cu.DefaultUserAgent, gotUA)
	}
}

func TestNew_TokenProviderErrors(t *testing.T) {
	cases := map[string]cu.TokenProvider{
		"error": func() (string, error) { return "", errors.New("boom") },
		"empty": func() (string, error) { return "  ", nil },
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := cu.New(cu.Options{Endpoint: "https://example.test", APIVersion: "v1", TokenProvider: p})
			if !errors.Is(err, domain.ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestNewFromSettings_RequiresCredential(t *testing.T) {
	_, err := cu.NewFromSettings(domain.Settings{Endpoint: "https://example.test", APIVersion: "v1"}, nil)
	if !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}

	c, err := cu.NewFromSettings(domain.Settings{Endpoint: "https://example.test/", APIVersion: "v1", AADToken: "tok"}, nil)
	if err != nil {
		t.Fatalf("NewFromSettings: %v", err)
	}
	want := "https://example.test/contentunderstanding/analyzers/prebuilt-documentAnalyzer:analyze?api-version=v1"
	if got := c.AnalyzeURL("prebuilt-documentAnalyzer"); got != want {
		t.Errorf("AnalyzeURL = %q, want %q", got, want)
	}
}

func TestNewFromSettings_SendsConfiguredUserAgent(t *testing.T) {
	var gotUA, gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("x-ms-useragent")
		gotAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"status":"Succeeded"}`)
	}))
	defer ts.Close()

	c, err := cu.NewFromSettings(domain.Settings{
		Endpoint:   ts.URL,
		APIVersion: "v1",
		AADToken:   "tok",
		UserAgent:  "relay-test",
	}, ts.Client())
	if err != nil {
		t.Fatalf("NewFromSettings: %v", err)
	}
	if _, err := c.Poll(context.Background(), domain.Operation{Location: ts.URL + "/op"}, time.Second, 10*time.Millisecond); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if gotUA != "relay-test" {
		t.Errorf("user agent = %q", gotUA)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("authorization = %q", gotAuth)
	}
}

func TestSubmit_LocalFile_SendsRawBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "invoice.pdf")
	content := []byte("%PDF-1.7 binary\x00\x01")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	var gotBody []byte
	var gotCT, gotPath, gotQuery, gotKey string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotCT = r.Header.Get("Content-Type")
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("api-version")
		gotKey = r.Header.Get("Ocp-Apim-Subscription-Key")
		w.Header().Set("Operation-Location", "https://example.test/ops/1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	op, err := newClient(t, ts).Submit(context.Background(), "my-analyzer", path)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if op.Location != "https://example.test/ops/1" {
		t.Errorf("unexpected operation location %q", op.Location)
	}
	if string(gotBody) != string(content) {
		t.Errorf("expected raw file bytes, got %q", gotBody)
	}
	if gotCT != "application/octet-stream" {
		t.Errorf("expected octet-stream, got %q", gotCT)
	}
	if gotPath != "/contentunderstanding/analyzers/my-analyzer:analyze" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotQuery != "2024-12-01-preview" {
		t.Errorf("unexpected api-version %q", gotQuery)
	}
	if gotKey != "test-key" {
		t.Errorf("expected subscription key header, got %q", gotKey)
	}
}

func TestSubmit_URL_SendsJSONReference(t *testing.T) {
	var gotBody map[string]string
	var gotCT string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCT = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("operation-location", "https://example.test/ops/2")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	input := "https://files.example.test/doc.pdf"
	if _, err := newClient(t, ts).Submit(context.Background(), "a", input); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if gotCT != "application/json" {
		t.Errorf("expected application/json, got %q", gotCT)
	}
	if len(gotBody) != 1 || gotBody["url"] != input {
		t.Errorf("expected {\"url\": %q}, got %v", input, gotBody)
	}
}

func TestSubmit_InvalidInput_NoNetworkCall(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer ts.Close()

	for _, in := range []string{"", "not/a/real/path.pdf", "ftp://example.test/x"} {
		_, err := newClient(t, ts).Submit(context.Background(), "a", in)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("input %q: expected ErrInvalidInput, got %v", in, err)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Errorf("expected no network calls, got %d", n)
	}
}

func TestSubmit_MissingOperationLocation_ReturnsProtocolError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	op, err := newClient(t, ts).Submit(context.Background(), "a", "https://example.test/doc.pdf")
	if !errors.Is(err, domain.ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
	if op.Location != "" {
		t.Errorf("expected empty operation on error, got %q", op.Location)
	}
}

func TestSubmit_NonSuccessStatus_ReturnsUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"code":"401"}}`)
	}))
	defer ts.Close()

	_, err := newClient(t, ts).Submit(context.Background(), "a", "https://example.test/doc.pdf")
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	var ue *domain.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UpstreamError, got %T", err)
	}
	if ue.StatusCode != http.StatusUnauthorized || ue.Op != "submit" {
		t.Errorf("unexpected upstream error %+v", ue)
	}
	if ue.Body != `{"error":{"code":"401"}}` {
		t.Errorf("unexpected body %q", ue.Body)
	}
}

func TestPoll_Succeeded_ReturnsBodyVerbatim(t *testing.T) {
	const body = `{"status":"Succeeded","result":{"x":1}}`
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			_, _ = io.WriteString(w, `{"status":"Running"}`)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	defer ts.Close()

	res, err := newClient(t, ts).Poll(context.Background(), domain.Operation{Location: ts.URL + "/op"}, 5*time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if string(res.Body) != body {
		t.Errorf("expected %s, got %s", body, res.Body)
	}
	if !res.Status.Is(domain.StatusSucceeded) {
		t.Errorf("unexpected status %q", res.Status)
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Errorf("expected 3 poll attempts, got %d", n)
	}
}

func TestPoll_Failed_NoRetry(t *testing.T) {
	for _, status := range []string{"failed", "Failed", "FAILED"} {
		t.Run(status, func(t *testing.T) {
			var hits int32
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				_, _ = io.WriteString(w, `{"status":"`+status+`","error":{"message":"bad document"}}`)
			}))
			defer ts.Close()

			_, err := newClient(t, ts).Poll(context.Background(), domain.Operation{Location: ts.URL}, time.Second, 10*time.Millisecond)
			if !errors.Is(err, domain.ErrAnalysisFailed) {
				t.Fatalf("expected ErrAnalysisFailed, got %v", err)
			}
			if errors.Is(err, domain.ErrTimeout) {
				t.Fatalf("failure must be distinct from timeout")
			}
			if n := atomic.LoadInt32(&hits); n != 1 {
				t.Errorf("expected exactly one attempt, got %d", n)
			}
		})
	}
}

func TestPoll_AlwaysRunning_TimesOut(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = io.WriteString(w, `{"status":"running"}`)
	}))
	defer ts.Close()

	timeout := 500 * time.Millisecond
	interval := 200 * time.Millisecond
	start := time.Now()
	_, err := newClient(t, ts).Poll(context.Background(), domain.Operation{Location: ts.URL}, timeout, interval)
	elapsed := time.Since(start)

	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed < timeout {
		t.Errorf("returned before timeout: %s", elapsed)
	}
	if n := atomic.LoadInt32(&hits); n < 2 || n > 3 {
		t.Errorf("expected 2..3 poll attempts, got %d", n)
	}
}

func TestPoll_MissingStatus_IsNotTerminal(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			_, _ = io.WriteString(w, `{}`)
			return
		}
		_, _ = io.WriteString(w, `{"status":"succeeded"}`)
	}))
	defer ts.Close()

	if _, err := newClient(t, ts).Poll(context.Background(), domain.Operation{Location: ts.URL}, time.Second, 10*time.Millisecond); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
}

func TestPoll_HTTPError_PropagatesImmediately(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := newClient(t, ts).Poll(context.Background(), domain.Operation{Location: ts.URL}, time.Second, 10*time.Millisecond)
	var ue *domain.UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != http.StatusServiceUnavailable || ue.Op != "poll" {
		t.Fatalf("expected poll UpstreamError 503, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("expected no retry, got %d attempts", n)
	}
}

func TestPoll_NonJSON_ReturnsProtocolError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>oops</html>")
	}))
	defer ts.Close()

	_, err := newClient(t, ts).Poll(context.Background(), domain.Operation{Location: ts.URL}, time.Second, 10*time.Millisecond)
	if !errors.Is(err, domain.ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestPoll_ContextCancelDuringWait(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"running"}`)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newClient(t, ts).Poll(ctx, domain.Operation{Location: ts.URL}, time.Minute, 10*time.Second)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("cancel did not interrupt the wait")
	}
}

func TestPoll_InvalidArguments(t *testing.T) {
	c, err := cu.New(cu.Options{Endpoint: "https://example.test", APIVersion: "v1", SubscriptionKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		op       domain.Operation
		timeout  time.Duration
		interval time.Duration
	}{
		{domain.Operation{}, time.Second, time.Second},
		{domain.Operation{Location: "https://example.test/op"}, 0, time.Second},
		{domain.Operation{Location: "https://example.test/op"}, time.Second, 0},
	}
	for _, tc := range cases {
		if _, err := c.Poll(context.Background(), tc.op, tc.timeout, tc.interval); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("%+v: expected ErrInvalidInput, got %v", tc, err)
		}
	}
}
