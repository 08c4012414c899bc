package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/use-agent/uicheck/api/handler"
	"github.com/use-agent/uicheck/cache"
	"github.com/use-agent/uicheck/config"
	"github.com/use-agent/uicheck/engine"
	"github.com/use-agent/uicheck/engine/enginetest"
	"github.com/use-agent/uicheck/harness"
	"github.com/use-agent/uicheck/models"
	"github.com/use-agent/uicheck/webhook"
)

const apiKey = "test-key"

const okSuite = `
settings: {base_url: "http://site.test"}
scenarios:
  - name: home
    steps:
      - navigate: /
      - assert: {title: Home}
`

type testServer struct {
	http.Handler
	runs  *handler.RunManager
	store *cache.Store
}

func newTestServer(t *testing.T, maxRuns int) *testServer {
	t.Helper()
	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: "test", MaxConcurrentRuns: maxRuns},
		Harness:   config.HarnessConfig{Mode: "sequential", Parallelism: 2, StepTimeout: 5 * time.Second, ArtifactDir: t.TempDir()},
		Auth:      config.AuthConfig{Enabled: true, APIKeys: []string{apiKey}},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
	}
	launch := func(context.Context) (engine.Engine, error) {
		return enginetest.New().
			HandleHTML("http://site.test/", "<html><head><title>Home</title></head><body></body></html>").
			Handle("http://site.test/slow", enginetest.Page{HTML: "<html></html>", Latency: 300 * time.Millisecond}), nil
	}

	store := cache.New(10, time.Hour)
	t.Cleanup(store.Close)
	runs := handler.NewRunManager(context.Background(), launch, cfg, store, harness.WithPollInterval(10*time.Millisecond))
	t.Cleanup(runs.Wait)
	return &testServer{Handler: NewRouter(runs, store, cfg, time.Now()), runs: runs, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any, key string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestHealthNeedsNoAuth(t *testing.T) {
	s := newTestServer(t, 2)
	w := s.do(t, http.MethodGet, "/api/v1/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	h := decode[models.HealthResponse](t, w)
	if h.Status != "healthy" || h.MaxRuns != 2 || h.Version == "" {
		t.Errorf("health = %+v", h)
	}
}

func TestRunRequiresAPIKey(t *testing.T) {
	s := newTestServer(t, 1)
	w := s.do(t, http.MethodPost, "/api/v1/runs", models.RunRequest{Suite: okSuite}, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", w.Code)
	}
}

func TestValidateEndpoint(t *testing.T) {
	s := newTestServer(t, 1)

	w := s.do(t, http.MethodPost, "/api/v1/validate", models.RunRequest{Suite: okSuite}, apiKey)
	ok := decode[models.ValidateResponse](t, w)
	if !ok.Valid || ok.Scenarios != 1 || ok.Steps != 2 {
		t.Errorf("valid suite = %+v", ok)
	}

	dup := `
scenarios:
  - name: a
    steps: [{navigate: "http://site.test/"}]
  - name: a
    steps: [{click: "#x"}]
`
	w = s.do(t, http.MethodPost, "/api/v1/validate", models.RunRequest{Suite: dup}, apiKey)
	bad := decode[models.ValidateResponse](t, w)
	if bad.Valid || len(bad.Problems) == 0 || bad.Error == nil || bad.Error.Code != models.ErrCodeConfiguration {
		t.Errorf("invalid suite = %+v", bad)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := newTestServer(t, 1)

	w := s.do(t, http.MethodPost, "/api/v1/runs", models.RunRequest{Suite: okSuite}, apiKey)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	started := decode[models.RunResponse](t, w)
	if started.ID == "" || started.Scenarios != 1 {
		t.Fatalf("run response = %+v", started)
	}

	s.runs.Wait()
	w = s.do(t, http.MethodGet, "/api/v1/runs/"+started.ID, nil, apiKey)
	run := decode[models.RunStatusResponse](t, w)
	if run.Status != models.RunStateCompleted || run.Report == nil {
		t.Fatalf("run = %+v", run)
	}
	if run.Report.RunID != started.ID || run.Report.Status != models.RunPassed {
		t.Errorf("report = %+v", run.Report)
	}

	h := decode[models.HealthResponse](t, s.do(t, http.MethodGet, "/api/v1/health", nil, ""))
	if h.Contexts.Created != 1 || h.Contexts.Closed != 1 || h.ActiveRuns != 0 {
		t.Errorf("health after run = %+v", h)
	}

	if w := s.do(t, http.MethodGet, "/api/v1/runs/nope", nil, apiKey); w.Code != http.StatusNotFound {
		t.Errorf("unknown run status = %d", w.Code)
	}
}

func TestRunRejectsInvalidSuite(t *testing.T) {
	s := newTestServer(t, 1)
	w := s.do(t, http.MethodPost, "/api/v1/runs", models.RunRequest{Suite: "scenarios: [{name: x, steps: [{explode: now}]}]"}, apiKey)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if s.store.Len() != 0 {
		t.Errorf("invalid run stored")
	}
}

func TestRunBusy(t *testing.T) {
	s := newTestServer(t, 1)
	slow := `
scenarios:
  - name: slow
    steps: [{navigate: "http://site.test/slow"}]
`
	if w := s.do(t, http.MethodPost, "/api/v1/runs", models.RunRequest{Suite: slow}, apiKey); w.Code != http.StatusAccepted {
		t.Fatalf("first run status = %d", w.Code)
	}
	w := s.do(t, http.MethodPost, "/api/v1/runs", models.RunRequest{Suite: okSuite}, apiKey)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("second run status = %d", w.Code)
	}
	if e := decode[models.ErrorResponse](t, w).Error; e == nil || e.Code != models.ErrCodeBusy {
		t.Errorf("error = %+v", e)
	}
}

func TestRunWebhook(t *testing.T) {
	got := make(chan webhook.Event, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Header.Get(webhook.SignatureHeader) != webhook.Sign("shh", body) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var ev webhook.Event
		_ = json.Unmarshal(body, &ev)
		got <- ev
	}))
	defer hook.Close()

	s := newTestServer(t, 1)
	w := s.do(t, http.MethodPost, "/api/v1/runs", models.RunRequest{Suite: okSuite, WebhookURL: hook.URL, WebhookSecret: "shh"}, apiKey)
	id := decode[models.RunResponse](t, w).ID

	select {
	case ev := <-got:
		if ev.Type != webhook.EventRunCompleted || ev.RunID != id {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
}
