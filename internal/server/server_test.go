package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fathom-research/fathom/config"
	"github.com/fathom-research/fathom/internal/agent/core"
	"github.com/fathom-research/fathom/internal/agent/telemetry"
)

type fakeRunner struct {
	result core.OrchestratorResult
	events []core.Event
	err    error
}

func (f *fakeRunner) Process(ctx context.Context, query string) (core.OrchestratorResult, error) {
	return f.result, f.err
}

func (f *fakeRunner) ProcessStream(ctx context.Context, query string, events chan<- core.Event) (core.OrchestratorResult, error) {
	defer close(events)
	for _, ev := range f.events {
		events <- ev
	}
	return f.result, f.err
}

func testServer(t *testing.T, cfg *config.Config, runner Runner) *Server {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	tel := telemetry.NewTelemetry(config.TelemetryConfig{})
	return New(cfg, runner, nil, tel, log.New(io.Discard, "", 0))
}

func sampleResult() core.OrchestratorResult {
	return core.OrchestratorResult{
		QueryID: "run-1",
		Answer: core.StructuredAnswer{
			Content: "Revenue grew 12%.\n\nSources:\n- https://example.com/earnings",
			Sources: []string{"https://example.com/earnings"},
		},
		Sources:    []string{"https://example.com/earnings"},
		Iterations: 1,
	}
}

func TestHealthz(t *testing.T) {
	s := testServer(t, nil, &fakeRunner{})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := testServer(t, nil, &fakeRunner{})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCreateRun(t *testing.T) {
	s := testServer(t, nil, &fakeRunner{result: sampleResult()})

	body := strings.NewReader(`{"query": "what was revenue growth"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/runs", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result core.OrchestratorResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.QueryID != "run-1" {
		t.Fatalf("unexpected query id: %s", result.QueryID)
	}
	if !strings.Contains(result.Answer.Content, "12%") {
		t.Fatalf("unexpected answer: %q", result.Answer.Content)
	}
}

func TestCreateRunRejectsEmptyQuery(t *testing.T) {
	s := testServer(t, nil, &fakeRunner{})

	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"query": "  "}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStreamRunEmitsSSE(t *testing.T) {
	runner := &fakeRunner{
		result: sampleResult(),
		events: []core.Event{
			{Type: core.EventThinking, Data: "Analyzing the question"},
			{Type: core.EventPlan, Data: core.ExecutionPlan{}},
			{Type: core.EventAnswer, Data: core.StructuredAnswer{Content: "Revenue grew 12%."}},
		},
	}
	s := testServer(t, nil, runner)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/stream?q=revenue+growth", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"event: thinking", "event: plan", "event: answer", "event: done"} {
		if !strings.Contains(body, want) {
			t.Fatalf("stream missing %q:\n%s", want, body)
		}
	}
	if strings.Index(body, "event: thinking") > strings.Index(body, "event: done") {
		t.Fatalf("done emitted before progress events:\n%s", body)
	}
}

func TestStreamRunRequiresQuery(t *testing.T) {
	s := testServer(t, nil, &fakeRunner{})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/stream", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestJWTGuardsAPIRoutes(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{JWTSecret: "sekrit"}}
	s := testServer(t, cfg, &fakeRunner{result: sampleResult()})

	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"query": "x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token, err := SignToken("tester", []byte("sekrit"), time.Minute)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"query": "x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rec.Code, rec.Body.String())
	}

	// health stays public
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected public healthz, got %d", rec.Code)
	}
}
