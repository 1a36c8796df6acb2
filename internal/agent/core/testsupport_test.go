package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fathom-research/fathom/config"
	"github.com/fathom-research/fathom/internal/agent/telemetry"
)

func testConfig() *config.Config {
	return &config.Config{
		General: config.GeneralConfig{DefaultTimeout: 30 * time.Second},
		LLM: config.LLMConfig{
			Routing: config.LLMRoutingConfig{
				Understanding: "primary",
				Planning:      "primary",
				Resolution:    "primary",
				Reflection:    "primary",
				Synthesis:     "primary",
				Fallback:      "fallback",
			},
		},
		Agents: config.AgentsConfig{
			MaxIterations:        2,
			MaxToolCalls:         5,
			MaxParallelToolCalls: 4,
		},
		Telemetry: config.TelemetryConfig{Enabled: false},
	}
}

func testTelemetry() *telemetry.Telemetry {
	return telemetry.NewTelemetry(config.TelemetryConfig{Enabled: false})
}

// fakeProvider scripts completion responses per request and counts
// calls for the stages that must not invoke the model.
type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	respond func(messages []Message, model string) (string, error)
}

func (f *fakeProvider) Generate(ctx context.Context, messages []Message, model string, options map[string]interface{}) (string, error) {
	resp, _, _, err := f.GenerateWithTokens(ctx, messages, model, options)
	return resp, err
}

func (f *fakeProvider) GenerateWithTokens(ctx context.Context, messages []Message, model string, options map[string]interface{}) (string, int64, int64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.respond == nil {
		return "", 0, 0, errors.New("no script")
	}
	resp, err := f.respond(messages, model)
	if err != nil {
		return "", 0, 0, err
	}
	return resp, 10, 20, nil
}

func (f *fakeProvider) GetAvailableModels() []string { return []string{"primary", "fallback"} }

func (f *fakeProvider) GetModelInfo(model string) (ModelInfo, error) {
	return ModelInfo{Name: model, Provider: "fake"}, nil
}

func (f *fakeProvider) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	return float64(inputTokens+outputTokens) / 1000.0
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// systemPrompt returns the system message content, used by scripts to
// tell the stages apart.
func systemPrompt(messages []Message) string {
	for _, m := range messages {
		if m.Role == "system" {
			return m.Content
		}
	}
	return ""
}

func userPrompt(messages []Message) string {
	for _, m := range messages {
		if m.Role == "user" {
			return m.Content
		}
	}
	return ""
}

// stubTool is a registrable tool with scripted behavior
type stubTool struct {
	name   string
	desc   string
	params map[string]interface{}
	exec   func(ctx context.Context, args map[string]interface{}) Outcome
}

func (s *stubTool) Name() string                       { return s.name }
func (s *stubTool) Description() string                { return s.desc }
func (s *stubTool) Parameters() map[string]interface{} { return s.params }
func (s *stubTool) Execute(ctx context.Context, args map[string]interface{}) Outcome {
	return s.exec(ctx, args)
}

// newProbeTool fails when args contain "fail": true
func newProbeTool() *stubTool {
	return &stubTool{
		name: "probe",
		desc: "test probe",
		params: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"fail": map[string]interface{}{"type": "boolean"},
			},
			"required": []string{"fail"},
		},
		exec: func(ctx context.Context, args map[string]interface{}) Outcome {
			if fail, _ := args["fail"].(bool); fail {
				return Failure{Err: "probe failed"}
			}
			return Success{
				Data:       map[string]interface{}{"value": 42},
				SourceURLs: []string{"https://example.com/data"},
				Evidence:   []Evidence{{ID: "ev-probe", Kind: EvidenceKindURL, Label: "probe", URL: "https://example.com/data"}},
			}
		},
	}
}

func testRegistry(tools ...Tool) *Registry {
	reg := NewRegistry()
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			panic(err)
		}
	}
	return reg
}

// memStore records context writes in memory
type memStore struct {
	mu   sync.Mutex
	recs []ContextRecord
}

func (m *memStore) Save(ctx context.Context, rec ContextRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return "ptr", nil
}

func (m *memStore) records() []ContextRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ContextRecord, len(m.recs))
	copy(out, m.recs)
	return out
}

// stageOf classifies a request by its system prompt so orchestrator
// tests can script every stage from one function.
func stageOf(messages []Message) string {
	sys := systemPrompt(messages)
	switch {
	case strings.Contains(sys, "extract structured intent"):
		return "understanding"
	case strings.Contains(sys, "planning agent"):
		return "planning"
	case strings.Contains(sys, "map research sub tasks"):
		return "resolution"
	case strings.Contains(sys, "judge whether"):
		return "reflection"
	case strings.Contains(sys, "final research answers"):
		return "synthesis"
	default:
		return "unknown"
	}
}
