package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fathom-research/fathom/config"
	"github.com/fathom-research/fathom/internal/agent/telemetry"
	"github.com/fathom-research/fathom/internal/jsonutil"
)

// Resolver maps a planned task's sub tasks to concrete tool calls
type Resolver struct {
	config      *config.Config
	llmProvider LLMProvider
	registry    *Registry
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
	maxCalls    int
}

// NewResolver creates a new tool resolution stage bound to a registry
func NewResolver(cfg *config.Config, llmProvider LLMProvider, registry *Registry, tel *telemetry.Telemetry) *Resolver {
	maxCalls := cfg.Agents.MaxToolCalls
	if maxCalls <= 0 {
		maxCalls = 5
	}
	return &Resolver{
		config:      cfg,
		llmProvider: llmProvider,
		registry:    registry,
		telemetry:   tel,
		logger:      log.New(log.Writer(), "[RESOLVER] ", log.LstdFlags),
		maxCalls:    maxCalls,
	}
}

// Resolve turns one task into schema-shaped tool calls. Resolution
// fails closed: on primary-model failure it retries once against the
// configured fallback model, then returns an empty list with the
// error. Inventing tool calls is worse than doing nothing.
func (r *Resolver) Resolve(ctx context.Context, task PlannedTask, query string, stats *RunStats) ([]ToolCall, error) {
	primary := r.config.LLM.Routing.Resolution
	if primary == "" {
		primary = r.config.LLM.Routing.Fallback
	}

	calls, err := r.resolveWithModel(ctx, task, query, primary, stats)
	if err == nil {
		return calls, nil
	}
	fallback := r.config.LLM.Routing.Fallback
	if fallback != "" && fallback != primary {
		r.logger.Printf("Resolution with %s failed (%v), retrying with %s", primary, err, fallback)
		calls, retryErr := r.resolveWithModel(ctx, task, query, fallback, stats)
		if retryErr == nil {
			return calls, nil
		}
		err = retryErr
	}
	return []ToolCall{}, &StageError{Stage: "resolution", Err: err}
}

func (r *Resolver) resolveWithModel(ctx context.Context, task PlannedTask, query, model string, stats *RunStats) ([]ToolCall, error) {
	startTime := time.Now()
	messages := []Message{
		{Role: "system", Content: resolutionSystemPrompt},
		{Role: "user", Content: r.buildPrompt(task, query)},
	}
	// temperature 0 keeps resolution deterministic for a given prompt
	response, inTok, outTok, err := r.llmProvider.GenerateWithTokens(ctx, messages, model, map[string]interface{}{
		"temperature": 0.0,
		"max_tokens":  1200,
	})
	cost := r.llmProvider.CalculateCost(inTok, outTok, model)
	stats.Add(inTok, outTok, cost, model)
	r.telemetry.RecordStageEvent(telemetry.StageEvent{
		Stage: "resolution", Model: model, Duration: time.Since(startTime),
		Success: err == nil, InputTokens: inTok, OutputTokens: outTok, Cost: cost,
	})
	if err != nil {
		return nil, err
	}

	var calls []ToolCall
	if err := jsonutil.DecodeArray(response, &calls); err != nil {
		return nil, err
	}
	for i, call := range calls {
		if call.Tool == "" {
			return nil, fmt.Errorf("call %d has no tool name", i)
		}
		if call.Args == nil {
			calls[i].Args = map[string]interface{}{}
		}
	}
	// over-generation is common; truncation is cheaper than retrying
	if len(calls) > r.maxCalls {
		r.logger.Printf("Truncating %d resolved calls to %d for task %d", len(calls), r.maxCalls, task.ID)
		calls = calls[:r.maxCalls]
	}
	return calls, nil
}

const resolutionSystemPrompt = `You map research sub tasks to tool calls. Use only the tools listed, with arguments
matching each tool's JSON schema exactly. Respond ONLY with a JSON array:
[{"tool": "tool_name", "args": {...}, "reasoning": "why this call serves the sub task"}]
Return [] if no listed tool can help.`

func (r *Resolver) buildPrompt(task PlannedTask, query string) string {
	var b strings.Builder
	if query != "" {
		fmt.Fprintf(&b, "OVERALL QUERY: %s\n\n", query)
	}
	fmt.Fprintf(&b, "TASK: %s\n", task.Description)
	if len(task.SubTasks) > 0 {
		b.WriteString("SUB TASKS:\n")
		for _, st := range task.SubTasks {
			fmt.Fprintf(&b, "%d. %s\n", st.ID, st.Description)
		}
	}
	b.WriteString("\nAVAILABLE TOOLS:\n")
	for _, t := range r.registry.Describe() {
		schema, _ := json.Marshal(t.Parameters)
		fmt.Fprintf(&b, "- %s: %s\n  parameters: %s\n", t.Name, t.Description, schema)
	}
	return b.String()
}
