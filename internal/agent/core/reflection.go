package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fathom-research/fathom/config"
	"github.com/fathom-research/fathom/internal/agent/telemetry"
	"github.com/fathom-research/fathom/internal/jsonutil"
)

// Reflector judges whether the gathered evidence suffices to answer.
// Two states only: complete or not.
type Reflector struct {
	config      *config.Config
	llmProvider LLMProvider
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

// NewReflector creates a new reflection stage
func NewReflector(cfg *config.Config, llmProvider LLMProvider, tel *telemetry.Telemetry) *Reflector {
	return &Reflector{
		config:      cfg,
		llmProvider: llmProvider,
		telemetry:   tel,
		logger:      log.New(log.Writer(), "[REFLECT] ", log.LstdFlags),
	}
}

// Reflect evaluates the work done so far. At the iteration cap it
// forces completion without a completion request. On any failure it
// also completes: a broken judge must never keep the loop alive.
func (r *Reflector) Reflect(ctx context.Context, query string, understanding Understanding, results []SubTaskResult, iteration int, stats *RunStats) (ReflectionResult, error) {
	if iteration >= r.config.Agents.MaxIterations {
		return ReflectionResult{
			IsComplete: true,
			Reasoning:  "Reached maximum iterations, proceeding with available information",
		}, nil
	}

	startTime := time.Now()
	model := r.config.LLM.Routing.Reflection
	if model == "" {
		model = r.config.LLM.Routing.Fallback
	}

	messages := []Message{
		{Role: "system", Content: reflectionSystemPrompt},
		{Role: "user", Content: r.buildPrompt(query, understanding, results, iteration)},
	}
	response, inTok, outTok, err := r.llmProvider.GenerateWithTokens(ctx, messages, model, map[string]interface{}{
		"temperature": 0.1,
		"max_tokens":  800,
		"json":        true,
	})
	cost := r.llmProvider.CalculateCost(inTok, outTok, model)
	stats.Add(inTok, outTok, cost, model)
	r.telemetry.RecordStageEvent(telemetry.StageEvent{
		Stage: "reflection", Model: model, Duration: time.Since(startTime),
		Success: err == nil, InputTokens: inTok, OutputTokens: outTok, Cost: cost,
	})
	if err != nil {
		return completeOnFailure(err), &StageError{Stage: "reflection", Err: err}
	}

	var parsed ReflectionResult
	if err := jsonutil.DecodeObject(response, &parsed); err != nil {
		return completeOnFailure(err), &StageError{Stage: "reflection", Err: err}
	}
	r.logger.Printf("Reflection at iteration %d: complete=%t missing=%d", iteration, parsed.IsComplete, len(parsed.MissingInfo))
	return parsed, nil
}

func completeOnFailure(err error) ReflectionResult {
	return ReflectionResult{
		IsComplete: true,
		Reasoning:  fmt.Sprintf("Reflection unavailable (%v), proceeding with available information", err),
	}
}

// BuildPlanningGuidance renders a reflection into free text appended
// to the next planning prompt. For a complete reflection only the
// reasoning is returned.
func BuildPlanningGuidance(reflection ReflectionResult) string {
	if reflection.IsComplete {
		return reflection.Reasoning
	}
	var b strings.Builder
	if reflection.Reasoning != "" {
		fmt.Fprintf(&b, "Previous iteration assessment: %s\n", reflection.Reasoning)
	}
	if len(reflection.MissingInfo) > 0 {
		b.WriteString("Still missing:\n")
		for _, item := range reflection.MissingInfo {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	if reflection.SuggestedNextSteps != "" {
		fmt.Fprintf(&b, "Suggested next steps: %s\n", reflection.SuggestedNextSteps)
	}
	return strings.TrimSpace(b.String())
}

const reflectionSystemPrompt = `You judge whether gathered research results are sufficient to answer the user's question.
Respond ONLY with a JSON object:
{"is_complete": bool, "reasoning": "string", "missing_info": ["string"], "suggested_next_steps": "string"}`

func (r *Reflector) buildPrompt(query string, understanding Understanding, results []SubTaskResult, iteration int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "QUERY: %s\n", query)
	if understanding.Intent != "" {
		fmt.Fprintf(&b, "INTENT: %s\n", understanding.Intent)
	}
	if len(understanding.Entities) > 0 {
		b.WriteString("ENTITIES:\n")
		for _, e := range understanding.Entities {
			fmt.Fprintf(&b, "- %s: %s\n", e.Type, e.Value)
		}
	}
	fmt.Fprintf(&b, "ITERATION: %d of %d\n", iteration+1, r.config.Agents.MaxIterations)
	b.WriteString("\nWORK COMPLETED SO FAR:\n")
	b.WriteString(RenderCompletedWork(results))
	return b.String()
}

// RenderCompletedWork produces the per-task textual summary fed to
// reflection, one line per task with truncated call outputs.
func RenderCompletedWork(results []SubTaskResult) string {
	if len(results) == 0 {
		return "(no tasks executed)\n"
	}
	var b strings.Builder
	for _, res := range results {
		mark := "✗"
		if res.Success {
			mark = "✓"
		}
		fmt.Fprintf(&b, "%s Task %d", mark, res.TaskID)
		if res.Error != "" {
			fmt.Fprintf(&b, " (error: %s)", res.Error)
		}
		b.WriteString("\n")
		for _, cr := range res.Result {
			switch out := cr.Outcome.(type) {
			case Success:
				fmt.Fprintf(&b, "  - %s: %s\n", cr.Call.Tool, truncate(fmt.Sprintf("%v", out.Data), 300))
			case Failure:
				fmt.Fprintf(&b, "  - %s: failed (%s)\n", cr.Call.Tool, truncate(out.Err, 200))
			}
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
