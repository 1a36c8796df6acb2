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

// Planner decomposes a query into a hierarchical execution plan
type Planner struct {
	config      *config.Config
	llmProvider LLMProvider
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

// NewPlanner creates a new planning stage
func NewPlanner(cfg *config.Config, llmProvider LLMProvider, tel *telemetry.Telemetry) *Planner {
	return &Planner{
		config:      cfg,
		llmProvider: llmProvider,
		telemetry:   tel,
		logger:      log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// PlanContext carries everything the planner folds into its prompt
// besides the query itself.
type PlanContext struct {
	Understanding Understanding
	Guidance      string // rendered from the previous iteration's reflection
	History       string // conversation context from the history selector
}

// Plan creates an execution plan. On failure it returns an empty plan
// alongside the error; an empty plan makes the orchestrator skip
// execution for the iteration instead of crashing.
func (p *Planner) Plan(ctx context.Context, query string, planCtx PlanContext, tools []ToolDescription, stats *RunStats) (ExecutionPlan, error) {
	startTime := time.Now()
	model := p.config.LLM.Routing.Planning
	if model == "" {
		model = p.config.LLM.Routing.Fallback
	}

	messages := []Message{
		{Role: "system", Content: planningSystemPrompt},
		{Role: "user", Content: p.buildPrompt(query, planCtx, tools)},
	}
	response, inTok, outTok, err := p.llmProvider.GenerateWithTokens(ctx, messages, model, map[string]interface{}{
		"temperature": 0.3,
		"max_tokens":  2000,
		"json":        true,
	})
	cost := p.llmProvider.CalculateCost(inTok, outTok, model)
	stats.Add(inTok, outTok, cost, model)
	p.telemetry.RecordStageEvent(telemetry.StageEvent{
		Stage: "planning", Model: model, Duration: time.Since(startTime),
		Success: err == nil, InputTokens: inTok, OutputTokens: outTok, Cost: cost,
	})
	if err != nil {
		return ExecutionPlan{Tasks: []PlannedTask{}}, &StageError{Stage: "planning", Err: err}
	}

	var plan ExecutionPlan
	if err := jsonutil.DecodeObject(response, &plan); err != nil {
		return ExecutionPlan{Tasks: []PlannedTask{}}, &StageError{Stage: "planning", Err: err}
	}
	if plan.Tasks == nil {
		plan.Tasks = []PlannedTask{}
	}
	p.logger.Printf("Planning completed in %v with %d tasks", time.Since(startTime), len(plan.Tasks))
	return plan, nil
}

const planningSystemPrompt = `You are a planning agent that decomposes research questions into parallelizable tasks.
Each task covers one line of investigation and contains specific sub tasks. Sub task descriptions must be
self-contained and carry the concrete entities (tickers, dates, metrics) they need, because they are resolved
to tool calls without seeing the rest of the plan.

Respond ONLY with a JSON object:
{"tasks": [{"id": 1, "description": "string", "sub_tasks": [{"id": 1, "description": "string"}]}]}`

func (p *Planner) buildPrompt(query string, planCtx PlanContext, tools []ToolDescription) string {
	var b strings.Builder
	fmt.Fprintf(&b, "QUERY: %s\n", query)
	if planCtx.Understanding.Intent != "" {
		fmt.Fprintf(&b, "\nINTENT: %s\n", planCtx.Understanding.Intent)
	}
	if len(planCtx.Understanding.Entities) > 0 {
		b.WriteString("ENTITIES:\n")
		for _, e := range planCtx.Understanding.Entities {
			fmt.Fprintf(&b, "- %s: %s\n", e.Type, e.Value)
		}
	}
	if len(tools) > 0 {
		b.WriteString("\nAVAILABLE TOOLS:\n")
		for _, t := range tools {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		}
	}
	if planCtx.History != "" {
		fmt.Fprintf(&b, "\nCONVERSATION CONTEXT:\n%s\n", planCtx.History)
	}
	if planCtx.Guidance != "" {
		fmt.Fprintf(&b, "\nGUIDANCE FROM PREVIOUS ITERATION:\n%s\n", planCtx.Guidance)
	}
	return b.String()
}
