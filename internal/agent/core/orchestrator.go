package core

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/fathom-research/fathom/config"
	"github.com/fathom-research/fathom/internal/agent/telemetry"
)

// Orchestrator sequences understanding, planning, execution, reflection
// and synthesis into a bounded iterative loop.
type Orchestrator struct {
	config    *config.Config
	telemetry *telemetry.Telemetry
	logger    *log.Logger

	understander *Understander
	planner      *Planner
	executor     *Executor
	reflector    *Reflector
	synthesizer  *Synthesizer

	registry *Registry
	history  HistorySelector
}

// NewOrchestrator wires the stages together. The registry and context
// store are explicit per-orchestrator dependencies so concurrent
// orchestrators with different tool sets never interfere. history may
// be nil.
func NewOrchestrator(cfg *config.Config, llmProvider LLMProvider, registry *Registry, store ContextStore, history HistorySelector, tel *telemetry.Telemetry) *Orchestrator {
	resolver := NewResolver(cfg, llmProvider, registry, tel)
	return &Orchestrator{
		config:       cfg,
		telemetry:    tel,
		logger:       log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
		understander: NewUnderstander(cfg, llmProvider, tel),
		planner:      NewPlanner(cfg, llmProvider, tel),
		executor:     NewExecutor(cfg, registry, resolver, store, tel),
		reflector:    NewReflector(cfg, llmProvider, tel),
		synthesizer:  NewSynthesizer(cfg, llmProvider, tel),
		registry:     registry,
		history:      history,
	}
}

// Process runs one full orchestration and blocks until the answer is
// ready. It never returns an error from a reasoning stage; the worst
// case is a best-effort answer explaining what failed.
func (o *Orchestrator) Process(ctx context.Context, query string) (OrchestratorResult, error) {
	return o.run(ctx, query, nil)
}

// run is the shared state machine behind both the blocking and the
// streaming mode. emit is nil in blocking mode.
func (o *Orchestrator) run(ctx context.Context, query string, emit func(Event)) (OrchestratorResult, error) {
	startTime := time.Now()
	queryID := uuid.NewString()
	stats := &RunStats{}
	o.logger.Printf("Processing query %s: %q", queryID, query)

	planningHistory, answerHistory := o.selectHistory(ctx, query)

	o.send(emit, Event{Type: EventThinking, Data: "Analyzing the question"})
	// understanding fails open: the raw query stands in for intent
	understanding, err := o.understander.Understand(ctx, query, planningHistory, stats)
	if err != nil {
		o.logger.Printf("Understanding failed, proceeding with raw query: %v", err)
	}
	o.send(emit, Event{Type: EventUnderstanding, Data: understanding})

	maxIterations := o.config.Agents.MaxIterations
	var (
		allResults []SubTaskResult
		envelope   EvidenceEnvelope
		reflection ReflectionResult
		iterations int
	)

	for iteration := 0; iteration < maxIterations; iteration++ {
		iterations = iteration + 1
		guidance := ""
		if iteration > 0 {
			guidance = BuildPlanningGuidance(reflection)
		}

		o.send(emit, Event{Type: EventThinking, Data: fmt.Sprintf("Planning iteration %d", iteration+1)})
		// planning fails open: an empty plan skips execution this round
		plan, err := o.planner.Plan(ctx, query, PlanContext{
			Understanding: understanding,
			Guidance:      guidance,
			History:       planningHistory,
		}, o.registry.Describe(), stats)
		if err != nil {
			o.logger.Printf("Planning failed, skipping execution this iteration: %v", err)
		}
		o.send(emit, Event{Type: EventPlan, Data: plan})

		if len(plan.Tasks) > 0 {
			results := o.executor.ExecutePlan(ctx, plan, query, queryID, stats, newCallObserver(emit))
			allResults = append(allResults, results...)
			for _, res := range results {
				envelope.CollectEvidence(res.Result)
			}
		}

		// reflection fails to complete: a broken judge never loops forever
		reflection, err = o.reflector.Reflect(ctx, query, understanding, allResults, iteration, stats)
		if err != nil {
			o.logger.Printf("Reflection failed, treating run as complete: %v", err)
		}
		if reflection.IsComplete || iteration+1 == maxIterations {
			break
		}
	}

	o.send(emit, Event{Type: EventThinking, Data: "Synthesizing the answer"})
	collected := CollectForSynthesis(allResults)
	answer, err := o.synthesizer.Synthesize(ctx, query, collected, answerHistory, stats)
	if err != nil {
		// the fallback answer already explains the failure
		o.logger.Printf("Synthesis failed: %v", err)
	}
	o.send(emit, Event{Type: EventAnswer, Data: answer})
	o.send(emit, Event{Type: EventSources, Data: answer.Sources})
	o.send(emit, Event{Type: EventEvidence, Data: envelope})

	elapsed := time.Since(startTime)
	result := OrchestratorResult{
		QueryID:       queryID,
		Answer:        answer,
		Sources:       answer.Sources,
		Evidence:      envelope,
		Understanding: understanding,
		Iterations:    iterations,
		Elapsed:       elapsed,
		CostEstimate:  stats.Cost,
		TokensUsed:    stats.TotalTokens(),
	}
	o.telemetry.RecordRunEvent(telemetry.RunEvent{
		QueryID: queryID, Duration: elapsed, Success: true,
		Iterations: iterations, Cost: stats.Cost, Tokens: stats.TotalTokens(),
	})
	o.logger.Printf("Query %s done: %d iterations, %d sources, $%.4f, %v",
		queryID, iterations, len(answer.Sources), stats.Cost, elapsed)
	return result, nil
}

func (o *Orchestrator) selectHistory(ctx context.Context, query string) (string, string) {
	if o.history == nil {
		return "", ""
	}
	planningCtx, answerCtx, err := o.history.Select(ctx, query)
	if err != nil {
		o.logger.Printf("Warning: history selection failed: %v", err)
		return "", ""
	}
	return planningCtx, answerCtx
}

func (o *Orchestrator) send(emit func(Event), ev Event) {
	if emit != nil {
		emit(ev)
	}
}

// CollectForSynthesis flattens successful tool outputs across all
// executed tasks into the synthesis stage's input shape.
func CollectForSynthesis(results []SubTaskResult) []CollectedData {
	var out []CollectedData
	for _, res := range results {
		for _, cr := range res.Result {
			if s, ok := cr.Outcome.(Success); ok {
				out = append(out, CollectedData{
					ToolName:   cr.Call.Tool,
					Data:       s.Data,
					SourceURLs: s.SourceURLs,
				})
			}
		}
	}
	return out
}
