package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fathom-research/fathom/config"
	"github.com/fathom-research/fathom/internal/agent/telemetry"
)

// Executor runs resolved tool calls for each task in a plan. Tasks run
// sequentially in plan order; the calls within one task fan out
// concurrently and are joined before the task is considered finished.
type Executor struct {
	config    *config.Config
	registry  *Registry
	resolver  *Resolver
	store     ContextStore
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewExecutor creates a new execution stage
func NewExecutor(cfg *config.Config, registry *Registry, resolver *Resolver, store ContextStore, tel *telemetry.Telemetry) *Executor {
	return &Executor{
		config:    cfg,
		registry:  registry,
		resolver:  resolver,
		store:     store,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[EXECUTOR] ", log.LstdFlags),
	}
}

// CallObserver is notified as individual tool calls start and finish.
// The streaming orchestrator uses it to surface progress; the blocking
// one passes nil.
type CallObserver interface {
	OnToolCall(taskID int, call ToolCall)
	OnToolResult(taskID int, result CallResult)
}

// ExecutePlan resolves and runs every task in the plan. When a task's
// aggregate result is unsuccessful the remaining tasks are skipped and
// the partial results returned, unless continue_on_task_failure is
// set in configuration.
func (e *Executor) ExecutePlan(ctx context.Context, plan ExecutionPlan, query, queryID string, stats *RunStats, obs CallObserver) []SubTaskResult {
	results := make([]SubTaskResult, 0, len(plan.Tasks))
	for _, task := range plan.Tasks {
		result := e.executeTask(ctx, task, query, queryID, stats, obs)
		results = append(results, result)
		if !result.Success && !e.config.Agents.ContinueOnTaskFailure {
			e.logger.Printf("Task %d failed (%s), skipping %d remaining tasks", task.ID, result.Error, len(plan.Tasks)-len(results))
			break
		}
	}
	return results
}

func (e *Executor) executeTask(ctx context.Context, task PlannedTask, query, queryID string, stats *RunStats, obs CallObserver) SubTaskResult {
	startTime := time.Now()
	result := SubTaskResult{TaskID: task.ID}

	calls, err := e.resolver.Resolve(ctx, task, query, stats)
	if err != nil {
		e.logger.Printf("Tool resolution failed for task %d: %v", task.ID, err)
	}
	if len(calls) == 0 {
		result.Error = "no tool calls resolved"
		result.Duration = time.Since(startTime)
		return result
	}

	result.Result = e.runCalls(ctx, task.ID, calls, queryID, obs)
	for _, cr := range result.Result {
		if cr.Outcome.Succeeded() {
			result.Success = true
		} else if f, ok := cr.Outcome.(Failure); ok && result.Error == "" {
			result.Error = fmt.Sprintf("%s: %s", cr.Call.Tool, f.Err)
		}
	}
	if result.Success {
		result.Error = ""
	}
	result.Duration = time.Since(startTime)
	e.logger.Printf("Task %d finished in %v: %d calls, success=%t", task.ID, result.Duration, len(result.Result), result.Success)
	return result
}

// runCalls fans the task's calls out concurrently and joins them all.
// A failing call is captured in its slot; it never aborts siblings.
func (e *Executor) runCalls(ctx context.Context, taskID int, calls []ToolCall, queryID string, obs CallObserver) []CallResult {
	results := make([]CallResult, len(calls))
	maxParallel := e.config.Agents.MaxParallelToolCalls
	if maxParallel <= 0 {
		maxParallel = len(calls)
	}
	sem := make(chan struct{}, maxParallel)

	var wg sync.WaitGroup
	for i, call := range calls {
		if obs != nil {
			obs.OnToolCall(taskID, call)
		}
		wg.Add(1)
		go func(i int, call ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = CallResult{Call: call, Outcome: e.runCall(ctx, taskID, call, queryID)}
		}(i, call)
	}
	wg.Wait()

	if obs != nil {
		for _, res := range results {
			obs.OnToolResult(taskID, res)
		}
	}
	return results
}

func (e *Executor) runCall(ctx context.Context, taskID int, call ToolCall, queryID string) Outcome {
	startTime := time.Now()
	outcome := e.invoke(ctx, call)
	e.telemetry.RecordToolEvent(telemetry.ToolEvent{
		Tool: call.Tool, Duration: time.Since(startTime), Success: outcome.Succeeded(),
	})
	e.persist(ctx, taskID, call, outcome, queryID)
	return outcome
}

func (e *Executor) invoke(ctx context.Context, call ToolCall) (out Outcome) {
	tool, ok := e.registry.Get(call.Tool)
	if !ok {
		return Failure{Err: fmt.Sprintf("unknown tool: %s", call.Tool)}
	}
	// schema violations are execution failures, not planning failures
	if err := e.registry.ValidateArgs(call.Tool, call.Args); err != nil {
		return Fail(err)
	}

	if timeout := e.config.Agents.ToolTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			out = Failure{Err: fmt.Sprintf("tool %s panicked: %v", call.Tool, r)}
		}
	}()
	return tool.Execute(ctx, call.Args)
}

// persist writes the call outcome to the context store regardless of
// success, so every invocation can be inspected after the run.
func (e *Executor) persist(ctx context.Context, taskID int, call ToolCall, outcome Outcome, queryID string) {
	if e.store == nil {
		return
	}
	rec := ContextRecord{
		QueryID:   queryID,
		TaskID:    taskID,
		ToolName:  call.Tool,
		Args:      call.Args,
		CreatedAt: time.Now().UTC(),
	}
	switch out := outcome.(type) {
	case Success:
		rec.Result = out.Data
		rec.SourceURLs = out.SourceURLs
	case Failure:
		rec.Error = out.Err
	}
	if _, err := e.store.Save(ctx, rec); err != nil {
		e.logger.Printf("Warning: context store save failed for %s: %v", call.Tool, err)
	}
}
