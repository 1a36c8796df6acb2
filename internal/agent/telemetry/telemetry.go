// Package telemetry tracks run, stage and tool metrics plus LLM cost
// accounting for the orchestration engine.
package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fathom-research/fathom/config"
)

// Telemetry provides monitoring and cost tracking for orchestration runs
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	registry    *prometheus.Registry
	costTracker *CostTracker
	mu          sync.RWMutex

	runsTotal     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	toolCalls     *prometheus.CounterVec
	llmTokens     *prometheus.CounterVec
	iterations    prometheus.Histogram
}

// CostTracker tracks LLM spend across models and stages
type CostTracker struct {
	mu          sync.RWMutex
	ModelCosts  map[string]float64 // model -> cost
	StageCosts  map[string]float64 // stage -> cost
	TotalCost   float64
	TotalTokens int64
}

// StageEvent represents one completion-backed stage invocation
type StageEvent struct {
	Stage        string
	Model        string
	Duration     time.Duration
	Success      bool
	InputTokens  int64
	OutputTokens int64
	Cost         float64
}

// ToolEvent represents one tool call execution
type ToolEvent struct {
	Tool     string
	Duration time.Duration
	Success  bool
}

// RunEvent represents one complete orchestration run
type RunEvent struct {
	QueryID    string
	Duration   time.Duration
	Success    bool
	Iterations int
	Cost       float64
	Tokens     int64
}

// NewTelemetry creates a telemetry instance with its own prometheus
// registry, so concurrent instances in tests never collide on metric
// registration.
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	registry := prometheus.NewRegistry()
	t := &Telemetry{
		config:   cfg,
		logger:   log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		registry: registry,
		costTracker: &CostTracker{
			ModelCosts: make(map[string]float64),
			StageCosts: make(map[string]float64),
		},
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fathom_runs_total",
			Help: "Completed orchestration runs by status.",
		}, []string{"status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fathom_stage_duration_seconds",
			Help:    "Duration of reasoning stages.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage", "status"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fathom_tool_calls_total",
			Help: "Tool call executions by tool and status.",
		}, []string{"tool", "status"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fathom_llm_tokens_total",
			Help: "LLM tokens consumed by model and direction.",
		}, []string{"model", "direction"}),
		iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fathom_run_iterations",
			Help:    "Plan/execute/reflect iterations per run.",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
	}
	registry.MustRegister(t.runsTotal, t.stageDuration, t.toolCalls, t.llmTokens, t.iterations)
	return t
}

// Registry exposes the prometheus registry for the HTTP handler
func (t *Telemetry) Registry() *prometheus.Registry { return t.registry }

// RecordStageEvent records one stage invocation
func (t *Telemetry) RecordStageEvent(event StageEvent) {
	if !t.config.Enabled {
		return
	}
	t.stageDuration.WithLabelValues(event.Stage, statusLabel(event.Success)).Observe(event.Duration.Seconds())
	if event.Model != "" {
		t.llmTokens.WithLabelValues(event.Model, "input").Add(float64(event.InputTokens))
		t.llmTokens.WithLabelValues(event.Model, "output").Add(float64(event.OutputTokens))
	}
	if t.config.CostTracking {
		t.costTracker.mu.Lock()
		t.costTracker.TotalCost += event.Cost
		t.costTracker.TotalTokens += event.InputTokens + event.OutputTokens
		t.costTracker.ModelCosts[event.Model] += event.Cost
		t.costTracker.StageCosts[event.Stage] += event.Cost
		t.costTracker.mu.Unlock()
	}
}

// RecordToolEvent records one tool call execution
func (t *Telemetry) RecordToolEvent(event ToolEvent) {
	if !t.config.Enabled {
		return
	}
	t.toolCalls.WithLabelValues(event.Tool, statusLabel(event.Success)).Inc()
}

// RecordRunEvent records one complete orchestration run
func (t *Telemetry) RecordRunEvent(event RunEvent) {
	if !t.config.Enabled {
		return
	}
	t.runsTotal.WithLabelValues(statusLabel(event.Success)).Inc()
	t.iterations.Observe(float64(event.Iterations))
	t.logger.Printf("Run Event: ID=%s, Success=%t, Duration=%v, Iterations=%d, Cost=$%.4f, Tokens=%d",
		event.QueryID, event.Success, event.Duration, event.Iterations, event.Cost, event.Tokens)
}

// CostSummary provides a snapshot of accumulated costs
type CostSummary struct {
	TotalCost   float64            `json:"total_cost"`
	TotalTokens int64              `json:"total_tokens"`
	ModelCosts  map[string]float64 `json:"model_costs"`
	StageCosts  map[string]float64 `json:"stage_costs"`
}

// GetCostSummary returns the current cost summary
func (t *Telemetry) GetCostSummary() CostSummary {
	t.costTracker.mu.RLock()
	defer t.costTracker.mu.RUnlock()
	summary := CostSummary{
		TotalCost:   t.costTracker.TotalCost,
		TotalTokens: t.costTracker.TotalTokens,
		ModelCosts:  make(map[string]float64, len(t.costTracker.ModelCosts)),
		StageCosts:  make(map[string]float64, len(t.costTracker.StageCosts)),
	}
	for k, v := range t.costTracker.ModelCosts {
		summary.ModelCosts[k] = v
	}
	for k, v := range t.costTracker.StageCosts {
		summary.StageCosts[k] = v
	}
	return summary
}

// Shutdown logs a final cost report
func (t *Telemetry) Shutdown() {
	costs := t.GetCostSummary()
	t.logger.Printf("Final Report: Total Cost=$%.4f, Total Tokens=%d", costs.TotalCost, costs.TotalTokens)
	for model, cost := range costs.ModelCosts {
		t.logger.Printf("  Model %s: $%.4f", model, cost)
	}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
