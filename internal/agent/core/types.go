package core

import (
	"context"
	"fmt"
	"time"
)

// Entity represents a fact fragment extracted from the user query
type Entity struct {
	Type  string `json:"type"` // ticker, date, metric, company, etc.
	Value string `json:"value"`
}

// Understanding represents the structured interpretation of a query
type Understanding struct {
	Intent   string   `json:"intent"`
	Entities []Entity `json:"entities"`
}

// SubTask represents one concrete unit of work within a planned task
type SubTask struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// PlannedTask represents a task produced by the planning stage
type PlannedTask struct {
	ID          int       `json:"id"`
	Description string    `json:"description"`
	SubTasks    []SubTask `json:"sub_tasks"`
}

// ExecutionPlan represents one iteration's hierarchical decomposition.
// Task and subtask ids are unique within a plan, not across iterations.
type ExecutionPlan struct {
	Tasks []PlannedTask `json:"tasks"`
}

// ToolCall represents a resolved, schema-checked tool invocation request
type ToolCall struct {
	Tool      string                 `json:"tool"`
	Args      map[string]interface{} `json:"args"`
	Reasoning string                 `json:"reasoning"`
}

// SubTaskResult represents the aggregate outcome of executing one task
type SubTaskResult struct {
	TaskID    int           `json:"task_id"`
	SubTaskID int           `json:"sub_task_id"`
	Success   bool          `json:"success"`
	Result    []CallResult  `json:"result"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// CallResult represents one tool call's outcome within a task
type CallResult struct {
	Call    ToolCall `json:"call"`
	Outcome Outcome  `json:"output"`
}

// ReflectionResult represents the completeness judgment for one iteration
type ReflectionResult struct {
	IsComplete         bool     `json:"is_complete"`
	Reasoning          string   `json:"reasoning"`
	MissingInfo        []string `json:"missing_info"`
	SuggestedNextSteps string   `json:"suggested_next_steps"`
}

// StructuredAnswer represents the terminal artifact of synthesis
type StructuredAnswer struct {
	Content    string                 `json:"content"`
	Sources    []string               `json:"sources"`
	Confidence float64                `json:"confidence,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// OrchestratorResult represents the externally visible result of one run
type OrchestratorResult struct {
	QueryID       string           `json:"query_id"`
	Answer        StructuredAnswer `json:"answer"`
	Sources       []string         `json:"sources"`
	Evidence      EvidenceEnvelope `json:"evidence_envelope"`
	Understanding Understanding    `json:"understanding"`
	Iterations    int              `json:"iterations"`
	Elapsed       time.Duration    `json:"elapsed"`
	CostEstimate  float64          `json:"cost_estimate"`
	TokensUsed    int64            `json:"tokens_used"`
}

// StageError identifies which reasoning stage failed and why. The
// orchestrator decides per stage whether to fail open or fail closed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Message is one role-tagged element of a completion request
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// LLMProvider interface defines the contract for completion providers
type LLMProvider interface {
	// Generate issues a completion request and returns the response text
	Generate(ctx context.Context, messages []Message, model string, options map[string]interface{}) (string, error)

	// GenerateWithTokens generates text and returns input/output token usage
	GenerateWithTokens(ctx context.Context, messages []Message, model string, options map[string]interface{}) (string, int64, int64, error)

	// GetAvailableModels returns available models
	GetAvailableModels() []string

	// GetModelInfo returns information about a specific model
	GetModelInfo(model string) (ModelInfo, error)

	// CalculateCost calculates the cost for a given number of tokens
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// ModelInfo contains information about an LLM model
type ModelInfo struct {
	Name            string  `json:"name"`
	Provider        string  `json:"provider"`
	MaxTokens       int     `json:"max_tokens"`
	CostPer1KInput  float64 `json:"cost_per_1k_input"`
	CostPer1KOutput float64 `json:"cost_per_1k_output"`
	Description     string  `json:"description"`
}

// ContextStore persists one record per tool invocation for post-hoc
// inspection. The executor only writes; retrieval lives with the store
// implementations.
type ContextStore interface {
	Save(ctx context.Context, rec ContextRecord) (string, error)
}

// ContextRecord is the payload persisted for each tool invocation
type ContextRecord struct {
	QueryID    string                 `json:"query_id"`
	TaskID     int                    `json:"task_id"`
	ToolName   string                 `json:"tool_name"`
	Args       map[string]interface{} `json:"args"`
	Result     interface{}            `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
	SourceURLs []string               `json:"source_urls,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// HistorySelector picks the prior conversation turns relevant to a
// query and renders them for planning and synthesis contexts.
type HistorySelector interface {
	Select(ctx context.Context, query string) (planningContext string, answerContext string, err error)
}
