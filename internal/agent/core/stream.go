package core

import (
	"context"
)

// Event is one streamed progress update. The event order follows the
// orchestration state machine and is never reordered or batched.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	EventThinking      = "thinking"
	EventUnderstanding = "understanding"
	EventPlan          = "plan"
	EventToolCall      = "tool_call"
	EventToolResult    = "tool_result"
	EventAnswer        = "answer"
	EventSources       = "sources"
	EventEvidence      = "evidence"
)

// ToolCallEvent is the payload for tool_call events
type ToolCallEvent struct {
	TaskID int      `json:"task_id"`
	Call   ToolCall `json:"call"`
}

// ToolResultEvent is the payload for tool_result events
type ToolResultEvent struct {
	TaskID int        `json:"task_id"`
	Result CallResult `json:"result"`
}

// ProcessStream runs the same state machine as Process but delivers
// progress events on the channel as each transition happens. The
// channel is closed when the run finishes.
func (o *Orchestrator) ProcessStream(ctx context.Context, query string, events chan<- Event) (OrchestratorResult, error) {
	defer close(events)
	emit := func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}
	return o.run(ctx, query, emit)
}

// callObserver adapts the executor's per-call hooks onto the event
// stream. A nil emit produces a nil observer and the executor stays
// silent.
type callObserver struct {
	emit func(Event)
}

func newCallObserver(emit func(Event)) CallObserver {
	if emit == nil {
		return nil
	}
	return &callObserver{emit: emit}
}

func (c *callObserver) OnToolCall(taskID int, call ToolCall) {
	c.emit(Event{Type: EventToolCall, Data: ToolCallEvent{TaskID: taskID, Call: call}})
}

func (c *callObserver) OnToolResult(taskID int, result CallResult) {
	c.emit(Event{Type: EventToolResult, Data: ToolResultEvent{TaskID: taskID, Result: result}})
}
