package core

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fathom-research/fathom/config"
	"github.com/fathom-research/fathom/internal/agent/telemetry"
	"github.com/fathom-research/fathom/internal/jsonutil"
)

// Understander extracts structured intent and entities from a raw query
type Understander struct {
	config      *config.Config
	llmProvider LLMProvider
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

// NewUnderstander creates a new understanding stage
func NewUnderstander(cfg *config.Config, llmProvider LLMProvider, tel *telemetry.Telemetry) *Understander {
	return &Understander{
		config:      cfg,
		llmProvider: llmProvider,
		telemetry:   tel,
		logger:      log.New(log.Writer(), "[UNDERSTAND] ", log.LstdFlags),
	}
}

// FallbackUnderstanding is the safe default when understanding fails:
// the raw query stands in for the intent and no entities are claimed.
func FallbackUnderstanding(query string) Understanding {
	return Understanding{Intent: query, Entities: []Entity{}}
}

// Understand extracts intent and entities from the query. On failure it
// returns the fallback value alongside the error; the caller decides
// whether to log and proceed (it always should, understanding is an
// optimization, not a correctness gate).
func (u *Understander) Understand(ctx context.Context, query string, conversationContext string, stats *RunStats) (Understanding, error) {
	startTime := time.Now()
	model := u.config.LLM.Routing.Understanding
	if model == "" {
		model = u.config.LLM.Routing.Fallback
	}

	messages := []Message{
		{Role: "system", Content: understandingSystemPrompt},
		{Role: "user", Content: u.buildPrompt(query, conversationContext)},
	}
	response, inTok, outTok, err := u.llmProvider.GenerateWithTokens(ctx, messages, model, map[string]interface{}{
		"temperature": 0.1,
		"max_tokens":  600,
		"json":        true,
	})
	cost := u.llmProvider.CalculateCost(inTok, outTok, model)
	stats.Add(inTok, outTok, cost, model)
	u.telemetry.RecordStageEvent(telemetry.StageEvent{
		Stage: "understanding", Model: model, Duration: time.Since(startTime),
		Success: err == nil, InputTokens: inTok, OutputTokens: outTok, Cost: cost,
	})
	if err != nil {
		return FallbackUnderstanding(query), &StageError{Stage: "understanding", Err: err}
	}

	var parsed Understanding
	if err := jsonutil.DecodeObject(response, &parsed); err != nil {
		return FallbackUnderstanding(query), &StageError{Stage: "understanding", Err: err}
	}
	if parsed.Intent == "" {
		parsed.Intent = query
	}
	if parsed.Entities == nil {
		parsed.Entities = []Entity{}
	}
	u.logger.Printf("Understood query: intent=%q entities=%d in %v", parsed.Intent, len(parsed.Entities), time.Since(startTime))
	return parsed, nil
}

const understandingSystemPrompt = `You extract structured intent from research questions. Respond ONLY with a JSON object:
{"intent": "one sentence describing what the user wants", "entities": [{"type": "ticker|company|metric|date|topic|other", "value": "string"}]}`

func (u *Understander) buildPrompt(query, conversationContext string) string {
	if conversationContext != "" {
		return fmt.Sprintf("CONVERSATION CONTEXT:\n%s\n\nQUERY: %s", conversationContext, query)
	}
	return fmt.Sprintf("QUERY: %s", query)
}
