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
)

// Synthesizer produces the final answer from everything collected
type Synthesizer struct {
	config      *config.Config
	llmProvider LLMProvider
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

// NewSynthesizer creates a new synthesis stage
func NewSynthesizer(cfg *config.Config, llmProvider LLMProvider, tel *telemetry.Telemetry) *Synthesizer {
	return &Synthesizer{
		config:      cfg,
		llmProvider: llmProvider,
		telemetry:   tel,
		logger:      log.New(log.Writer(), "[SYNTH] ", log.LstdFlags),
	}
}

// CollectedData is one tool result flattened for synthesis
type CollectedData struct {
	ToolName   string
	Data       interface{}
	SourceURLs []string
}

// Synthesize writes the final answer. It never surfaces an error as
// such: on failure the answer's content explains what went wrong and
// the sources still reflect whatever was collected.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, collected []CollectedData, conversationContext string, stats *RunStats) (StructuredAnswer, error) {
	startTime := time.Now()
	sources := flattenSources(collected)

	model := s.config.LLM.Routing.Synthesis
	if model == "" {
		model = s.config.LLM.Routing.Fallback
	}

	messages := []Message{
		{Role: "system", Content: synthesisSystemPrompt},
		{Role: "user", Content: s.buildPrompt(query, collected, conversationContext)},
	}
	response, inTok, outTok, err := s.llmProvider.GenerateWithTokens(ctx, messages, model, map[string]interface{}{
		"temperature": 0.2,
		"max_tokens":  1600,
	})
	cost := s.llmProvider.CalculateCost(inTok, outTok, model)
	stats.Add(inTok, outTok, cost, model)
	s.telemetry.RecordStageEvent(telemetry.StageEvent{
		Stage: "synthesis", Model: model, Duration: time.Since(startTime),
		Success: err == nil, InputTokens: inTok, OutputTokens: outTok, Cost: cost,
	})
	if err != nil {
		return StructuredAnswer{
			Content:  fmt.Sprintf("I gathered research data but could not synthesize an answer: %v", err),
			Sources:  sources,
			Metadata: map[string]interface{}{"synthesis_error": err.Error()},
		}, &StageError{Stage: "synthesis", Err: err}
	}

	s.logger.Printf("Synthesis completed in %v with %d sources", time.Since(startTime), len(sources))
	return StructuredAnswer{
		Content:  strings.TrimSpace(response),
		Sources:  sources,
		Metadata: map[string]interface{}{"model": model},
	}, nil
}

func flattenSources(collected []CollectedData) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range collected {
		for _, u := range c.SourceURLs {
			if u == "" {
				continue
			}
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}

const synthesisSystemPrompt = `You write final research answers. Rules:
1. Lead with the key finding in the first sentence.
2. Cite specific numbers from the data, never round them away.
3. End with a "Sources:" section listing only the sources you actually used.
4. If the data is insufficient, say what is missing instead of guessing.`

func (s *Synthesizer) buildPrompt(query string, collected []CollectedData, conversationContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "QUERY: %s\n", query)
	if conversationContext != "" {
		fmt.Fprintf(&b, "\nCONVERSATION CONTEXT:\n%s\n", conversationContext)
	}
	b.WriteString("\nCOLLECTED DATA:\n")
	if len(collected) == 0 {
		b.WriteString("(no data was collected)\n")
	}
	for _, c := range collected {
		data, _ := json.Marshal(c.Data)
		fmt.Fprintf(&b, "--- %s ---\n%s\n", c.ToolName, truncate(string(data), 4000))
		if len(c.SourceURLs) > 0 {
			fmt.Fprintf(&b, "sources: %s\n", strings.Join(c.SourceURLs, ", "))
		}
	}
	return b.String()
}
