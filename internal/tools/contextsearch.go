package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fathom-research/fathom/internal/agent/core"
	"github.com/fathom-research/fathom/internal/contextstore"
)

// ContextSearch recalls findings already collected earlier in the
// session, so the planner can reuse them instead of fetching again.
type ContextSearch struct {
	index  *contextstore.Index
	logger *log.Logger
}

func NewContextSearch(ix *contextstore.Index, logger *log.Logger) *ContextSearch {
	if logger == nil {
		logger = log.New(os.Stdout, "[RECALL] ", log.LstdFlags)
	}
	return &ContextSearch{index: ix, logger: logger}
}

func (t *ContextSearch) Name() string { return "context_search" }

func (t *ContextSearch) Description() string {
	return "Search the results of tool calls already made in this session. Prefer this over repeating a web search for information that was likely gathered before."
}

func (t *ContextSearch) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "full-text query over stored results",
			},
			"max_results": map[string]interface{}{
				"type":        "integer",
				"description": "how many records to return",
				"minimum":     1,
				"maximum":     10,
			},
		},
		"required": []interface{}{"query"},
	}
}

func (t *ContextSearch) Execute(ctx context.Context, args map[string]interface{}) core.Outcome {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return core.Fail(fmt.Errorf("query is required"))
	}
	k := 5
	if n, ok := args["max_results"].(float64); ok && n > 0 {
		k = int(n)
	}

	hits, err := t.index.Search(query, k)
	if err != nil {
		return core.Fail(fmt.Errorf("context search: %w", err))
	}

	type match struct {
		Tool   string      `json:"tool"`
		TaskID int         `json:"task_id"`
		Result interface{} `json:"result"`
		Score  float64     `json:"score"`
	}
	results := make([]match, 0, len(hits))
	var urls []string
	seen := make(map[string]struct{})
	var evidence []core.Evidence
	for _, hit := range hits {
		rec := hit.Record
		results = append(results, match{Tool: rec.ToolName, TaskID: rec.TaskID, Result: rec.Result, Score: hit.Score})
		for _, u := range rec.SourceURLs {
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
		}
		evidence = append(evidence, core.NewInternalEvidence(
			fmt.Sprintf("prior %s result", rec.ToolName),
			renderResult(rec.Result),
			hit.Pointer,
		))
	}
	t.logger.Printf("context_search %q matched %d records", query, len(results))
	return core.Success{
		Data:       map[string]interface{}{"results": results},
		SourceURLs: urls,
		Evidence:   evidence,
	}
}

func renderResult(v interface{}) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return snippet(string(data))
}
