package tools

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fathom-research/fathom/config"
	"github.com/fathom-research/fathom/internal/agent/core"
)

const serperEndpoint = "https://google.serper.dev/search"

// SearchResult is one organic hit returned by the search backend.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearch queries the Serper API for current web results.
type WebSearch struct {
	apiKey   string
	endpoint string
	http     *core.HTTPClient
	logger   *log.Logger
}

func NewWebSearch(cfg config.ToolsConfig, logger *log.Logger) *WebSearch {
	if logger == nil {
		logger = log.New(os.Stdout, "[SEARCH] ", log.LstdFlags)
	}
	return &WebSearch{
		apiKey:   cfg.SerperAPIKey,
		endpoint: serperEndpoint,
		http:     core.NewHTTPClient(15*time.Second, 2, 300*time.Millisecond),
		logger:   logger,
	}
}

func (t *WebSearch) Name() string { return "web_search" }

func (t *WebSearch) Description() string {
	return "Search the web for current information. Returns titles, links and snippets for the top organic results."
}

func (t *WebSearch) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "search query",
			},
			"num_results": map[string]interface{}{
				"type":        "integer",
				"description": "how many results to return (1-10)",
				"minimum":     1,
				"maximum":     10,
			},
		},
		"required": []interface{}{"query"},
	}
}

func (t *WebSearch) Execute(ctx context.Context, args map[string]interface{}) core.Outcome {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return core.Fail(fmt.Errorf("query is required"))
	}
	k := 5
	if n, ok := args["num_results"].(float64); ok && n > 0 {
		k = int(n)
	}
	if t.apiKey == "" {
		return core.Fail(fmt.Errorf("serper API key not configured"))
	}

	// https://serper.dev/ docs
	payload := map[string]interface{}{"q": query, "num": k}
	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	headers := map[string]string{"X-API-KEY": t.apiKey}
	if err := t.http.DoJSON(ctx, http.MethodPost, t.endpoint, headers, payload, &raw); err != nil {
		return core.Fail(fmt.Errorf("serper search: %w", err))
	}

	results := make([]SearchResult, 0, k)
	var urls []string
	var evidence []core.Evidence
	for i, item := range raw.Organic {
		if i >= k {
			break
		}
		results = append(results, SearchResult{Title: item.Title, URL: item.Link, Snippet: item.Snippet})
		urls = append(urls, item.Link)
		ev := core.NewURLEvidence(item.Title, item.Link)
		ev.Content = item.Snippet
		evidence = append(evidence, ev)
	}
	t.logger.Printf("web_search %q returned %d results", query, len(results))
	return core.Success{
		Data:       map[string]interface{}{"results": results},
		SourceURLs: urls,
		Evidence:   evidence,
	}
}
