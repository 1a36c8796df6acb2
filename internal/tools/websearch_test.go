package tools

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathom-research/fathom/config"
	"github.com/fathom-research/fathom/internal/agent/core"
)

func discard() *log.Logger { return log.New(io.Discard, "", 0) }

func TestWebSearchExecute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "fed rate decision", payload["q"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"organic": []map[string]interface{}{
				{"title": "Fed holds rates", "link": "https://example.com/fed", "snippet": "rates unchanged"},
				{"title": "Market reaction", "link": "https://example.com/markets", "snippet": "stocks rallied"},
			},
		})
	}))
	defer srv.Close()

	ws := NewWebSearch(config.ToolsConfig{SerperAPIKey: "test-key"}, discard())
	ws.endpoint = srv.URL

	outcome := ws.Execute(context.Background(), map[string]interface{}{"query": "fed rate decision"})
	success, ok := outcome.(core.Success)
	require.True(t, ok, "expected a success outcome, got %#v", outcome)

	data := success.Data.(map[string]interface{})
	results := data["results"].([]SearchResult)
	require.Len(t, results, 2)
	assert.Equal(t, "Fed holds rates", results[0].Title)
	assert.Equal(t, []string{"https://example.com/fed", "https://example.com/markets"}, success.SourceURLs)

	require.Len(t, success.Evidence, 2)
	assert.Equal(t, core.EvidenceKindURL, success.Evidence[0].Kind)
	assert.Equal(t, "https://example.com/fed", success.Evidence[0].URL)
	assert.NotEmpty(t, success.Evidence[0].ID)
}

func TestWebSearchCapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		organic := make([]map[string]interface{}, 8)
		for i := range organic {
			organic[i] = map[string]interface{}{"title": "t", "link": "https://example.com", "snippet": "s"}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"organic": organic})
	}))
	defer srv.Close()

	ws := NewWebSearch(config.ToolsConfig{SerperAPIKey: "test-key"}, discard())
	ws.endpoint = srv.URL

	outcome := ws.Execute(context.Background(), map[string]interface{}{
		"query":       "anything",
		"num_results": float64(3),
	})
	success, ok := outcome.(core.Success)
	require.True(t, ok)
	results := success.Data.(map[string]interface{})["results"].([]SearchResult)
	assert.Len(t, results, 3)
}

func TestWebSearchFailures(t *testing.T) {
	ws := NewWebSearch(config.ToolsConfig{SerperAPIKey: "test-key"}, discard())

	outcome := ws.Execute(context.Background(), map[string]interface{}{"query": "  "})
	failure, ok := outcome.(core.Failure)
	require.True(t, ok)
	assert.Contains(t, failure.Err, "query is required")

	unkeyed := NewWebSearch(config.ToolsConfig{}, discard())
	outcome = unkeyed.Execute(context.Background(), map[string]interface{}{"query": "anything"})
	failure, ok = outcome.(core.Failure)
	require.True(t, ok)
	assert.Contains(t, failure.Err, "not configured")
}
