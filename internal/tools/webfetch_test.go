package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathom-research/fathom/config"
	"github.com/fathom-research/fathom/internal/agent/core"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head><title>Quarterly Results</title></head>
<body>
<article>
<h1>Quarterly Results</h1>
<p>Revenue grew twelve percent year over year, driven by the cloud segment.
Operating margin expanded to twenty eight percent while headcount stayed flat.
Management guided to continued double digit growth for the remainder of the year.</p>
<p>The board approved an additional share repurchase program of five billion
dollars, and the dividend was raised by ten percent effective next quarter.</p>
</article>
</body>
</html>`

func TestWebFetchExtractsArticle(t *testing.T) {
	wf := NewWebFetch(config.ToolsConfig{FetchTimeout: 5 * time.Second}, discard())
	wf.fetch = func(ctx context.Context, url string) (string, error) {
		return articleHTML, nil
	}

	outcome := wf.Execute(context.Background(), map[string]interface{}{"url": "https://example.com/earnings"})
	success, ok := outcome.(core.Success)
	require.True(t, ok, "expected success, got %#v", outcome)

	data := success.Data.(map[string]interface{})
	assert.Equal(t, "Quarterly Results", data["title"])
	assert.Contains(t, data["text"].(string), "twelve percent")
	assert.NotEmpty(t, data["html_hash"])
	assert.Equal(t, []string{"https://example.com/earnings"}, success.SourceURLs)

	require.Len(t, success.Evidence, 1)
	assert.Equal(t, core.EvidenceKindURL, success.Evidence[0].Kind)
	assert.Equal(t, "https://example.com/earnings", success.Evidence[0].URL)
}

func TestWebFetchTruncatesLongText(t *testing.T) {
	long := strings.Repeat("lorem ipsum dolor sit amet ", 200)
	html := "<html><head><title>Long</title></head><body><article><p>" + long + "</p></article></body></html>"

	wf := NewWebFetch(config.ToolsConfig{FetchMaxChars: 100}, discard())
	wf.fetch = func(ctx context.Context, url string) (string, error) { return html, nil }

	outcome := wf.Execute(context.Background(), map[string]interface{}{"url": "https://example.com/long"})
	success, ok := outcome.(core.Success)
	require.True(t, ok)
	assert.LessOrEqual(t, len(success.Data.(map[string]interface{})["text"].(string)), 100)
}

func TestWebFetchFailures(t *testing.T) {
	wf := NewWebFetch(config.ToolsConfig{}, discard())

	outcome := wf.Execute(context.Background(), map[string]interface{}{"url": ""})
	failure, ok := outcome.(core.Failure)
	require.True(t, ok)
	assert.Contains(t, failure.Err, "url is required")

	outcome = wf.Execute(context.Background(), map[string]interface{}{"url": "not a url"})
	_, ok = outcome.(core.Failure)
	require.True(t, ok)

	wf.fetch = func(ctx context.Context, url string) (string, error) {
		return "", errors.New("browser crashed")
	}
	outcome = wf.Execute(context.Background(), map[string]interface{}{"url": "https://example.com"})
	failure, ok = outcome.(core.Failure)
	require.True(t, ok)
	assert.Contains(t, failure.Err, "browser crashed")
}
