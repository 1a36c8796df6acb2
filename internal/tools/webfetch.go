package tools

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"

	"github.com/fathom-research/fathom/config"
	"github.com/fathom-research/fathom/internal/agent/core"
)

// WebFetch renders a page in a headless browser and extracts the
// readable article text.
type WebFetch struct {
	timeout  time.Duration
	maxChars int
	logger   *log.Logger

	// fetch is swapped out in tests to avoid spawning a browser
	fetch func(ctx context.Context, url string) (string, error)
}

func NewWebFetch(cfg config.ToolsConfig, logger *log.Logger) *WebFetch {
	if logger == nil {
		logger = log.New(os.Stdout, "[FETCH] ", log.LstdFlags)
	}
	timeout := cfg.FetchTimeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	maxChars := cfg.FetchMaxChars
	if maxChars == 0 {
		maxChars = 12000
	}
	return &WebFetch{timeout: timeout, maxChars: maxChars, logger: logger, fetch: fetchHTML}
}

func (t *WebFetch) Name() string { return "web_fetch" }

func (t *WebFetch) Description() string {
	return "Fetch a web page and extract its readable article text. Use after web_search to read a promising result in full."
}

func (t *WebFetch) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "absolute URL of the page to fetch",
			},
		},
		"required": []interface{}{"url"},
	}
}

func (t *WebFetch) Execute(ctx context.Context, args map[string]interface{}) core.Outcome {
	rawURL, _ := args["url"].(string)
	if strings.TrimSpace(rawURL) == "" {
		return core.Fail(fmt.Errorf("url is required"))
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" {
		return core.Fail(fmt.Errorf("invalid url %q", rawURL))
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	t0 := time.Now()

	html, err := t.fetch(ctx, rawURL)
	if err != nil {
		return core.Fail(fmt.Errorf("render %s: %w", rawURL, err))
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return core.Fail(fmt.Errorf("extract %s: %w", rawURL, err))
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) > t.maxChars {
		text = text[:t.maxChars]
	}
	sum := sha1.Sum([]byte(html))

	title := strings.TrimSpace(article.Title)
	label := title
	if label == "" {
		label = rawURL
	}
	ev := core.NewURLEvidence(label, rawURL)
	ev.Content = snippet(text)

	t.logger.Printf("web_fetch %s extracted %d chars in %dms", rawURL, len(text), time.Since(t0)/time.Millisecond)
	return core.Success{
		Data: map[string]interface{}{
			"url":       rawURL,
			"title":     title,
			"byline":    strings.TrimSpace(article.Byline),
			"text":      text,
			"html_hash": hex.EncodeToString(sum[:]),
			"render_ms": int(time.Since(t0) / time.Millisecond),
		},
		SourceURLs: []string{rawURL},
		Evidence:   []core.Evidence{ev},
	}
}

func fetchHTML(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("fathom-research/1.0 (+https://github.com/fathom-research/fathom)"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

func snippet(s string) string {
	if len(s) <= 300 {
		return s
	}
	return s[:300] + "…"
}
