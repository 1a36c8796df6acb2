package core

import (
	"context"
	"errors"
	"testing"
)

func TestUnderstandParsesIntentAndEntities(t *testing.T) {
	provider := &fakeProvider{respond: func(messages []Message, model string) (string, error) {
		return `{"intent": "compare NVDA valuation to the index", "entities": [{"type": "ticker", "value": "NVDA"}, {"type": "metric", "value": "P/E"}]}`, nil
	}}
	u := NewUnderstander(testConfig(), provider, testTelemetry())

	got, err := u.Understand(context.Background(), "What's NVDA's P/E vs S&P 500?", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Intent != "compare NVDA valuation to the index" {
		t.Fatalf("unexpected intent: %q", got.Intent)
	}
	if len(got.Entities) != 2 || got.Entities[0].Value != "NVDA" {
		t.Fatalf("unexpected entities: %+v", got.Entities)
	}
}

func TestUnderstandFailsOpen(t *testing.T) {
	provider := &fakeProvider{respond: func(messages []Message, model string) (string, error) {
		return "", errors.New("api down")
	}}
	u := NewUnderstander(testConfig(), provider, testTelemetry())

	query := "What's NVDA's P/E vs S&P 500?"
	got, err := u.Understand(context.Background(), query, "", nil)
	if err == nil {
		t.Fatalf("expected an error to be reported")
	}
	if got.Intent != query {
		t.Fatalf("fallback intent must equal the raw query, got %q", got.Intent)
	}
	if len(got.Entities) != 0 {
		t.Fatalf("fallback entities must be empty, got %+v", got.Entities)
	}
}

func TestUnderstandFailsOpenOnGarbage(t *testing.T) {
	provider := &fakeProvider{respond: func(messages []Message, model string) (string, error) {
		return "certainly! here is my analysis without any JSON", nil
	}}
	u := NewUnderstander(testConfig(), provider, testTelemetry())

	got, err := u.Understand(context.Background(), "q", "", nil)
	if err == nil {
		t.Fatalf("expected a parse error to be reported")
	}
	if got.Intent != "q" || len(got.Entities) != 0 {
		t.Fatalf("unexpected fallback: %+v", got)
	}
}
