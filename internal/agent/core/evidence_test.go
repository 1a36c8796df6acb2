package core

import (
	"testing"
)

func TestEnvelopeMergeDeduplicatesByID(t *testing.T) {
	var env EvidenceEnvelope
	ev := Evidence{ID: "ev-1", Kind: EvidenceKindURL, Label: "a", URL: "https://a"}
	env.Merge(ev)
	env.Merge(ev)
	if len(env.Evidence) != 1 {
		t.Fatalf("expected 1 evidence record after duplicate merge, got %d", len(env.Evidence))
	}

	env.Merge(Evidence{ID: "ev-2", Kind: EvidenceKindInternal, Label: "b"})
	if len(env.Evidence) != 2 {
		t.Fatalf("expected 2 evidence records, got %d", len(env.Evidence))
	}
}

func TestEnvelopeMergeAssignsMissingIDs(t *testing.T) {
	var env EvidenceEnvelope
	env.Merge(Evidence{Kind: EvidenceKindURL, Label: "no id"})
	if len(env.Evidence) != 1 {
		t.Fatalf("expected 1 evidence record, got %d", len(env.Evidence))
	}
	if env.Evidence[0].ID == "" {
		t.Fatalf("expected a generated id")
	}
}

func TestMergeEnvelope(t *testing.T) {
	var a, b EvidenceEnvelope
	a.Merge(Evidence{ID: "ev-1", Label: "a"})
	b.Merge(Evidence{ID: "ev-1", Label: "a"}, Evidence{ID: "ev-2", Label: "b"})
	a.MergeEnvelope(b)
	if len(a.Evidence) != 2 {
		t.Fatalf("expected 2 evidence records after envelope merge, got %d", len(a.Evidence))
	}
}

func TestCollectEvidenceFromOutcomes(t *testing.T) {
	var env EvidenceEnvelope
	results := []CallResult{
		{Call: ToolCall{Tool: "a"}, Outcome: Success{Evidence: []Evidence{{ID: "ev-1", Label: "x"}}}},
		{Call: ToolCall{Tool: "b"}, Outcome: Failure{Err: "boom"}},
		{Call: ToolCall{Tool: "c"}, Outcome: Success{Evidence: []Evidence{{ID: "ev-1", Label: "x"}, {ID: "ev-2", Label: "y"}}}},
	}
	env.CollectEvidence(results)
	if len(env.Evidence) != 2 {
		t.Fatalf("expected 2 deduplicated evidence records, got %d", len(env.Evidence))
	}
}

func TestValidateCitations(t *testing.T) {
	var env EvidenceEnvelope
	env.Merge(Evidence{ID: "ev-1"}, Evidence{ID: "ev-2"})

	valid, invalid := ValidateCitations([]string{"ev-1", "ev-3", "ev-2"}, env)
	if len(valid) != 2 || valid[0] != "ev-1" || valid[1] != "ev-2" {
		t.Fatalf("unexpected valid citations: %v", valid)
	}
	if len(invalid) != 1 || invalid[0] != "ev-3" {
		t.Fatalf("unexpected invalid citations: %v", invalid)
	}
}

func TestValidateCitationsEmptyEnvelope(t *testing.T) {
	valid, invalid := ValidateCitations([]string{"ev-1", "ev-2"}, EvidenceEnvelope{})
	if len(valid) != 0 {
		t.Fatalf("expected no valid citations over empty evidence, got %v", valid)
	}
	if len(invalid) != 2 {
		t.Fatalf("expected all citations invalid, got %v", invalid)
	}
}
