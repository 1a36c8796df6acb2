package core

import (
	"strings"

	"github.com/google/uuid"
)

// EvidenceKind classifies where a provenance record came from
type EvidenceKind string

const (
	EvidenceKindURL      EvidenceKind = "url"
	EvidenceKindInternal EvidenceKind = "internal"
)

// Evidence represents one immutable provenance record. Lifetime spans
// the orchestration run.
type Evidence struct {
	ID          string       `json:"id"`
	Kind        EvidenceKind `json:"kind"`
	Label       string       `json:"label"`
	URL         string       `json:"url,omitempty"`
	Content     string       `json:"content,omitempty"`
	DerivedFrom []string     `json:"derived_from,omitempty"`
}

// NewURLEvidence builds a url-kind evidence record with a fresh id
func NewURLEvidence(label, url string) Evidence {
	return Evidence{ID: uuid.NewString(), Kind: EvidenceKindURL, Label: label, URL: url}
}

// NewInternalEvidence builds an internal-kind evidence record with a
// fresh id, content attached.
func NewInternalEvidence(label, content string, derivedFrom ...string) Evidence {
	return Evidence{ID: uuid.NewString(), Kind: EvidenceKindInternal, Label: label, Content: content, DerivedFrom: derivedFrom}
}

// EvidenceEnvelope accumulates provenance records across a run. The
// orchestrator owns exactly one per run.
type EvidenceEnvelope struct {
	SourceTool string     `json:"source_tool,omitempty"`
	Evidence   []Evidence `json:"evidence"`
}

// Merge appends items not already present by id. Re-merging the same
// record is a no-op.
func (e *EvidenceEnvelope) Merge(items ...Evidence) {
	if len(items) == 0 {
		return
	}
	seen := make(map[string]struct{}, len(e.Evidence))
	for _, ev := range e.Evidence {
		seen[ev.ID] = struct{}{}
	}
	for _, ev := range items {
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		seen[ev.ID] = struct{}{}
		e.Evidence = append(e.Evidence, ev)
	}
}

// MergeEnvelope merges another envelope's records into this one
func (e *EvidenceEnvelope) MergeEnvelope(other EvidenceEnvelope) {
	e.Merge(other.Evidence...)
}

// IDs returns the set of evidence ids currently held
func (e *EvidenceEnvelope) IDs() map[string]struct{} {
	out := make(map[string]struct{}, len(e.Evidence))
	for _, ev := range e.Evidence {
		out[ev.ID] = struct{}{}
	}
	return out
}

// CollectEvidence walks one task's call results and merges every
// successful outcome's evidence into the envelope. Outcomes are a
// tagged type, so this is a type switch rather than a field probe.
func (e *EvidenceEnvelope) CollectEvidence(results []CallResult) {
	for _, res := range results {
		switch out := res.Outcome.(type) {
		case Success:
			e.Merge(out.Evidence...)
		}
	}
}

// ValidateCitations partitions citation ids into those present in the
// envelope and those not. It is an integrity check after synthesis,
// not a gate; callers decide what to do with invalid ids.
func ValidateCitations(citations []string, env EvidenceEnvelope) (valid []string, invalid []string) {
	known := env.IDs()
	for _, c := range citations {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := known[c]; ok {
			valid = append(valid, c)
		} else {
			invalid = append(invalid, c)
		}
	}
	return valid, invalid
}
