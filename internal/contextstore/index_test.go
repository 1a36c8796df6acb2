package contextstore

import (
	"context"
	"testing"
	"time"

	"github.com/fathom-research/fathom/internal/agent/core"
)

func TestIndexSearchFindsRelevantRecord(t *testing.T) {
	ix, err := NewIndex("")
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}

	records := []core.ContextRecord{
		{
			QueryID: "q1", TaskID: 1, ToolName: "web_search",
			Result:    map[string]interface{}{"snippet": "quarterly revenue grew twelve percent year over year"},
			CreatedAt: time.Now(),
		},
		{
			QueryID: "q1", TaskID: 2, ToolName: "web_fetch",
			Result:    map[string]interface{}{"text": "the weather in Lisbon was sunny all week"},
			CreatedAt: time.Now(),
		},
	}
	for i, rec := range records {
		if err := ix.Add(string(rune('a'+i)), rec); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	hits, err := ix.Search("quarterly revenue", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatalf("expected at least one hit")
	}
	if hits[0].Record.ToolName != "web_search" {
		t.Fatalf("expected web_search record first, got %+v", hits[0].Record)
	}
}

func TestIndexedStoreFeedsIndexOnSave(t *testing.T) {
	backend, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ix, err := NewIndex("")
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	store := WithIndex(backend, ix)

	rec := sampleRecord("q1", 1, "web_search")
	rec.Result = map[string]interface{}{"snippet": "central bank held interest rates steady"}
	ptr, err := store.Save(context.Background(), rec)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	hits, err := ix.Search("interest rates", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Pointer != ptr {
		t.Fatalf("expected the saved record to be indexed, got %+v", hits)
	}

	// the backend still has the record too
	if _, err := backend.Load(context.Background(), ptr); err != nil {
		t.Fatalf("backend Load: %v", err)
	}
}
