package contextstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/fathom-research/fathom/internal/agent/core"
)

// Index maintains a full-text index over saved records so earlier
// findings can be recalled without another network round trip.
type Index struct {
	bleve bleve.Index
	mu    sync.RWMutex
	meta  map[string]core.ContextRecord
}

type indexedDoc struct {
	QueryID  string `json:"query_id"`
	ToolName string `json:"tool_name"`
	Body     string `json:"body"`
}

// NewIndex opens (or creates) a bleve index at path. An empty path
// yields an in-memory index.
func NewIndex(path string) (*Index, error) {
	var idx bleve.Index
	var err error
	switch {
	case path == "":
		idx, err = bleve.NewMemOnly(bleve.NewIndexMapping())
	default:
		if _, statErr := os.Stat(path); statErr == nil {
			idx, err = bleve.Open(path)
		} else {
			idx, err = bleve.New(path, bleve.NewIndexMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return &Index{bleve: idx, meta: make(map[string]core.ContextRecord)}, nil
}

func (ix *Index) Add(pointer string, rec core.ContextRecord) error {
	body := rec.Error
	if rec.Result != nil {
		if data, err := json.Marshal(rec.Result); err == nil {
			body = string(data)
		}
	}
	doc := indexedDoc{QueryID: rec.QueryID, ToolName: rec.ToolName, Body: body}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.meta[pointer] = rec
	return ix.bleve.Index(pointer, doc)
}

// Hit is one search match with its backing record.
type Hit struct {
	Pointer string
	Record  core.ContextRecord
	Score   float64
}

func (ix *Index) Search(q string, k int) ([]Hit, error) {
	if k <= 0 {
		k = 5
	}
	query := bleve.NewQueryStringQuery(q)
	req := bleve.NewSearchRequestOptions(query, k, 0, false)
	res, err := ix.bleve.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []Hit
	for _, hit := range res.Hits {
		out = append(out, Hit{Pointer: hit.ID, Record: ix.meta[hit.ID], Score: hit.Score})
	}
	return out, nil
}

// IndexedStore writes through to the backend and feeds the full-text
// index on every save.
type IndexedStore struct {
	Store
	index *Index
}

func WithIndex(s Store, ix *Index) *IndexedStore {
	return &IndexedStore{Store: s, index: ix}
}

func (s *IndexedStore) Save(ctx context.Context, rec core.ContextRecord) (string, error) {
	ptr, err := s.Store.Save(ctx, rec)
	if err != nil {
		return "", err
	}
	if err := s.index.Add(ptr, rec); err != nil {
		return ptr, fmt.Errorf("index record: %w", err)
	}
	return ptr, nil
}
