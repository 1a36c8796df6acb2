package contextstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fathom-research/fathom/internal/agent/core"
)

// FileStore keeps one JSON file per record under a local directory.
// It is the zero-configuration backend used when neither Postgres nor
// Redis is reachable.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "runs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Save(ctx context.Context, rec core.ContextRecord) (string, error) {
	ptr, err := PointerFor(rec)
	if err != nil {
		return "", fmt.Errorf("compute pointer: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(filepath.Join(s.dir, ptr+".json"), data, 0o644); err != nil {
		return "", fmt.Errorf("write record: %w", err)
	}
	return ptr, nil
}

func (s *FileStore) Load(ctx context.Context, pointerID string) (core.ContextRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, pointerID+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return core.ContextRecord{}, ErrNotFound
	}
	if err != nil {
		return core.ContextRecord{}, fmt.Errorf("read record: %w", err)
	}
	var rec core.ContextRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return core.ContextRecord{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func (s *FileStore) List(ctx context.Context, queryID string) ([]core.ContextRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read store dir: %w", err)
	}
	var out []core.ContextRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		rec, err := s.Load(ctx, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		if rec.QueryID == queryID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
