package contextstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/fathom-research/fathom/internal/agent/core"
)

// ErrNotFound is returned when no record exists for a pointer.
var ErrNotFound = errors.New("context record not found")

// Store persists one record per tool invocation. Save is the hot path
// used by the executor; List and Load serve inspection and recall.
type Store interface {
	core.ContextStore
	List(ctx context.Context, queryID string) ([]core.ContextRecord, error)
	Load(ctx context.Context, pointerID string) (core.ContextRecord, error)
}

// PointerFor returns a deterministic hash of the record's identifying
// fields. The result payload is excluded so the pointer is stable even
// for tools with nondeterministic output.
func PointerFor(rec core.ContextRecord) (string, error) {
	payload := map[string]interface{}{
		"query_id":   rec.QueryID,
		"task_id":    rec.TaskID,
		"tool_name":  rec.ToolName,
		"args":       rec.Args,
		"created_at": rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	normalized, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:]), nil
}
