package contextstore

import (
	"io"
	"log"
	"testing"

	"github.com/fathom-research/fathom/config"
)

func TestFactoryFallsBackToFileStore(t *testing.T) {
	cfg := config.StorageConfig{FileDir: t.TempDir()}
	store, err := NewStore(cfg, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, ok := store.(*FileStore); !ok {
		t.Fatalf("expected *FileStore, got %T", store)
	}
}
