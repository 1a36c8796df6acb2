package contextstore

import (
	"log"
	"os"

	"github.com/fathom-research/fathom/config"
)

// NewStore picks the first usable backend. Postgres is preferred when
// configured, then Redis, then the local file directory which always
// works.
func NewStore(cfg config.StorageConfig, logger *log.Logger) (Store, error) {
	if logger == nil {
		logger = log.New(os.Stdout, "[STORE] ", log.LstdFlags)
	}
	if cfg.Postgres.URL != "" || cfg.Postgres.Host != "" || cfg.Postgres.DBName != "" {
		ps, err := NewPostgresStore(cfg.Postgres)
		if err == nil {
			return ps, nil
		}
		logger.Printf("Warning: Postgres context store init failed: %v, falling back to Redis", err)
	}
	if cfg.Redis.Addr != "" {
		rs, err := NewRedisStore(cfg.Redis)
		if err == nil {
			return rs, nil
		}
		logger.Printf("Warning: Redis context store init failed: %v, falling back to file store", err)
	}
	return NewFileStore(cfg.FileDir)
}
