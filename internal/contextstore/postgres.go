package contextstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/fathom-research/fathom/config"
	"github.com/fathom-research/fathom/internal/agent/core"
)

// PostgresStore persists records in a single context_records table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(cfg config.PostgresConfig) (*PostgresStore, error) {
	dsn := cfg.URL
	if dsn == "" {
		host := cfg.Host
		port := cfg.Port
		ssl := cfg.SSLMode
		if host == "" {
			host = "localhost"
		}
		if port == "" {
			port = "5432"
		}
		if ssl == "" {
			ssl = "disable"
		}
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", cfg.User, cfg.Password, host, port, cfg.DBName, ssl)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	ps := &PostgresStore{db: db}
	if err := ps.ensureSchema(); err != nil {
		return nil, err
	}
	return ps, nil
}

func (s *PostgresStore) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS context_records (
    pointer TEXT PRIMARY KEY,
    query_id TEXT NOT NULL,
    task_id INT NOT NULL,
    tool_name TEXT NOT NULL,
    args JSONB,
    result JSONB,
    error TEXT,
    source_urls JSONB,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS context_records_query_idx ON context_records (query_id, created_at);
`)
	return err
}

func (s *PostgresStore) Save(ctx context.Context, rec core.ContextRecord) (string, error) {
	ptr, err := PointerFor(rec)
	if err != nil {
		return "", fmt.Errorf("compute pointer: %w", err)
	}
	args, _ := json.Marshal(rec.Args)
	result, _ := json.Marshal(rec.Result)
	urls, _ := json.Marshal(rec.SourceURLs)
	_, err = s.db.ExecContext(ctx, `
INSERT INTO context_records (pointer, query_id, task_id, tool_name, args, result, error, source_urls, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (pointer) DO NOTHING;
`, ptr, rec.QueryID, rec.TaskID, rec.ToolName, args, result, rec.Error, urls, rec.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert record: %w", err)
	}
	return ptr, nil
}

func (s *PostgresStore) Load(ctx context.Context, pointerID string) (core.ContextRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT query_id, task_id, tool_name, args, result, error, source_urls, created_at
FROM context_records WHERE pointer = $1`, pointerID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ContextRecord{}, ErrNotFound
	}
	return rec, err
}

func (s *PostgresStore) List(ctx context.Context, queryID string) ([]core.ContextRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT query_id, task_id, tool_name, args, result, error, source_urls, created_at
FROM context_records WHERE query_id = $1 ORDER BY created_at`, queryID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	var out []core.ContextRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (core.ContextRecord, error) {
	var rec core.ContextRecord
	var args, result, urls []byte
	var errText sql.NullString
	if err := row.Scan(&rec.QueryID, &rec.TaskID, &rec.ToolName, &args, &result, &errText, &urls, &rec.CreatedAt); err != nil {
		return core.ContextRecord{}, err
	}
	if len(args) > 0 {
		_ = json.Unmarshal(args, &rec.Args)
	}
	if len(result) > 0 {
		_ = json.Unmarshal(result, &rec.Result)
	}
	if len(urls) > 0 {
		_ = json.Unmarshal(urls, &rec.SourceURLs)
	}
	rec.Error = errText.String
	return rec, nil
}
