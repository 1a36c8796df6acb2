package contextstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fathom-research/fathom/config"
	"github.com/fathom-research/fathom/internal/agent/core"
)

const (
	redisRecordPrefix = "fathom:context:record:"
	redisQueryPrefix  = "fathom:context:query:"
)

// RedisStore keeps each record under its pointer key and an ordered
// list of pointers per query.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Save(ctx context.Context, rec core.ContextRecord) (string, error) {
	ptr, err := PointerFor(rec)
	if err != nil {
		return "", fmt.Errorf("compute pointer: %w", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, redisRecordPrefix+ptr, data, 0)
	pipe.RPush(ctx, redisQueryPrefix+rec.QueryID, ptr)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("persist record: %w", err)
	}
	return ptr, nil
}

func (s *RedisStore) Load(ctx context.Context, pointerID string) (core.ContextRecord, error) {
	data, err := s.rdb.Get(ctx, redisRecordPrefix+pointerID).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.ContextRecord{}, ErrNotFound
	}
	if err != nil {
		return core.ContextRecord{}, fmt.Errorf("load record: %w", err)
	}
	var rec core.ContextRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return core.ContextRecord{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) List(ctx context.Context, queryID string) ([]core.ContextRecord, error) {
	ptrs, err := s.rdb.LRange(ctx, redisQueryPrefix+queryID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list pointers: %w", err)
	}
	out := make([]core.ContextRecord, 0, len(ptrs))
	for _, ptr := range ptrs {
		rec, err := s.Load(ctx, ptr)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }
