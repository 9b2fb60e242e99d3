// Package cache provides RecordStore implementations for raw deviation content.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
	"github.com/arturoeanton/go-deviation-rag/internal/port"
)

const keyPrefix = "deviation:"

// redisValue is the stored JSON shape, shared with the ingestion side.
type redisValue struct {
	ProblemDescription string `json:"problem_description"`
	RootCause          string `json:"root_cause"`
}

// RedisRecordStore keeps deviation records as JSON strings under deviation:{id}.
type RedisRecordStore struct {
	client *redis.Client
}

// NewRedisRecordStore connects using a redis:// or rediss:// URL.
func NewRedisRecordStore(url string) (*RedisRecordStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	slog.Info("Opening Redis connection", "address", opts.Addr, "db", opts.DB)
	return NewRedisRecordStoreFromClient(redis.NewClient(opts)), nil
}

// NewRedisRecordStoreFromClient wraps an existing client.
func NewRedisRecordStoreFromClient(client *redis.Client) *RedisRecordStore {
	return &RedisRecordStore{client: client}
}

// Ping tests connectivity to Redis.
func (s *RedisRecordStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisRecordStore) Close() error {
	return s.client.Close()
}

// Get fetches and decodes a record. redis.Nil maps to port.ErrRecordNotFound.
func (s *RedisRecordStore) Get(ctx context.Context, id string) (*domain.DeviationRecord, error) {
	raw, err := s.client.Get(ctx, keyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, port.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", id, err)
	}

	var v redisValue
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return &domain.DeviationRecord{
		ID:                 id,
		ProblemDescription: v.ProblemDescription,
		RootCause:          v.RootCause,
	}, nil
}

// Put stores a record without expiry.
func (s *RedisRecordStore) Put(ctx context.Context, record *domain.DeviationRecord) error {
	raw, err := json.Marshal(redisValue{
		ProblemDescription: record.ProblemDescription,
		RootCause:          record.RootCause,
	})
	if err != nil {
		return fmt.Errorf("encode record %s: %w", record.ID, err)
	}
	if err := s.client.Set(ctx, keyPrefix+record.ID, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", record.ID, err)
	}
	return nil
}
