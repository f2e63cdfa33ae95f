package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"october-automation/pkg/notifier"
)

// RedisStore keeps the record in a single hash: field = post ID, value = JSON post.
type RedisStore struct {
	rdb    *redis.Client
	logger *slog.Logger
	key    string
}

// NewRedisStore creates a store on an existing client.
func NewRedisStore(rdb *redis.Client, key string, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		logger: logger,
		key:    key,
	}
}

// Load reads the hash. A missing key loads as an empty record.
func (s *RedisStore) Load(ctx context.Context) (*notifier.Record, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", s.key, err)
	}

	rec := notifier.NewRecord()
	for id, payload := range fields {
		var post notifier.Post
		if err := json.Unmarshal([]byte(payload), &post); err != nil {
			return nil, fmt.Errorf("unmarshal post %s: %w", id, err)
		}
		rec.Posts[id] = &post
	}

	s.logger.Debug("Record loaded from redis", "key", s.key, "post_count", rec.Len())
	return rec, nil
}

// Save replaces the hash with rec inside MULTI/EXEC.
func (s *RedisStore) Save(ctx context.Context, rec *notifier.Record) error {
	values := make(map[string]interface{}, rec.Len())
	for id, post := range rec.Posts {
		payload, err := json.Marshal(post)
		if err != nil {
			return fmt.Errorf("marshal post %s: %w", id, err)
		}
		values[id] = string(payload)
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.HSet(ctx, s.key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save record to redis: %w", err)
	}

	s.logger.Info("Record saved to redis", "key", s.key, "post_count", rec.Len())
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
