package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"

	"october-automation/pkg/notifier"
)

// Config selects and configures a record store.
//
// Driver values:
//   - "file" (default): JSON document at Path
//   - "gcs": JSON document at Bucket/Object
//   - "sqlite": SQLite database at Path
//   - "redis": hash RedisKey on RedisAddr
type Config struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	Bucket        string `yaml:"bucket"`
	Object        string `yaml:"object"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisKey      string `yaml:"redis_key"`
	RedisDB       int    `yaml:"redis_db"`
}

// RecordStore loads and saves the whole record.
type RecordStore interface {
	Load(ctx context.Context) (*notifier.Record, error)
	Save(ctx context.Context, rec *notifier.Record) error
	Close() error
}

// Open initializes the configured store.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (RecordStore, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		if cfg.Path == "" {
			return nil, errors.New("storage path is required for file driver")
		}
		logger.Info("Using local record file", "path", cfg.Path)
		return New(nil, "", "", cfg.Path, logger), nil

	case "gcs":
		if cfg.Bucket == "" || cfg.Object == "" {
			return nil, errors.New("storage bucket and object are required for gcs driver")
		}
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		logger.Info("Using Cloud Storage record", "bucket", cfg.Bucket, "object", cfg.Object)
		return New(client, cfg.Bucket, cfg.Object, "", logger), nil

	case "sqlite", "sqlite3":
		st, err := OpenSQLite(ctx, cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Using sqlite record store", "path", cfg.Path)
		return st, nil

	case "redis":
		if cfg.RedisAddr == "" || cfg.RedisKey == "" {
			return nil, errors.New("redis address and key are required for redis driver")
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("Using redis record store", "addr", cfg.RedisAddr, "key", cfg.RedisKey)
		return NewRedisStore(rdb, cfg.RedisKey, logger), nil

	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}
