package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"october-automation/pkg/notifier"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS seen_posts (
  id      TEXT PRIMARY KEY,
  payload TEXT NOT NULL,
  seen_at TEXT NOT NULL
);`

// SQLiteStore keeps one row per recorded post.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		logger.Warn("Failed to enable WAL journal", "error", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Load reads every recorded post.
func (s *SQLiteStore) Load(ctx context.Context) (*notifier.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM seen_posts`)
	if err != nil {
		return nil, fmt.Errorf("query seen posts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn("Failed to close rows", "error", closeErr)
		}
	}()

	rec := notifier.NewRecord()
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan seen post: %w", err)
		}
		var post notifier.Post
		if err := json.Unmarshal([]byte(payload), &post); err != nil {
			return nil, fmt.Errorf("unmarshal post %s: %w", id, err)
		}
		rec.Posts[id] = &post
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seen posts: %w", err)
	}

	s.logger.Debug("Record loaded from sqlite", "post_count", rec.Len())
	return rec, nil
}

// Save replaces the table contents with rec in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, rec *notifier.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM seen_posts`); err != nil {
		return fmt.Errorf("clear seen posts: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO seen_posts(id, payload, seen_at) VALUES(?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	now := time.Now().UTC().Format(time.RFC3339)
	for id, post := range rec.Posts {
		payload, err := json.Marshal(post)
		if err != nil {
			return fmt.Errorf("marshal post %s: %w", id, err)
		}
		if _, err := stmt.ExecContext(ctx, id, string(payload), now); err != nil {
			return fmt.Errorf("insert post %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("Record saved to sqlite", "post_count", rec.Len())
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
