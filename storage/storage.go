// Package storage handles persistence of the seen-post record.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"

	"october-automation/pkg/notifier"
)

// Store persists the record as a single JSON document, either in a local
// file or in a Cloud Storage object.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
	object    string
}

// New creates a new storage handler. When localPath is set the bucket is ignored.
func New(client *storage.Client, bucket, object, localPath string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
		object:    object,
	}
}

// Load reads the record. A record that was never saved loads as empty.
func (s *Store) Load(ctx context.Context) (*notifier.Record, error) {
	var data []byte

	// Local filesystem storage
	if s.localPath != "" {
		var err error
		data, err = os.ReadFile(s.localPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				s.logger.Info("No record file yet, starting empty", "path", s.localPath)
				return notifier.NewRecord(), nil
			}
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
	} else {
		// Cloud Storage with retry logic for reliability
		var readData []byte
		notFound := false
		err := retry.Do(
			func() error {
				r, openErr := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
				if openErr != nil {
					// Don't retry on "not found" errors
					if errors.Is(openErr, storage.ErrObjectNotExist) {
						notFound = true
						return nil
					}
					return fmt.Errorf("open storage reader: %w", openErr)
				}
				defer func() {
					if closeErr := r.Close(); closeErr != nil {
						s.logger.Warn("Failed to close storage reader", "error", closeErr)
					}
				}()

				var readErr error
				readData, readErr = io.ReadAll(r)
				if readErr != nil {
					return fmt.Errorf("read from storage: %w", readErr)
				}
				return nil
			},
			retry.Attempts(3),
			retry.Delay(time.Second),
			retry.MaxDelay(2*time.Minute),
			retry.MaxJitter(10*time.Second),
			retry.Context(ctx),
			retry.OnRetry(func(n uint, retryErr error) {
				s.logger.Info("Retrying load operation after error", "attempt", n, "object", s.object, "error", retryErr)
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("load after retries: %w", err)
		}
		if notFound {
			s.logger.Info("No record object yet, starting empty", "bucket", s.bucket, "object", s.object)
			return notifier.NewRecord(), nil
		}
		data = readData
	}

	rec := notifier.NewRecord()
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	if rec.Posts == nil {
		rec.Posts = make(map[string]*notifier.Post)
	}

	s.logger.Debug("Record loaded", "post_count", rec.Len())
	return rec, nil
}

// Save overwrites the stored record with rec.
func (s *Store) Save(ctx context.Context, rec *notifier.Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	// Local filesystem storage
	if s.localPath != "" {
		if err := writeFileAtomic(s.localPath, data); err != nil {
			return fmt.Errorf("write to local storage: %w", err)
		}
		s.logger.Info("Record saved to local storage", "path", s.localPath, "post_count", rec.Len())
		return nil
	}

	// Cloud Storage with retry logic for reliability
	err = retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying save operation after error", "attempt", n, "object", s.object, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}

	s.logger.Info("Record saved", "bucket", s.bucket, "object", s.object, "post_count", rec.Len())
	return nil
}

// Close releases the Cloud Storage client, if any.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// writeFileAtomic replaces path with data via a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
