// Package poll runs the deduplicating search-to-chat poller.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"october-automation/pkg/notifier"
	"october-automation/search"
)

// Searcher fetches the most recent posts for a query.
type Searcher interface {
	Recent(ctx context.Context, query string, limit int) ([]*notifier.Post, error)
}

// Store interface for record persistence.
type Store interface {
	Load(ctx context.Context) (*notifier.Record, error)
	Save(ctx context.Context, rec *notifier.Record) error
}

// Notifier delivers one notification for a post.
type Notifier interface {
	Notify(ctx context.Context, post *notifier.Post) error
}

// Result summarizes one run.
type Result struct {
	Fetched  int `json:"fetched"`  // Posts returned by the search
	Notified int `json:"notified"` // New posts delivered to the notifier
	Seeded   int `json:"seeded"`   // New posts recorded without notifying
	Skipped  int `json:"skipped"`  // Posts already in the record
	Total    int `json:"total"`    // Record size after the run
}

// Monitor handles the poll logic.
type Monitor struct {
	searcher Searcher
	store    Store
	notifier Notifier
	logger   *slog.Logger
	pageSize int
	seed     bool
	dryRun   bool

	mu sync.Mutex // one run at a time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithPageSize sets how many posts are requested per run.
func WithPageSize(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.pageSize = n
		}
	}
}

// WithSeed makes runs against an empty record store every new post without
// notifying, so that enabling the poller does not replay the backlog.
func WithSeed(seed bool) Option {
	return func(m *Monitor) {
		m.seed = seed
	}
}

// WithDryRun leaves the stored record untouched, so posts previewed in a dry
// run are still delivered by the next real run.
func WithDryRun(dryRun bool) Option {
	return func(m *Monitor) {
		m.dryRun = dryRun
	}
}

// New creates a new poll monitor.
func New(searcher Searcher, store Store, n Notifier, logger *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		searcher: searcher,
		store:    store,
		notifier: n,
		logger:   logger,
		pageSize: search.DefaultPageSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run loads the record, notifies every post not yet recorded and saves the
// updated record in full.
//
// A search failure aborts the run without saving. A notify failure stops the
// run; posts notified before it are still saved so they are never re-sent.
func (m *Monitor) Run(ctx context.Context, query string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	startTime := time.Now()
	m.logger.Info("Starting poll run", "query", query, "page_size", m.pageSize)

	rec, err := m.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}

	posts, err := m.searcher.Recent(ctx, query, m.pageSize)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	res, runErr := m.process(ctx, rec, posts)
	res.Total = rec.Len()

	if m.dryRun {
		m.logger.Info("Dry run, record not saved",
			"query", query,
			"fetched", res.Fetched,
			"notified", res.Notified,
			"skipped", res.Skipped)
		return res, runErr
	}

	if runErr != nil {
		if res.Notified == 0 && res.Seeded == 0 {
			return res, runErr
		}
		m.logger.Warn("Poll run interrupted, saving posts notified so far",
			"notified", res.Notified,
			"error", runErr)
		if err := m.store.Save(ctx, rec); err != nil {
			return res, errors.Join(runErr, fmt.Errorf("save record: %w", err))
		}
		return res, runErr
	}

	if err := m.store.Save(ctx, rec); err != nil {
		return res, fmt.Errorf("save record: %w", err)
	}

	m.logger.Info("Poll run completed",
		"query", query,
		"fetched", res.Fetched,
		"notified", res.Notified,
		"seeded", res.Seeded,
		"skipped", res.Skipped,
		"total", res.Total,
		"duration_ms", time.Since(startTime).Milliseconds())

	return res, nil
}

// process walks posts in the order given and records every unseen one,
// notifying it first unless seeding.
func (m *Monitor) process(ctx context.Context, rec *notifier.Record, posts []*notifier.Post) (*Result, error) {
	res := &Result{Fetched: len(posts)}
	seed := m.seed && rec.Len() == 0
	if seed {
		m.logger.Info("Empty record in seed mode, recording posts without notifying", "posts", len(posts))
	}

	for i, post := range posts {
		if err := ctx.Err(); err != nil {
			m.logger.Info("Context cancelled, stopping poll run", "error", err)
			return res, err
		}

		if rec.Has(post.ID) {
			res.Skipped++
			m.logger.Debug("Skipping seen post", "index", i, "post_id", post.ID)
			continue
		}

		if seed {
			rec.Add(post)
			res.Seeded++
			continue
		}

		m.logger.Info("New post detected", "index", i, "post_id", post.ID, "author", post.AuthorName)
		if err := m.notifier.Notify(ctx, post); err != nil {
			return res, fmt.Errorf("notify post %s: %w", post.ID, err)
		}
		rec.Add(post)
		res.Notified++
	}

	return res, nil
}
