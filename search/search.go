// Package search fetches recent posts matching a query from the Twitter search API.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"october-automation/pkg/notifier"
)

const (
	// DefaultBaseURL is the Twitter API host.
	DefaultBaseURL = "https://api.twitter.com"

	// DefaultPageSize is the number of posts requested per run.
	DefaultPageSize = 100

	minPageSize = 10 // API rejects max_results below 10
	maxPageSize = 100

	statusURLPrefix = "https://twitter.com/statuses/"
)

// HTTPStatusError indicates the search API answered with a non-200 status.
type HTTPStatusError struct {
	Body       string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("search API returned HTTP %d: %s", e.StatusCode, e.Body)
}

// IsHTTPStatusError checks if an error is an HTTPStatusError with the given code.
func IsHTTPStatusError(err error, code int) bool {
	var statusErr *HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}

// Client queries the recent-search endpoint.
type Client struct {
	client      *http.Client
	logger      *slog.Logger
	baseURL     string
	bearerToken string
}

// New creates a new search client. An empty baseURL selects DefaultBaseURL.
func New(client *http.Client, baseURL, bearerToken string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		client:      client,
		logger:      logger,
		baseURL:     baseURL,
		bearerToken: bearerToken,
	}
}

// Recent returns up to limit of the most recent posts matching query,
// in the order the provider returned them (newest first).
func (c *Client) Recent(ctx context.Context, query string, limit int) ([]*notifier.Post, error) {
	if query == "" {
		return nil, errors.New("empty search query")
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("max_results", strconv.Itoa(clampPageSize(limit)))
	params.Set("expansions", "author_id")
	params.Set("user.fields", "name,username")
	params.Set("tweet.fields", "created_at")
	reqURL := c.baseURL + "/2/tweets/search/recent?" + params.Encode()

	c.logger.Info("Search API request starting",
		"method", "GET",
		"endpoint", "tweets/search/recent",
		"query", query,
		"max_results", params.Get("max_results"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Info("Search API request completed",
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
		"content_length", len(body))

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	posts, err := parseResponse(body)
	if err != nil {
		return nil, err
	}

	if len(posts) > 0 {
		c.logger.Info("Search results parsed",
			"posts_found", len(posts),
			"newest_post_id", posts[0].ID,
			"oldest_post_id", posts[len(posts)-1].ID)
	} else {
		c.logger.Info("Search returned no posts", "query", query)
	}

	return posts, nil
}

func clampPageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n < minPageSize:
		return minPageSize
	case n > maxPageSize:
		return maxPageSize
	}
	return n
}

// parseResponse turns a recent-search JSON document into posts, resolving
// author IDs against the expanded user objects.
func parseResponse(body []byte) ([]*notifier.Post, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("search response is not valid JSON")
	}
	doc := gjson.ParseBytes(body)

	type author struct{ name, handle string }
	authors := make(map[string]author)
	doc.Get("includes.users").ForEach(func(_, u gjson.Result) bool {
		authors[u.Get("id").String()] = author{
			name:   u.Get("name").String(),
			handle: u.Get("username").String(),
		}
		return true
	})

	var posts []*notifier.Post
	doc.Get("data").ForEach(func(_, t gjson.Result) bool {
		id := t.Get("id").String()
		if id == "" {
			return true
		}
		a := authors[t.Get("author_id").String()]
		name := a.name
		if name == "" {
			name = a.handle
		}

		post := &notifier.Post{
			ID:           id,
			AuthorName:   name,
			AuthorHandle: a.handle,
			Text:         t.Get("text").String(),
			URL:          statusURLPrefix + id,
		}
		if ts := t.Get("created_at").String(); ts != "" {
			if created, err := time.Parse(time.RFC3339, ts); err == nil {
				post.CreatedAt = created
			}
		}
		posts = append(posts, post)
		return true
	})

	return posts, nil
}
