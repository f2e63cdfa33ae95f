// Package notifier contains the core domain types shared by the poller and the mailer.
package notifier

import (
	"sort"
	"time"
)

// Post represents a single search result.
type Post struct {
	CreatedAt    time.Time `json:"created_at"`    // When the post was published
	ID           string    `json:"id"`            // Provider post ID (opaque)
	AuthorName   string    `json:"author_name"`   // Display name of the author
	AuthorHandle string    `json:"author_handle"` // Account handle without '@'
	Text         string    `json:"text"`          // Body text
	URL          string    `json:"url"`           // Permalink
}

// Record is the set of posts that have already been notified, keyed by post ID.
// Entries are only ever added.
type Record struct {
	Posts map[string]*Post `json:"posts"`
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{Posts: make(map[string]*Post)}
}

// Has reports whether the post ID is already recorded.
func (r *Record) Has(id string) bool {
	_, ok := r.Posts[id]
	return ok
}

// Add inserts the post if its ID is not yet recorded and reports whether it did.
func (r *Record) Add(post *Post) bool {
	if r.Posts == nil {
		r.Posts = make(map[string]*Post)
	}
	if r.Has(post.ID) {
		return false
	}
	r.Posts[post.ID] = post
	return true
}

// Len returns the number of recorded posts.
func (r *Record) Len() int {
	return len(r.Posts)
}

// IDs returns the recorded post IDs in sorted order.
func (r *Record) IDs() []string {
	ids := make([]string, 0, len(r.Posts))
	for id := range r.Posts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Recipient is an invitation email recipient.
type Recipient struct {
	Email string `yaml:"email" json:"email"`
	Name  string `yaml:"name" json:"name,omitempty"`
}
