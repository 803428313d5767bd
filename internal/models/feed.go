// ABOUTME: Feed model representing a subscribed RSS/Atom source and its cached items
// ABOUTME: Carries fetch metadata for conditional requests and the per-feed error state

package models

import (
	"time"
)

// Feed represents one subscribed source. URL is the feed's identity.
type Feed struct {
	URL           string     // Canonical feed address, unique across the cache
	Title         string     // Human-readable name, empty until the first successful fetch
	Items         []Item     // Display order, most recent first
	ETag          *string    // HTTP ETag header for conditional requests
	LastModified  *string    // HTTP Last-Modified header for conditional requests
	LastFetchedAt *time.Time // Timestamp of last successful fetch
	LastError     *string    // Last fetch/parse error message (if any)
	ErrorCount    int        // Consecutive error count
	CreatedAt     time.Time  // First time the feed was cached
}

// NewFeed creates a Feed reference holding only its URL, the shape
// handed to the reconciliation engine before internalizing.
func NewFeed(url string) *Feed {
	return &Feed{
		URL: url,
	}
}

// SetCacheHeaders updates the feed's HTTP caching headers for conditional requests
func (f *Feed) SetCacheHeaders(etag, lastModified string) {
	if etag != "" {
		f.ETag = &etag
	}
	if lastModified != "" {
		f.LastModified = &lastModified
	}
}

// DisplayTitle returns the title, falling back to the URL for never-fetched feeds.
func (f *Feed) DisplayTitle() string {
	if f.Title != "" {
		return f.Title
	}
	return f.URL
}

// UnreadCount returns the number of unread items.
func (f *Feed) UnreadCount() int {
	n := 0
	for i := range f.Items {
		if f.Items[i].Unread {
			n++
		}
	}
	return n
}

// Clone returns a deep copy. The controller hands clones to the view so
// the view never shares mutable state with the cache.
func (f *Feed) Clone() Feed {
	c := *f
	c.ETag = cloneString(f.ETag)
	c.LastModified = cloneString(f.LastModified)
	c.LastError = cloneString(f.LastError)
	c.LastFetchedAt = cloneTime(f.LastFetchedAt)
	if f.Items != nil {
		c.Items = make([]Item, len(f.Items))
		for i := range f.Items {
			c.Items[i] = f.Items[i].Clone()
		}
	}
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
