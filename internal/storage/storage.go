// ABOUTME: Storage interface and types for the feed/item cache
// ABOUTME: Defines the durable feed store and item store contract and the backend factory

package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/harper/skim/internal/models"
)

// ErrNotFound is returned when a feed or item has never been cached.
var ErrNotFound = errors.New("not found")

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// FeedStats represents statistics for a single cached feed.
type FeedStats struct {
	FeedURL       string
	FeedTitle     string
	LastFetchedAt *time.Time
	ErrorCount    int
	LastError     *string
	ItemCount     int
	UnreadCount   int
}

// Store defines the durable feed and item tables. Feeds are keyed by URL,
// items by (feed URL, item identity).
type Store interface {
	// Close closes the store and releases resources.
	Close() error

	// Feed Store

	// GetFeed returns the cached feed metadata (without items), or
	// ErrNotFound if the feed was never cached.
	GetFeed(url string) (*models.Feed, error)

	// PutFeed upserts feed metadata.
	PutFeed(feed *models.Feed) error

	// ListFeedURLs returns the URL of every cached feed.
	ListFeedURLs() ([]string, error)

	// DeleteFeed removes a feed and all of its items. Deleting a feed
	// that is not cached is not an error.
	DeleteFeed(url string) error

	// RecordFetchError stores the last fetch error and bumps the error count.
	RecordFetchError(url, msg string) error

	// Item Store

	// GetItems returns a feed's items, most recently published first and
	// in first-seen order among equal dates.
	GetItems(feedURL string) ([]models.Item, error)

	// UpsertItem inserts an unseen item as unread, or refreshes the content
	// of a known item. For a known item the stored unread flag is kept unless
	// the incoming item is already read, so a refresh never resurrects a read
	// item while a read-mark still goes through. Reports whether a row was
	// created. The feed must already be stored.
	UpsertItem(feedURL string, item *models.Item) (bool, error)

	// SetUnread writes the unread flag of one item unconditionally.
	SetUnread(feedURL, identity string, unread bool) error

	// Statistics and maintenance

	// FeedStats returns item and unread counts for every cached feed.
	FeedStats() ([]FeedStats, error)

	// Search finds items whose title or body match query.
	Search(query string, limit int) ([]models.Item, error)

	// Compact reclaims space.
	Compact() error
}

// Open creates a Store for the named backend rooted at path. For sqlite,
// path is the database file; for badger, it is a directory.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", BackendSQLite:
		return NewSQLiteStore(path)
	case BackendBadger:
		return NewBadgerStore(path)
	default:
		return nil, fmt.Errorf("unknown backend: %q", backend)
	}
}

// DefaultPath returns the cache location for a backend inside dataDir.
func DefaultPath(backend, dataDir string) string {
	if backend == BackendBadger {
		return filepath.Join(dataDir, "cache.badger")
	}
	return filepath.Join(dataDir, "cache.db")
}

// mergeUnread is the one merge rule for the unread flag of an item that
// is already cached.
func mergeUnread(stored, incoming bool) bool {
	return stored && incoming
}

// searchTerms splits a user query into lowercase words. Punctuation and
// query operators are treated as separators, so every backend accepts any
// input and matches items containing all of the words.
func searchTerms(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
