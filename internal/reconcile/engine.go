// ABOUTME: Reconciliation engine between in-memory feeds and the durable cache
// ABOUTME: Internalize loads, Externalize merges, Cleanup purges feeds no longer subscribed

package reconcile

import (
	"errors"
	"fmt"
	"time"

	"github.com/harper/skim/internal/identity"
	"github.com/harper/skim/internal/models"
	"github.com/harper/skim/internal/storage"
)

// ErrNoURL is returned for a feed value without a URL.
var ErrNoURL = errors.New("feed has no url")

// Engine maps feeds onto a Store. It is the only writer of the store and
// is not safe for concurrent use; callers serialize access.
type Engine struct {
	store storage.Store
}

// New returns an Engine over store.
func New(store storage.Store) *Engine {
	return &Engine{store: store}
}

// Store returns the underlying store for read-only queries.
func (e *Engine) Store() storage.Store {
	return e.store
}

// Internalize fills feed in place from the cache. A feed that was never
// cached is left in the never-fetched state: no title, no items, no error.
func (e *Engine) Internalize(feed *models.Feed) error {
	url := identity.Feed(feed.URL)
	if url == "" {
		return ErrNoURL
	}

	stored, err := e.store.GetFeed(url)
	if errors.Is(err, storage.ErrNotFound) {
		feed.URL = url
		feed.Items = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("load feed %s: %w", url, err)
	}

	items, err := e.store.GetItems(url)
	if err != nil {
		return fmt.Errorf("load items for %s: %w", url, err)
	}

	*feed = *stored
	feed.Items = items
	return nil
}

// Externalize merges feed and its items into the cache and returns the
// number of items that were not cached before. New items are stored
// unread; known items keep their unread flag unless the incoming item is
// already read. An empty incoming title keeps the cached one.
func (e *Engine) Externalize(feed *models.Feed) (int, error) {
	url := identity.Feed(feed.URL)
	if url == "" {
		return 0, ErrNoURL
	}

	meta := *feed
	meta.URL = url
	meta.Items = nil
	if meta.Title == "" {
		if stored, err := e.store.GetFeed(url); err == nil {
			meta.Title = stored.Title
		}
	}
	if err := e.store.PutFeed(&meta); err != nil {
		return 0, fmt.Errorf("save feed %s: %w", url, err)
	}

	created := 0
	for i := range feed.Items {
		isNew, err := e.upsert(url, &feed.Items[i])
		if err != nil {
			return created, err
		}
		if isNew {
			created++
		}
	}
	return created, nil
}

// ExternalizeItem merges a single item of a cached feed, typically right
// after it was opened and marked read.
func (e *Engine) ExternalizeItem(feedURL string, item *models.Item) error {
	url := identity.Feed(feedURL)
	if url == "" {
		return ErrNoURL
	}
	_, err := e.upsert(url, item)
	return err
}

func (e *Engine) upsert(feedURL string, item *models.Item) (bool, error) {
	if item.Identity == "" {
		item.Identity = identity.Item(item.GUID, item.Link, item.Title, item.PublishedAt)
	}
	item.FeedURL = feedURL
	created, err := e.store.UpsertItem(feedURL, item)
	if err != nil {
		return false, fmt.Errorf("save item %s: %w", item.Identity, err)
	}
	return created, nil
}

// Cleanup deletes every cached feed whose URL is not among configured and
// returns the removed URLs.
func (e *Engine) Cleanup(configured []models.Feed) ([]string, error) {
	keep := make(map[string]bool, len(configured))
	for _, feed := range configured {
		keep[identity.Feed(feed.URL)] = true
	}

	urls, err := e.store.ListFeedURLs()
	if err != nil {
		return nil, fmt.Errorf("list cached feeds: %w", err)
	}

	var removed []string
	for _, url := range urls {
		if keep[url] {
			continue
		}
		if err := e.store.DeleteFeed(url); err != nil {
			return removed, fmt.Errorf("delete feed %s: %w", url, err)
		}
		removed = append(removed, url)
	}
	return removed, nil
}

// RecordFailure stores a fetch or parse failure on a feed. A feed that
// failed before it was ever cached gets a metadata row with no items.
func (e *Engine) RecordFailure(feedURL string, cause error) error {
	if cause == nil {
		return nil
	}
	url := identity.Feed(feedURL)
	msg := cause.Error()

	_, err := e.store.GetFeed(url)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		feed := models.NewFeed(url)
		feed.LastError = &msg
		feed.ErrorCount = 1
		err = e.store.PutFeed(feed)
	case err == nil:
		err = e.store.RecordFetchError(url, msg)
	}
	if err != nil {
		return fmt.Errorf("record failure for %s: %w", url, err)
	}
	return nil
}

// RecordNotModified marks a cached feed as successfully checked at t
// without touching its items.
func (e *Engine) RecordNotModified(feedURL string, t time.Time) error {
	url := identity.Feed(feedURL)
	stored, err := e.store.GetFeed(url)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load feed %s: %w", url, err)
	}
	stored.LastFetchedAt = &t
	stored.LastError = nil
	stored.ErrorCount = 0
	if err := e.store.PutFeed(stored); err != nil {
		return fmt.Errorf("save feed %s: %w", url, err)
	}
	return nil
}

// SetUnread writes an item's unread flag. Unlike Externalize this can turn
// a read item back to unread.
func (e *Engine) SetUnread(feedURL, itemID string, unread bool) error {
	if err := e.store.SetUnread(identity.Feed(feedURL), itemID, unread); err != nil {
		return fmt.Errorf("set unread on %s: %w", itemID, err)
	}
	return nil
}
