// ABOUTME: Data migration between skim storage backends
// ABOUTME: Copies feeds and items (with read state) from source to destination store

package storage

import (
	"errors"
	"fmt"
	"os"
)

// MigrateSummary holds counts of migrated entities.
type MigrateSummary struct {
	Feeds int
	Items int
	Read  int
}

// MigrateData copies all data from src to dst storage. Feeds are copied
// first, then their items in display order, then read marks. The
// destination should be empty before calling this function.
func MigrateData(src, dst Store) (*MigrateSummary, error) {
	summary := &MigrateSummary{}

	urls, err := src.ListFeedURLs()
	if err != nil {
		return nil, fmt.Errorf("list source feeds: %w", err)
	}

	for _, url := range urls {
		feed, err := src.GetFeed(url)
		if err != nil {
			return nil, fmt.Errorf("get feed %q: %w", url, err)
		}
		if err := dst.PutFeed(feed); err != nil {
			return nil, fmt.Errorf("create feed %q: %w", url, err)
		}
		summary.Feeds++

		if err := migrateFeedItems(src, dst, url, summary); err != nil {
			return nil, err
		}
	}

	return summary, nil
}

// migrateFeedItems copies all items for a single feed.
func migrateFeedItems(src, dst Store, feedURL string, summary *MigrateSummary) error {
	items, err := src.GetItems(feedURL)
	if err != nil {
		return fmt.Errorf("list items for feed %s: %w", feedURL, err)
	}

	for i := range items {
		item := &items[i]
		if _, err := dst.UpsertItem(feedURL, item); err != nil {
			return fmt.Errorf("create item %s in feed %s: %w", item.Identity, feedURL, err)
		}
		summary.Items++

		if !item.Unread {
			if err := dst.SetUnread(feedURL, item.Identity, false); err != nil {
				return fmt.Errorf("mark item %s read: %w", item.Identity, err)
			}
			summary.Read++
		}
	}
	return nil
}

// IsDirNonEmpty checks whether a directory exists and contains any files or subdirectories.
// Returns false if the directory does not exist or is empty.
func IsDirNonEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read directory %q: %w", path, err)
	}
	return len(entries) > 0, nil
}

// HasData reports whether a backend already has something at path: a
// non-empty directory for badger, an existing file for sqlite.
func HasData(backend, path string) (bool, error) {
	if backend == BackendBadger {
		return IsDirNonEmpty(path)
	}
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %q: %w", path, err)
	}
	return true, nil
}
