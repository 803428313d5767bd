// ABOUTME: Badger key-value storage implementation for a single-directory cache
// ABOUTME: Feeds and items are JSON records under feed/ and item/ key prefixes

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/harper/skim/internal/models"
)

const (
	feedPrefix = "feed/"
	itemPrefix = "item/"
	keySep     = "\x00"
)

// BadgerStore implements the Store interface on a badger database.
type BadgerStore struct {
	db *badger.DB

	mu  sync.Mutex
	seq int64
}

// itemRecord is the stored form of an item. Seq preserves insertion order,
// which breaks ties between items without a publish time.
type itemRecord struct {
	models.Item
	Seq int64 `json:"seq"`
}

// NewBadgerStore opens (creating if needed) a badger cache in dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	s := &BadgerStore{db: db}
	if err := s.loadSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) loadSeq() error {
	return s.db.View(func(txn *badger.Txn) error {
		return iteratePrefix(txn, []byte(itemPrefix), func(val []byte) error {
			var rec itemRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("decode item: %w", err)
			}
			if rec.Seq > s.seq {
				s.seq = rec.Seq
			}
			return nil
		})
	})
}

// nextSeq returns a strictly increasing sequence number.
func (s *BadgerStore) nextSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := time.Now().UnixNano()
	if next <= s.seq {
		next = s.seq + 1
	}
	s.seq = next
	return next
}

func feedKey(url string) []byte {
	return []byte(feedPrefix + url)
}

func itemKeyPrefix(feedURL string) []byte {
	return []byte(itemPrefix + feedURL + keySep)
}

func itemKey(feedURL, identity string) []byte {
	return append(itemKeyPrefix(feedURL), identity...)
}

func iteratePrefix(txn *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read value: %w", err)
		}
		if err := fn(val); err != nil {
			return err
		}
	}
	return nil
}

func getJSON(txn *badger.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return fmt.Errorf("read value: %w", err)
	}
	return json.Unmarshal(val, v)
}

func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	return txn.Set(key, data)
}

// Feed Store

// GetFeed returns cached feed metadata by URL.
func (s *BadgerStore) GetFeed(url string) (*models.Feed, error) {
	var feed models.Feed
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, feedKey(url), &feed)
	})
	if err != nil {
		return nil, err
	}
	feed.Items = nil
	return &feed, nil
}

// PutFeed upserts feed metadata. CreatedAt is kept from the first write.
func (s *BadgerStore) PutFeed(feed *models.Feed) error {
	meta := *feed
	meta.Items = nil

	err := s.db.Update(func(txn *badger.Txn) error {
		var existing models.Feed
		err := getJSON(txn, feedKey(feed.URL), &existing)
		switch {
		case err == nil:
			meta.CreatedAt = existing.CreatedAt
		case errors.Is(err, ErrNotFound):
			if meta.CreatedAt.IsZero() {
				meta.CreatedAt = time.Now().UTC()
			}
		default:
			return err
		}
		return setJSON(txn, feedKey(feed.URL), &meta)
	})
	if err != nil {
		return fmt.Errorf("upsert feed: %w", err)
	}
	return nil
}

func (s *BadgerStore) listFeeds() ([]models.Feed, error) {
	var feeds []models.Feed
	err := s.db.View(func(txn *badger.Txn) error {
		return iteratePrefix(txn, []byte(feedPrefix), func(val []byte) error {
			var feed models.Feed
			if err := json.Unmarshal(val, &feed); err != nil {
				return fmt.Errorf("decode feed: %w", err)
			}
			feeds = append(feeds, feed)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}
	sort.SliceStable(feeds, func(i, j int) bool {
		if !feeds[i].CreatedAt.Equal(feeds[j].CreatedAt) {
			return feeds[i].CreatedAt.Before(feeds[j].CreatedAt)
		}
		return feeds[i].URL < feeds[j].URL
	})
	return feeds, nil
}

// ListFeedURLs returns every cached feed URL.
func (s *BadgerStore) ListFeedURLs() ([]string, error) {
	feeds, err := s.listFeeds()
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(feeds))
	for _, feed := range feeds {
		urls = append(urls, feed.URL)
	}
	return urls, nil
}

// DeleteFeed removes a feed and all its items.
func (s *BadgerStore) DeleteFeed(url string) error {
	prefix := itemKeyPrefix(url)
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
	}
	if err := wb.Delete(feedKey(url)); err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	return nil
}

// RecordFetchError stores a fetch error for a cached feed.
func (s *BadgerStore) RecordFetchError(url, msg string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var feed models.Feed
		if err := getJSON(txn, feedKey(url), &feed); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		feed.LastError = &msg
		feed.ErrorCount++
		return setJSON(txn, feedKey(url), &feed)
	})
	if err != nil {
		return fmt.Errorf("update feed error: %w", err)
	}
	return nil
}

// Item Store

func (s *BadgerStore) itemRecords(prefix []byte) ([]itemRecord, error) {
	var records []itemRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return iteratePrefix(txn, prefix, func(val []byte) error {
			var rec itemRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("decode item: %w", err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	return records, nil
}

// GetItems returns the items of a feed in display order.
func (s *BadgerStore) GetItems(feedURL string) ([]models.Item, error) {
	records, err := s.itemRecords(itemKeyPrefix(feedURL))
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		switch {
		case a.PublishedAt == nil && b.PublishedAt == nil:
			return a.Seq < b.Seq
		case a.PublishedAt == nil:
			return false
		case b.PublishedAt == nil:
			return true
		case !a.PublishedAt.Equal(*b.PublishedAt):
			return a.PublishedAt.After(*b.PublishedAt)
		default:
			return a.Seq < b.Seq
		}
	})

	items := make([]models.Item, 0, len(records))
	for _, rec := range records {
		items = append(items, rec.Item)
	}
	return items, nil
}

// UpsertItem merges one item into the cache.
func (s *BadgerStore) UpsertItem(feedURL string, item *models.Item) (bool, error) {
	created := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := itemKey(feedURL, item.Identity)
		now := time.Now().UTC()

		var existing itemRecord
		err := getJSON(txn, key, &existing)
		if errors.Is(err, ErrNotFound) {
			created = true
			rec := itemRecord{Item: *item, Seq: s.nextSeq()}
			rec.FeedURL = feedURL
			rec.Unread = true
			rec.ReadAt = nil
			rec.CreatedAt = now
			rec.UpdatedAt = now
			return setJSON(txn, key, &rec)
		}
		if err != nil {
			return err
		}

		rec := itemRecord{Item: *item, Seq: existing.Seq}
		rec.FeedURL = feedURL
		rec.CreatedAt = existing.CreatedAt
		rec.UpdatedAt = existing.UpdatedAt
		if !existing.ContentEqual(item) {
			rec.UpdatedAt = now
		}
		rec.Unread = mergeUnread(existing.Unread, item.Unread)
		rec.ReadAt = existing.ReadAt
		if existing.Unread && !rec.Unread {
			rec.ReadAt = item.ReadAt
			if rec.ReadAt == nil {
				rec.ReadAt = &now
			}
		}
		return setJSON(txn, key, &rec)
	})
	if err != nil {
		return false, fmt.Errorf("upsert item: %w", err)
	}
	return created, nil
}

// SetUnread writes the unread flag of one item.
func (s *BadgerStore) SetUnread(feedURL, identity string, unread bool) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := itemKey(feedURL, identity)
		var rec itemRecord
		if err := getJSON(txn, key, &rec); err != nil {
			return err
		}
		if unread {
			rec.MarkUnread()
		} else {
			rec.MarkRead()
		}
		return setJSON(txn, key, &rec)
	})
}

// Statistics

// FeedStats computes item counts for every cached feed.
func (s *BadgerStore) FeedStats() ([]FeedStats, error) {
	feeds, err := s.listFeeds()
	if err != nil {
		return nil, err
	}

	stats := make([]FeedStats, 0, len(feeds))
	for _, feed := range feeds {
		records, err := s.itemRecords(itemKeyPrefix(feed.URL))
		if err != nil {
			return nil, err
		}
		row := FeedStats{
			FeedURL:       feed.URL,
			FeedTitle:     feed.Title,
			LastFetchedAt: feed.LastFetchedAt,
			ErrorCount:    feed.ErrorCount,
			LastError:     feed.LastError,
			ItemCount:     len(records),
		}
		for _, rec := range records {
			if rec.Unread {
				row.UnreadCount++
			}
		}
		stats = append(stats, row)
	}
	return stats, nil
}

// Maintenance

// Compact runs value log garbage collection until nothing is left to rewrite.
func (s *BadgerStore) Compact() error {
	for {
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("value log gc: %w", err)
		}
	}
}

// Search returns items whose title or body contains every query term,
// newest first. Matching is case-insensitive.
func (s *BadgerStore) Search(query string, limit int) ([]models.Item, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return []models.Item{}, nil
	}

	records, err := s.itemRecords([]byte(itemPrefix))
	if err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}

	items := []models.Item{}
	for _, rec := range records {
		text := strings.ToLower(rec.Title + "\n" + rec.Body)
		matched := true
		for _, term := range terms {
			if !strings.Contains(text, term) {
				matched = false
				break
			}
		}
		if matched {
			items = append(items, rec.Item)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].PublishedAt, items[j].PublishedAt
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Ensure BadgerStore implements Store interface
var _ Store = (*BadgerStore)(nil)
