// ABOUTME: SQLite storage implementation using modernc.org/sqlite (pure Go)
// ABOUTME: Feed and item tables keyed by URL and identity, with FTS5 full-text search

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harper/skim/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the cache database at dbPath
// and applies pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Use 0700 (owner only) for privacy - reading habits are personal data
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One process, one handle: a single connection keeps pragmas and
	// transactions on the same session.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Feed Store

const feedColumns = `url, title, etag, last_modified, last_fetched_at, last_error, error_count, created_at`

// GetFeed returns cached feed metadata by URL.
func (s *SQLiteStore) GetFeed(url string) (*models.Feed, error) {
	row := s.db.QueryRow(`SELECT `+feedColumns+` FROM feeds WHERE url = ?`, url)
	feed, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return feed, err
}

// PutFeed upserts feed metadata. created_at is only written on insert.
func (s *SQLiteStore) PutFeed(feed *models.Feed) error {
	createdAt := feed.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	query := `
		INSERT INTO feeds (` + feedColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title = excluded.title,
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			last_fetched_at = excluded.last_fetched_at,
			last_error = excluded.last_error,
			error_count = excluded.error_count
	`
	_, err := s.db.Exec(query,
		feed.URL, feed.Title, feed.ETag, feed.LastModified,
		timeToSQL(feed.LastFetchedAt), feed.LastError, feed.ErrorCount, createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert feed: %w", err)
	}
	return nil
}

// ListFeedURLs returns every cached feed URL.
func (s *SQLiteStore) ListFeedURLs() ([]string, error) {
	rows, err := s.db.Query(`SELECT url FROM feeds ORDER BY created_at, url`)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan feed url: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feeds: %w", err)
	}
	return urls, nil
}

// DeleteFeed removes a feed and all its items.
func (s *SQLiteStore) DeleteFeed(url string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete feed: %w", err)
	}
	defer tx.Rollback()

	// The cascade would do this too; deleting explicitly keeps the
	// FTS triggers firing per row either way.
	if _, err := tx.Exec(`DELETE FROM items WHERE feed_url = ?`, url); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM feeds WHERE url = ?`, url); err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	return tx.Commit()
}

// RecordFetchError stores a fetch error for a cached feed. Feeds that were
// never cached have no row to update, which is not an error.
func (s *SQLiteStore) RecordFetchError(url, msg string) error {
	_, err := s.db.Exec(`UPDATE feeds SET last_error = ?, error_count = error_count + 1 WHERE url = ?`, msg, url)
	if err != nil {
		return fmt.Errorf("update feed error: %w", err)
	}
	return nil
}

// Item Store

const itemColumns = `feed_url, identity, guid, title, body, link, author, published_at, unread, read_at, created_at, updated_at`

// GetItems returns the items of a feed in display order.
func (s *SQLiteStore) GetItems(feedURL string) ([]models.Item, error) {
	rows, err := s.db.Query(`
		SELECT `+itemColumns+`
		FROM items WHERE feed_url = ?
		ORDER BY published_at IS NULL, published_at DESC, rowid ASC
	`, feedURL)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// UpsertItem merges one item into the cache.
func (s *SQLiteStore) UpsertItem(feedURL string, item *models.Item) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin upsert item: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanItem(tx.QueryRow(`SELECT `+itemColumns+` FROM items WHERE feed_url = ? AND identity = ?`,
		feedURL, item.Identity))
	now := time.Now().UTC()

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.Exec(`
			INSERT INTO items (`+itemColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, NULL, ?, ?)`,
			feedURL, item.Identity, item.GUID, item.Title, item.Body, item.Link, item.Author,
			timeToSQL(item.PublishedAt), now, now,
		)
		if err != nil {
			return false, fmt.Errorf("insert item: %w", err)
		}
		return true, tx.Commit()

	case err != nil:
		return false, err
	}

	unread := mergeUnread(existing.Unread, item.Unread)
	readAt := existing.ReadAt
	if existing.Unread && !unread {
		readAt = item.ReadAt
		if readAt == nil {
			readAt = &now
		}
	}
	updatedAt := existing.UpdatedAt
	if !existing.ContentEqual(item) {
		updatedAt = now
	}

	_, err = tx.Exec(`
		UPDATE items SET
			guid = ?, title = ?, body = ?, link = ?, author = ?, published_at = ?,
			unread = ?, read_at = ?, updated_at = ?
		WHERE feed_url = ? AND identity = ?`,
		item.GUID, item.Title, item.Body, item.Link, item.Author, timeToSQL(item.PublishedAt),
		boolToInt(unread), timeToSQL(readAt), updatedAt.UTC(),
		feedURL, item.Identity,
	)
	if err != nil {
		return false, fmt.Errorf("update item: %w", err)
	}
	return false, tx.Commit()
}

// SetUnread writes the unread flag of one item.
func (s *SQLiteStore) SetUnread(feedURL, identity string, unread bool) error {
	var readAt interface{}
	if !unread {
		readAt = time.Now().UTC()
	}
	result, err := s.db.Exec(`UPDATE items SET unread = ?, read_at = ? WHERE feed_url = ? AND identity = ?`,
		boolToInt(unread), readAt, feedURL, identity)
	if err != nil {
		return fmt.Errorf("set unread: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Statistics

// FeedStats retrieves item counts for every cached feed in a single query.
func (s *SQLiteStore) FeedStats() ([]FeedStats, error) {
	rows, err := s.db.Query(`
		SELECT f.url, f.title, f.last_fetched_at, f.error_count, f.last_error,
			   COUNT(i.identity) AS item_count,
			   SUM(CASE WHEN i.unread = 1 THEN 1 ELSE 0 END) AS unread_count
		FROM feeds f
		LEFT JOIN items i ON f.url = i.feed_url
		GROUP BY f.url
		ORDER BY f.created_at, f.url
	`)
	if err != nil {
		return nil, fmt.Errorf("query feed stats: %w", err)
	}
	defer rows.Close()

	var stats []FeedStats
	for rows.Next() {
		var row FeedStats
		var lastFetched sql.NullTime
		var lastError sql.NullString
		var unreadCount sql.NullInt64
		if err := rows.Scan(
			&row.FeedURL, &row.FeedTitle, &lastFetched, &row.ErrorCount, &lastError,
			&row.ItemCount, &unreadCount,
		); err != nil {
			return nil, fmt.Errorf("scan feed stats: %w", err)
		}
		if lastFetched.Valid {
			row.LastFetchedAt = &lastFetched.Time
		}
		if lastError.Valid {
			row.LastError = &lastError.String
		}
		if unreadCount.Valid {
			row.UnreadCount = int(unreadCount.Int64)
		}
		stats = append(stats, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed stats: %w", err)
	}
	return stats, nil
}

// Maintenance

// Compact performs database maintenance (VACUUM).
func (s *SQLiteStore) Compact() error {
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// Search performs full-text search on item titles and bodies.
func (s *SQLiteStore) Search(query string, limit int) ([]models.Item, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return []models.Item{}, nil
	}
	rows, err := s.db.Query(`
		SELECT i.feed_url, i.identity, i.guid, i.title, i.body, i.link, i.author,
			   i.published_at, i.unread, i.read_at, i.created_at, i.updated_at
		FROM items i
		INNER JOIN items_fts fts ON i.rowid = fts.rowid
		WHERE items_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, ftsQuery(terms), limit)
	if err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// Helper functions

// ftsQuery quotes each term as an FTS5 string so words like AND or NEAR
// are matched literally. Space-separated strings are ANDed.
func ftsQuery(terms []string) string {
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFeed(row rowScanner) (*models.Feed, error) {
	var feed models.Feed
	var etag, lastModified, lastError sql.NullString
	var lastFetched sql.NullTime
	if err := row.Scan(
		&feed.URL, &feed.Title, &etag, &lastModified, &lastFetched,
		&lastError, &feed.ErrorCount, &feed.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan feed: %w", err)
	}
	feed.ETag = nullString(etag)
	feed.LastModified = nullString(lastModified)
	feed.LastError = nullString(lastError)
	if lastFetched.Valid {
		feed.LastFetchedAt = &lastFetched.Time
	}
	return &feed, nil
}

func scanItem(row rowScanner) (*models.Item, error) {
	var item models.Item
	var publishedAt, readAt sql.NullTime
	var unreadInt int
	if err := row.Scan(
		&item.FeedURL, &item.Identity, &item.GUID, &item.Title, &item.Body, &item.Link,
		&item.Author, &publishedAt, &unreadInt, &readAt, &item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan item: %w", err)
	}
	if publishedAt.Valid {
		item.PublishedAt = &publishedAt.Time
	}
	if readAt.Valid {
		item.ReadAt = &readAt.Time
	}
	item.Unread = unreadInt == 1
	return &item, nil
}

func scanItems(rows *sql.Rows) ([]models.Item, error) {
	items := []models.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// timeToSQL stores times in UTC so text ordering matches chronological order.
func timeToSQL(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
