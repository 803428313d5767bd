// ABOUTME: Tests for the controller: startup, open, reload orchestration, import and export
// ABOUTME: Uses a scripted fetcher and a real SQLite cache in a temp directory

package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harper/skim/internal/config"
	"github.com/harper/skim/internal/fetch"
	"github.com/harper/skim/internal/models"
	"github.com/harper/skim/internal/opml"
	"github.com/harper/skim/internal/reconcile"
	"github.com/harper/skim/internal/storage"
	"github.com/harper/skim/internal/subscriptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	urlA = "https://a.example.com/feed.xml"
	urlB = "https://b.example.com/feed.xml"
)

// scriptedFetcher answers from a per-URL table.
type scriptedFetcher struct {
	mu      sync.Mutex
	results map[string]func() (*models.Feed, error)
	calls   []string
}

func (f *scriptedFetcher) set(url string, fn func() (*models.Feed, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.results == nil {
		f.results = make(map[string]func() (*models.Feed, error))
	}
	f.results[url] = fn
}

func (f *scriptedFetcher) Fetch(_ context.Context, ref *models.Feed) (*models.Feed, error) {
	f.mu.Lock()
	fn := f.results[ref.URL]
	f.calls = append(f.calls, ref.URL)
	f.mu.Unlock()
	if fn == nil {
		return nil, &FetchError{URL: ref.URL, Err: errors.New("no route")}
	}
	return fn()
}

type recordingView struct {
	mu       sync.Mutex
	statuses []string
	errors   []string
}

func (v *recordingView) Status(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.statuses = append(v.statuses, msg)
}

func (v *recordingView) Error(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errors = append(v.errors, msg)
}

func feedWith(url, title string, ids ...string) func() (*models.Feed, error) {
	return func() (*models.Feed, error) {
		feed := models.NewFeed(url)
		feed.Title = title
		for _, id := range ids {
			it := models.NewItem(url, id, strings.ToUpper(id))
			it.GUID = id
			feed.Items = append(feed.Items, *it)
		}
		return feed, nil
	}
}

type harness struct {
	ctrl    *Controller
	engine  *reconcile.Engine
	fetcher *scriptedFetcher
	view    *recordingView
	urls    *config.URLFile
}

func newHarness(t *testing.T, urls ...string) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStore(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	urlFile := config.NewURLFile(filepath.Join(dir, "urls"))
	require.NoError(t, urlFile.SaveURLs(urls))

	h := &harness{
		engine:  reconcile.New(store),
		fetcher: &scriptedFetcher{},
		view:    &recordingView{},
		urls:    urlFile,
	}
	h.ctrl = New(Options{
		Engine:        h.engine,
		Subscriptions: subscriptions.New(urls, urlFile),
		Fetcher:       h.fetcher,
		View:          h.view,
	})
	return h
}

func TestStart_NoURLs(t *testing.T) {
	h := newHarness(t)
	_, err := h.ctrl.Start()
	assert.True(t, errors.Is(err, ErrNoURLs))
}

func TestStart_InternalizesInOrderAndPurgesOrphans(t *testing.T) {
	h := newHarness(t, urlB, urlA)

	// Seed the cache with B and an orphan
	feed, _ := feedWith(urlB, "Bravo", "b1", "b2")()
	_, err := h.engine.Externalize(feed)
	require.NoError(t, err)
	orphan, _ := feedWith("https://orphan.example.com/rss", "Orphan", "o1")()
	_, err = h.engine.Externalize(orphan)
	require.NoError(t, err)

	removed, err := h.ctrl.Start()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://orphan.example.com/rss"}, removed)

	feeds := h.ctrl.Feeds()
	require.Len(t, feeds, 2)
	assert.Equal(t, urlB, feeds[0].URL)
	assert.Equal(t, "Bravo", feeds[0].Title)
	assert.Len(t, feeds[0].Items, 2)
	assert.Equal(t, urlA, feeds[1].URL)
	assert.Empty(t, feeds[1].Items, "never-fetched feed should be empty")
}

func TestOpenFeed_Errors(t *testing.T) {
	h := newHarness(t, urlA)
	_, err := h.ctrl.Start()
	require.NoError(t, err)

	_, err = h.ctrl.OpenFeed(5)
	assert.True(t, errors.Is(err, ErrInvalidFeed))
	_, err = h.ctrl.OpenFeed(-1)
	assert.True(t, errors.Is(err, ErrInvalidFeed))
	_, err = h.ctrl.OpenFeed(0)
	assert.True(t, errors.Is(err, ErrEmptyFeed))
	_, err = h.ctrl.OpenItem(0, 0)
	assert.True(t, errors.Is(err, ErrInvalidItem))
}

func TestHandle_OpenItemSurvivesReload(t *testing.T) {
	h := newHarness(t, urlA)
	h.fetcher.set(urlA, feedWith(urlA, "Alpha", "a1", "a2"))
	_, err := h.ctrl.Start()
	require.NoError(t, err)

	ctx := context.Background()
	_, err = h.ctrl.Handle(ctx, ReloadFeed{Feed: 0})
	require.NoError(t, err)

	update, err := h.ctrl.Handle(ctx, OpenFeed{Feed: 0})
	require.NoError(t, err)
	require.NotNil(t, update.Feed)
	assert.Equal(t, 2, update.Feed.UnreadCount())

	update, err = h.ctrl.Handle(ctx, OpenItem{Feed: 0, Item: 0})
	require.NoError(t, err)
	require.NotNil(t, update.Item)
	assert.False(t, update.Item.Unread)
	assert.Equal(t, 1, update.Feeds[0].UnreadCount())

	// Upstream delivers the same items again, all unread
	update, err = h.ctrl.Handle(ctx, ReloadFeed{Feed: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, update.Feeds[0].UnreadCount(), "read item came back unread")
}

func TestHandle_ToggleUnread(t *testing.T) {
	h := newHarness(t, urlA)
	h.fetcher.set(urlA, feedWith(urlA, "Alpha", "a1"))
	_, err := h.ctrl.Start()
	require.NoError(t, err)
	ctx := context.Background()
	_, err = h.ctrl.Handle(ctx, ReloadFeed{Feed: 0})
	require.NoError(t, err)

	update, err := h.ctrl.Handle(ctx, ToggleUnread{Feed: 0, Item: 0})
	require.NoError(t, err)
	assert.False(t, update.Feed.Items[0].Unread)

	update, err = h.ctrl.Handle(ctx, ToggleUnread{Feed: 0, Item: 0})
	require.NoError(t, err)
	assert.True(t, update.Feed.Items[0].Unread)

	// The flag is in the cache, not only in memory
	items, err := h.engine.Store().GetItems(urlA)
	require.NoError(t, err)
	assert.True(t, items[0].Unread)
}

func TestMarkItem_ByIdentity(t *testing.T) {
	h := newHarness(t, urlA)
	h.fetcher.set(urlA, feedWith(urlA, "Alpha", "a1", "a2"))
	_, err := h.ctrl.Start()
	require.NoError(t, err)
	require.NoError(t, h.ctrl.Reload(context.Background(), 0))

	id := h.ctrl.Feeds()[0].Items[1].Identity
	item, err := h.ctrl.MarkItem(urlA, id, false)
	require.NoError(t, err)
	assert.False(t, item.Unread)

	got, err := h.ctrl.Item(urlA, id)
	require.NoError(t, err)
	assert.False(t, got.Unread)
	assert.Equal(t, "A2", got.Title)

	_, err = h.ctrl.MarkItem(urlA, "missing", false)
	assert.ErrorIs(t, err, ErrInvalidItem)
	_, err = h.ctrl.Item(urlB, id)
	assert.ErrorIs(t, err, ErrInvalidFeed)
}

func TestReloadAll_IsolatesFailures(t *testing.T) {
	h := newHarness(t, urlA, urlB)
	h.fetcher.set(urlA, feedWith(urlA, "Alpha", "a1"))
	h.fetcher.set(urlB, feedWith(urlB, "Bravo", "b1", "b2"))
	_, err := h.ctrl.Start()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, h.ctrl.ReloadAll(ctx))

	// A now fails, B gains an item
	h.fetcher.set(urlA, func() (*models.Feed, error) {
		return nil, &FetchError{URL: urlA, Err: errors.New("connection refused")}
	})
	h.fetcher.set(urlB, feedWith(urlB, "Bravo", "b0", "b1", "b2"))

	err = h.ctrl.ReloadAll(ctx)
	require.Error(t, err)

	var reloadErr *ReloadError
	require.True(t, errors.As(err, &reloadErr))
	assert.Equal(t, urlA, reloadErr.URL)
	var fetchErr *FetchError
	assert.True(t, errors.As(err, &fetchErr))

	feeds := h.ctrl.Feeds()
	assert.Len(t, feeds[0].Items, 1, "failed feed keeps its cached items")
	require.NotNil(t, feeds[0].LastError)
	assert.Contains(t, *feeds[0].LastError, "connection refused")
	assert.Equal(t, 1, feeds[0].ErrorCount)
	assert.Len(t, feeds[1].Items, 3, "later feed still reloaded")
	assert.Nil(t, feeds[1].LastError)

	assert.Equal(t, []string{urlA, urlB, urlA, urlB}, h.fetcher.calls)
	assert.Contains(t, h.view.statuses, "Reloaded 2 feeds, 1 failed.")
}

func TestReload_NotModifiedKeepsItems(t *testing.T) {
	h := newHarness(t, urlA)
	h.fetcher.set(urlA, feedWith(urlA, "Alpha", "a1", "a2"))
	_, err := h.ctrl.Start()
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Reload(ctx, 0))

	h.fetcher.set(urlA, func() (*models.Feed, error) { return nil, fetch.ErrNotModified })
	require.NoError(t, h.ctrl.Reload(ctx, 0))

	feeds := h.ctrl.Feeds()
	assert.Len(t, feeds[0].Items, 2)
	assert.NotNil(t, feeds[0].LastFetchedAt)
}

func TestReload_InvalidPosition(t *testing.T) {
	h := newHarness(t, urlA)
	_, err := h.ctrl.Start()
	require.NoError(t, err)

	_, err = h.ctrl.Handle(context.Background(), ReloadFeed{Feed: 3})
	assert.True(t, errors.Is(err, ErrInvalidFeed))
	assert.Equal(t, []string{ErrInvalidFeed.Error()}, h.view.errors)
}

type unknownEvent struct{}

func (unknownEvent) event() {}

func TestHandle_UnknownEvent(t *testing.T) {
	h := newHarness(t, urlA)
	_, err := h.ctrl.Start()
	require.NoError(t, err)

	update, err := h.ctrl.Handle(context.Background(), unknownEvent{})
	assert.Error(t, err)
	assert.Len(t, update.Feeds, 1)
}

func TestFeeds_ReturnsClones(t *testing.T) {
	h := newHarness(t, urlA)
	h.fetcher.set(urlA, feedWith(urlA, "Alpha", "a1"))
	_, err := h.ctrl.Start()
	require.NoError(t, err)
	require.NoError(t, h.ctrl.Reload(context.Background(), 0))

	feeds := h.ctrl.Feeds()
	feeds[0].Title = "mutated"
	feeds[0].Items[0].Unread = false

	again := h.ctrl.Feeds()
	assert.Equal(t, "Alpha", again[0].Title)
	assert.True(t, again[0].Items[0].Unread)
}

func TestAddFeed(t *testing.T) {
	h := newHarness(t, urlA)
	_, err := h.ctrl.Start()
	require.NoError(t, err)

	added, err := h.ctrl.AddFeed(urlB)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = h.ctrl.AddFeed(urlB)
	require.NoError(t, err)
	assert.False(t, added)

	urls, err := h.urls.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{urlA, urlB}, urls)
	pos, ok := h.ctrl.FindFeed(urlB)
	assert.True(t, ok)
	assert.Equal(t, 1, pos)
}

func TestImportExportOPML(t *testing.T) {
	h := newHarness(t, urlA)
	h.fetcher.set(urlA, feedWith(urlA, "Alpha", "a1"))
	_, err := h.ctrl.Start()
	require.NoError(t, err)
	require.NoError(t, h.ctrl.Reload(context.Background(), 0))

	doc := fmt.Sprintf(`<opml version="1.0"><body>
		<outline type="rss" xmlUrl="%s"/>
		<outline text="folder"><outline type="rss" xmlUrl="%s"/></outline>
	</body></opml>`, urlA, urlB)
	added, err := h.ctrl.ImportOPML(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{urlB}, added)

	urls, err := h.urls.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{urlA, urlB}, urls)

	var buf bytes.Buffer
	require.NoError(t, h.ctrl.ExportOPML(&buf))
	root, err := opml.Parse(&buf)
	require.NoError(t, err)

	var exported []models.Feed
	opml.Walk(root, func(n *opml.Node) bool {
		if n.Kind == opml.Element && n.Name == "outline" {
			url, _ := n.Attr("xmlUrl")
			title, _ := n.Attr("title")
			exported = append(exported, models.Feed{URL: url, Title: title})
		}
		return true
	})
	assert.Equal(t, []models.Feed{{URL: urlA, Title: "Alpha"}, {URL: urlB}}, exported)
}

func TestImportOPML_Malformed(t *testing.T) {
	h := newHarness(t, urlA)
	_, err := h.ctrl.Start()
	require.NoError(t, err)

	_, err = h.ctrl.ImportOPML(strings.NewReader("<opml><body>"))
	assert.Error(t, err)
	assert.Len(t, h.ctrl.Feeds(), 1)
}

func TestHandle_ConcurrentCallers(t *testing.T) {
	h := newHarness(t, urlA, urlB)
	h.fetcher.set(urlA, feedWith(urlA, "Alpha", "a1", "a2"))
	h.fetcher.set(urlB, feedWith(urlB, "Bravo", "b1"))
	_, err := h.ctrl.Start()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				h.ctrl.Handle(ctx, ReloadAll{})
			} else {
				h.ctrl.Feeds()
			}
		}(i)
	}
	wg.Wait()

	feeds := h.ctrl.Feeds()
	assert.Len(t, feeds[0].Items, 2)
	assert.Len(t, feeds[1].Items, 1)
}

// failingItemStore rejects item writes once armed.
type failingItemStore struct {
	storage.Store
	fail bool
}

func (s *failingItemStore) UpsertItem(feedURL string, item *models.Item) (bool, error) {
	if s.fail {
		return false, errors.New("disk I/O error")
	}
	return s.Store.UpsertItem(feedURL, item)
}

func TestOpenItem_FailedWriteKeepsUnread(t *testing.T) {
	inner, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { inner.Close() })
	store := &failingItemStore{Store: inner}

	engine := reconcile.New(store)
	seed, _ := feedWith(urlA, "Alpha", "a1")()
	_, err = engine.Externalize(seed)
	require.NoError(t, err)

	ctrl := New(Options{Engine: engine, Subscriptions: subscriptions.New([]string{urlA}, nil)})
	_, err = ctrl.Start()
	require.NoError(t, err)

	store.fail = true
	_, err = ctrl.OpenItem(0, 0)
	require.Error(t, err)
	assert.True(t, ctrl.Feeds()[0].Items[0].Unread, "in-memory item must match the store")

	items, err := inner.GetItems(urlA)
	require.NoError(t, err)
	assert.True(t, items[0].Unread)

	store.fail = false
	item, err := ctrl.OpenItem(0, 0)
	require.NoError(t, err)
	assert.False(t, item.Unread)
	assert.False(t, ctrl.Feeds()[0].Items[0].Unread)
}

type brokenPersister struct{}

func (brokenPersister) SaveURLs([]string) error { return errors.New("read-only file system") }

func TestSubscriptionChanges_FailedPersistLeavesListAlone(t *testing.T) {
	h := newHarness(t, urlA)
	subs := subscriptions.New([]string{urlA}, brokenPersister{})
	ctrl := New(Options{Engine: h.engine, Subscriptions: subs, Fetcher: h.fetcher})
	_, err := ctrl.Start()
	require.NoError(t, err)

	added, err := ctrl.AddFeed(urlB)
	require.Error(t, err)
	assert.False(t, added)
	assert.False(t, subs.Contains(urlB))

	doc := fmt.Sprintf(`<opml version="1.0"><body><outline type="rss" xmlUrl="%s"/></body></opml>`, urlB)
	imported, err := ctrl.ImportOPML(strings.NewReader(doc))
	require.Error(t, err)
	assert.Empty(t, imported)
	assert.Equal(t, []string{urlA}, subs.URLs())
	assert.Len(t, ctrl.Feeds(), 1)
}
