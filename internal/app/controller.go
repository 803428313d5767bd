// ABOUTME: Controller owning the in-memory feed list and orchestrating reloads
// ABOUTME: Serializes every operation; the view gets clones and reports intents as events

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harper/skim/internal/fetch"
	"github.com/harper/skim/internal/logging"
	"github.com/harper/skim/internal/models"
	"github.com/harper/skim/internal/opml"
	"github.com/harper/skim/internal/reconcile"
	"github.com/harper/skim/internal/subscriptions"
)

// Options configures a Controller. Engine and Subscriptions are required.
type Options struct {
	Engine        *reconcile.Engine
	Subscriptions *subscriptions.List
	Fetcher       Fetcher
	View          View
	Logger        *log.Logger
}

// Controller owns the feed list shown to the user.
type Controller struct {
	mu      sync.Mutex
	engine  *reconcile.Engine
	subs    *subscriptions.List
	fetcher Fetcher
	view    View
	logger  *log.Logger
	feeds   []models.Feed
	now     func() time.Time
}

// New returns a Controller. Nil View and Logger are replaced by no-ops.
func New(opts Options) *Controller {
	c := &Controller{
		engine:  opts.Engine,
		subs:    opts.Subscriptions,
		fetcher: opts.Fetcher,
		view:    opts.View,
		logger:  opts.Logger,
		now:     time.Now,
	}
	if c.view == nil {
		c.view = nopView{}
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	return c
}

// SetView replaces the view receiving progress messages.
func (c *Controller) SetView(v View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v == nil {
		v = nopView{}
	}
	c.view = v
}

// Start internalizes every subscribed feed in list order, then purges
// cached feeds that are no longer subscribed. It returns the purged URLs.
func (c *Controller) Start() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subs.Len() == 0 {
		return nil, ErrNoURLs
	}

	c.feeds = make([]models.Feed, 0, c.subs.Len())
	for _, url := range c.subs.URLs() {
		feed := models.Feed{URL: url}
		if err := c.engine.Internalize(&feed); err != nil {
			return nil, err
		}
		c.feeds = append(c.feeds, feed)
	}

	removed, err := c.engine.Cleanup(c.feeds)
	if err != nil {
		return removed, err
	}
	for _, url := range removed {
		c.logger.Info("purged unsubscribed feed", "url", url)
	}
	c.logger.Debug("started", "feeds", len(c.feeds))
	return removed, nil
}

// Feeds returns clones of all feeds in list order.
func (c *Controller) Feeds() []models.Feed {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() []models.Feed {
	out := make([]models.Feed, len(c.feeds))
	for i := range c.feeds {
		out[i] = c.feeds[i].Clone()
	}
	return out
}

// FindFeed returns the position of the feed with url.
func (c *Controller) FindFeed(url string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.feeds {
		if c.feeds[i].URL == url {
			return i, true
		}
	}
	return -1, false
}

// Handle applies one event and returns the resulting snapshot. Errors are
// also reported to the view.
func (c *Controller) Handle(ctx context.Context, ev Event) (*Update, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	update := &Update{}
	var err error

	switch e := ev.(type) {
	case OpenFeed:
		var feed models.Feed
		if feed, err = c.openFeed(e.Feed); err == nil {
			update.Feed = &feed
		}
	case OpenItem:
		var item models.Item
		if item, err = c.openItem(e.Feed, e.Item); err == nil {
			update.Item = &item
			feed := c.feeds[e.Feed].Clone()
			update.Feed = &feed
		}
	case ToggleUnread:
		if err = c.toggleUnread(e.Feed, e.Item); err == nil {
			feed := c.feeds[e.Feed].Clone()
			update.Feed = &feed
		}
	case ReloadFeed:
		err = c.reload(ctx, e.Feed)
		if e.Feed >= 0 && e.Feed < len(c.feeds) {
			feed := c.feeds[e.Feed].Clone()
			update.Feed = &feed
		}
	case ReloadAll:
		err = c.reloadAll(ctx)
	default:
		err = fmt.Errorf("unknown event %T", ev)
	}

	update.Feeds = c.snapshot()
	if err != nil {
		c.view.Error(err.Error())
	}
	return update, err
}

// OpenFeed returns a clone of the feed at pos.
func (c *Controller) OpenFeed(pos int) (models.Feed, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openFeed(pos)
}

func (c *Controller) openFeed(pos int) (models.Feed, error) {
	if pos < 0 || pos >= len(c.feeds) {
		return models.Feed{}, ErrInvalidFeed
	}
	if len(c.feeds[pos].Items) == 0 {
		return models.Feed{}, ErrEmptyFeed
	}
	return c.feeds[pos].Clone(), nil
}

// OpenItem marks the item read, stores it, and returns a clone.
func (c *Controller) OpenItem(feedPos, itemPos int) (models.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openItem(feedPos, itemPos)
}

func (c *Controller) openItem(feedPos, itemPos int) (models.Item, error) {
	if feedPos < 0 || feedPos >= len(c.feeds) {
		return models.Item{}, ErrInvalidFeed
	}
	feed := &c.feeds[feedPos]
	if itemPos < 0 || itemPos >= len(feed.Items) {
		return models.Item{}, ErrInvalidItem
	}

	item := &feed.Items[itemPos]
	if item.Unread {
		read := item.Clone()
		read.MarkRead()
		if err := c.engine.ExternalizeItem(feed.URL, &read); err != nil {
			return models.Item{}, err
		}
		*item = read
	}
	return item.Clone(), nil
}

// SetUnread sets an item's unread flag explicitly.
func (c *Controller) SetUnread(feedPos, itemPos int, unread bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setUnread(feedPos, itemPos, unread)
}

func (c *Controller) toggleUnread(feedPos, itemPos int) error {
	if feedPos < 0 || feedPos >= len(c.feeds) {
		return ErrInvalidFeed
	}
	if itemPos < 0 || itemPos >= len(c.feeds[feedPos].Items) {
		return ErrInvalidItem
	}
	return c.setUnread(feedPos, itemPos, !c.feeds[feedPos].Items[itemPos].Unread)
}

func (c *Controller) setUnread(feedPos, itemPos int, unread bool) error {
	if feedPos < 0 || feedPos >= len(c.feeds) {
		return ErrInvalidFeed
	}
	feed := &c.feeds[feedPos]
	if itemPos < 0 || itemPos >= len(feed.Items) {
		return ErrInvalidItem
	}

	item := &feed.Items[itemPos]
	if err := c.engine.SetUnread(feed.URL, item.Identity, unread); err != nil {
		return err
	}
	if unread {
		item.MarkUnread()
	} else {
		item.MarkRead()
	}
	return nil
}

// Item returns a clone of the item with the given identity.
func (c *Controller) Item(feedURL, identity string) (models.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fp, ip, err := c.locate(feedURL, identity)
	if err != nil {
		return models.Item{}, err
	}
	return c.feeds[fp].Items[ip].Clone(), nil
}

// MarkItem sets the unread flag of the item with the given identity and
// returns the updated item.
func (c *Controller) MarkItem(feedURL, identity string, unread bool) (models.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fp, ip, err := c.locate(feedURL, identity)
	if err != nil {
		return models.Item{}, err
	}
	if err := c.setUnread(fp, ip, unread); err != nil {
		return models.Item{}, err
	}
	return c.feeds[fp].Items[ip].Clone(), nil
}

func (c *Controller) locate(feedURL, identity string) (int, int, error) {
	for fp := range c.feeds {
		if c.feeds[fp].URL != feedURL {
			continue
		}
		for ip := range c.feeds[fp].Items {
			if c.feeds[fp].Items[ip].Identity == identity {
				return fp, ip, nil
			}
		}
		return fp, -1, ErrInvalidItem
	}
	return -1, -1, ErrInvalidFeed
}

// Reload refreshes the feed at pos from upstream.
func (c *Controller) Reload(ctx context.Context, pos int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reload(ctx, pos)
}

func (c *Controller) reload(ctx context.Context, pos int) error {
	if pos < 0 || pos >= len(c.feeds) {
		return ErrInvalidFeed
	}
	if c.fetcher == nil {
		return fmt.Errorf("reload: no fetcher configured")
	}

	ref := &c.feeds[pos]
	url := ref.URL
	c.view.Status(fmt.Sprintf("Loading %s...", url))
	c.logger.Debug("reloading feed", "url", url)

	fetched, err := c.fetcher.Fetch(ctx, ref)
	switch {
	case errors.Is(err, fetch.ErrNotModified):
		c.logger.Debug("feed not modified", "url", url)
		if err := c.engine.RecordNotModified(url, c.now()); err != nil {
			return &ReloadError{URL: url, Err: err}
		}

	case err != nil:
		c.logger.Warn("reload failed", "url", url, "err", err)
		if recErr := c.engine.RecordFailure(url, err); recErr != nil {
			c.logger.Error("record failure", "url", url, "err", recErr)
		}
		if refErr := c.refresh(pos); refErr != nil {
			c.logger.Error("refresh after failure", "url", url, "err", refErr)
		}
		return &ReloadError{URL: url, Err: err}

	default:
		fetched.URL = url
		fetched.LastError = nil
		fetched.ErrorCount = 0
		if fetched.LastFetchedAt == nil {
			now := c.now()
			fetched.LastFetchedAt = &now
		}
		created, err := c.engine.Externalize(fetched)
		if err != nil {
			return &ReloadError{URL: url, Err: err}
		}
		c.logger.Info("reloaded feed", "url", url, "items", len(fetched.Items), "new", created)
	}

	if err := c.refresh(pos); err != nil {
		return &ReloadError{URL: url, Err: err}
	}
	c.view.Status(fmt.Sprintf("Loaded %s.", c.feeds[pos].DisplayTitle()))
	return nil
}

// refresh replaces the feed at pos with a fresh internalize.
func (c *Controller) refresh(pos int) error {
	fresh := models.Feed{URL: c.feeds[pos].URL}
	if err := c.engine.Internalize(&fresh); err != nil {
		return err
	}
	c.feeds[pos] = fresh
	return nil
}

// ReloadAll reloads every feed in list order. A failed feed does not stop
// the others; the failures are returned joined.
func (c *Controller) ReloadAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reloadAll(ctx)
}

func (c *Controller) reloadAll(ctx context.Context) error {
	var errs []error
	for pos := range c.feeds {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := c.reload(ctx, pos); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		c.view.Status(fmt.Sprintf("Reloaded %d feeds, %d failed.", len(c.feeds), len(errs)))
	} else {
		c.view.Status(fmt.Sprintf("Reloaded %d feeds.", len(c.feeds)))
	}
	return errors.Join(errs...)
}

// AddFeed subscribes to url, persists the list, and appends the feed.
// It reports false when url was already subscribed. A failed persist
// leaves the subscriptions unchanged.
func (c *Controller) AddFeed(url string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.subs.Add(url) {
		return false, nil
	}
	if err := c.subs.Persist(); err != nil {
		c.subs.Remove(url)
		return false, err
	}
	return true, c.appendFeeds([]string{url})
}

// ImportOPML adds every rss outline in r to the subscriptions, persists
// once, and appends the new feeds. It returns the added URLs. On a parse
// or persist error neither the subscriptions nor the feed list change.
func (c *Controller) ImportOPML(r io.Reader) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	added, err := c.subs.ImportOPML(r)
	if err != nil {
		return added, err
	}
	c.logger.Info("imported opml", "added", len(added))
	return added, c.appendFeeds(added)
}

func (c *Controller) appendFeeds(urls []string) error {
	for _, url := range urls {
		feed := models.Feed{URL: url}
		if err := c.engine.Internalize(&feed); err != nil {
			return err
		}
		c.feeds = append(c.feeds, feed)
	}
	return nil
}

// ExportOPML writes the feed list as OPML.
func (c *Controller) ExportOPML(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return opml.Export(w, c.feeds)
}
