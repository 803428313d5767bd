// ABOUTME: Item model representing a single feed entry with read/unread state
// ABOUTME: Content fields are refreshed on merge; the unread flag survives refreshes

package models

import (
	"time"
)

// Item represents a single entry (article) in a feed, identified within
// its feed by Identity.
type Item struct {
	FeedURL     string
	Identity    string
	GUID        string
	Title       string
	Body        string
	Link        string
	Author      string
	PublishedAt *time.Time
	Unread      bool
	ReadAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time // moves only when upstream content changes
}

// NewItem creates an unread Item for the given feed and identity.
func NewItem(feedURL, identity, title string) *Item {
	return &Item{
		FeedURL:  feedURL,
		Identity: identity,
		Title:    title,
		Unread:   true,
	}
}

// MarkRead marks the item as read and sets ReadAt to the current time
func (i *Item) MarkRead() {
	if !i.Unread {
		return
	}
	now := time.Now()
	i.Unread = false
	i.ReadAt = &now
}

// MarkUnread marks the item as unread and clears the ReadAt timestamp
func (i *Item) MarkUnread() {
	i.Unread = true
	i.ReadAt = nil
}

// ContentEqual reports whether the upstream content fields match.
// Read state and bookkeeping timestamps are not compared.
func (i *Item) ContentEqual(o *Item) bool {
	if i.GUID != o.GUID || i.Title != o.Title || i.Body != o.Body ||
		i.Link != o.Link || i.Author != o.Author {
		return false
	}
	switch {
	case i.PublishedAt == nil && o.PublishedAt == nil:
		return true
	case i.PublishedAt == nil || o.PublishedAt == nil:
		return false
	default:
		return i.PublishedAt.Equal(*o.PublishedAt)
	}
}

// Clone returns a deep copy of the item.
func (i *Item) Clone() Item {
	c := *i
	c.PublishedAt = cloneTime(i.PublishedAt)
	c.ReadAt = cloneTime(i.ReadAt)
	return c
}
