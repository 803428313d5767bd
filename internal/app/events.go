// ABOUTME: Intents the view sends to the controller and the snapshot it gets back
// ABOUTME: The view never mutates shared feeds; it only sees clones in an Update

package app

import "github.com/harper/skim/internal/models"

// Event is a user intent reported by the view.
type Event interface {
	event()
}

// OpenFeed asks for the items of the feed at position Feed.
type OpenFeed struct{ Feed int }

// OpenItem opens an item, marking it read.
type OpenItem struct{ Feed, Item int }

// ToggleUnread flips an item's unread flag.
type ToggleUnread struct{ Feed, Item int }

// ReloadFeed refreshes one feed from upstream.
type ReloadFeed struct{ Feed int }

// ReloadAll refreshes every feed in list order.
type ReloadAll struct{}

func (OpenFeed) event()     {}
func (OpenItem) event()     {}
func (ToggleUnread) event() {}
func (ReloadFeed) event()   {}
func (ReloadAll) event()    {}

// Update is the controller's answer to an event. Feeds is always the full
// list; Feed and Item are set when the event selected them.
type Update struct {
	Feeds []models.Feed
	Feed  *models.Feed
	Item  *models.Item
}

// View receives progress and error messages while an event is handled.
type View interface {
	Status(msg string)
	Error(msg string)
}

type nopView struct{}

func (nopView) Status(string) {}
func (nopView) Error(string)  {}
