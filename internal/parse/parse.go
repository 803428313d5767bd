// ABOUTME: RSS/Atom feed parsing using gofeed library
// ABOUTME: Converts gofeed.Feed into a models.Feed with item identities assigned

package parse

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/harper/skim/internal/identity"
	"github.com/harper/skim/internal/models"
	"github.com/mmcdole/gofeed"
)

// Parse parses RSS or Atom feed data fetched from feedURL. Items keep the
// document's order; a repeated identity keeps its first occurrence.
func Parse(feedURL string, data []byte) (*models.Feed, error) {
	parser := gofeed.NewParser()
	parsed, err := parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	feed := models.NewFeed(feedURL)
	feed.Title = strings.TrimSpace(parsed.Title)
	feed.Items = make([]models.Item, 0, len(parsed.Items))

	seen := make(map[string]bool, len(parsed.Items))
	for _, src := range parsed.Items {
		item := convertItem(feed.URL, src)
		if seen[item.Identity] {
			continue
		}
		seen[item.Identity] = true
		feed.Items = append(feed.Items, *item)
	}

	return feed, nil
}

func convertItem(feedURL string, src *gofeed.Item) *models.Item {
	item := models.NewItem(feedURL, "", strings.TrimSpace(src.Title))
	item.GUID = strings.TrimSpace(src.GUID)
	item.Link = strings.TrimSpace(src.Link)

	// Extract author name
	if src.Author != nil {
		item.Author = src.Author.Name
	} else if len(src.Authors) > 0 && src.Authors[0] != nil {
		item.Author = src.Authors[0].Name
	}

	// Use PublishedParsed or fallback to UpdatedParsed
	if src.PublishedParsed != nil {
		item.PublishedAt = src.PublishedParsed
	} else if src.UpdatedParsed != nil {
		item.PublishedAt = src.UpdatedParsed
	}

	// Prefer Content over Description
	if src.Content != "" {
		item.Body = src.Content
	} else {
		item.Body = src.Description
	}
	item.Body = strings.TrimSpace(item.Body)

	item.Identity = identity.Item(item.GUID, item.Link, item.Title, item.PublishedAt)
	return item
}
