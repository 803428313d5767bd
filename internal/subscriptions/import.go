// ABOUTME: OPML import into the subscription list
// ABOUTME: Walks the outline tree depth-first and adds every rss outline's xmlUrl

package subscriptions

import (
	"fmt"
	"io"

	"github.com/harper/skim/internal/opml"
)

// Import adds the feed URL of every rss outline under root, in document
// order, and returns the URLs that were not already subscribed. Nested
// outlines are searched regardless of their parent's type. It does not persist.
func (l *List) Import(root *opml.Node) []string {
	var added []string
	opml.Walk(root, func(n *opml.Node) bool {
		if url, ok := rssOutlineURL(n); ok && l.Add(url) {
			added = append(added, url)
		}
		return true
	})
	return added
}

// ImportOPML parses r, imports its feeds and persists the list once.
// Malformed input aborts before anything is added or persisted. When the
// persist fails the imported URLs are taken back out of the list.
func (l *List) ImportOPML(r io.Reader) ([]string, error) {
	root, err := opml.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("import opml: %w", err)
	}

	added := l.Import(root)
	if err := l.Persist(); err != nil {
		l.Remove(added...)
		return nil, err
	}
	return added, nil
}

// rssOutlineURL returns the xmlUrl of an outline element of type rss.
func rssOutlineURL(n *opml.Node) (string, bool) {
	if n.Kind != opml.Element || n.Name != "outline" {
		return "", false
	}
	if typ, _ := n.Attr("type"); typ != "rss" {
		return "", false
	}
	url, _ := n.Attr("xmlUrl")
	if url == "" {
		return "", false
	}
	return url, true
}
