// ABOUTME: Feed autodiscovery used before a URL is added to the subscription list
// ABOUTME: Tries the URL as a feed, then its <link rel="alternate"> tags, then well-known paths

package discover

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/harper/skim/internal/fetch"
	"github.com/harper/skim/internal/parse"
)

// Paths probed on the site root when neither the page nor its links are feeds.
var wellKnownPaths = []string{
	"/feed.xml",
	"/feed",
	"/rss.xml",
	"/rss",
	"/atom.xml",
	"/atom",
	"/index.xml",
	"/feed/rss",
	"/feed/atom",
	"/feeds/posts/default",
}

var (
	ErrNoFeedFound = errors.New("no RSS/Atom feed found at URL")
	ErrInvalidURL  = errors.New("invalid URL")
)

// DiscoveredFeed is a URL that fetched and parsed as a feed.
type DiscoveredFeed struct {
	URL       string
	Title     string
	ItemCount int
}

// candidate is a feed link advertised by an HTML page.
type candidate struct {
	url   string
	title string
}

// Discover resolves inputURL to a feed URL. A nil client uses the fetch
// package defaults.
func Discover(ctx context.Context, client *fetch.Client, inputURL string) (*DiscoveredFeed, error) {
	base, err := url.Parse(inputURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: missing scheme or host", ErrInvalidURL)
	}
	if client == nil {
		client = fetch.DefaultClient
	}

	feed, body, err := probe(ctx, client, inputURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	if feed != nil {
		return feed, nil
	}

	for _, c := range feedLinks(body, base) {
		found, _, err := probe(ctx, client, c.url)
		if err != nil || found == nil {
			continue
		}
		if found.Title == "" {
			found.Title = c.title
		}
		return found, nil
	}

	root := url.URL{Scheme: base.Scheme, Host: base.Host}
	for _, path := range wellKnownPaths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, _, err := probe(ctx, client, root.String()+path)
		if err == nil && found != nil {
			return found, nil
		}
	}
	return nil, ErrNoFeedFound
}

// probe fetches target and parses it as a feed. A body that is not a feed
// yields a nil feed and the body, not an error.
func probe(ctx context.Context, client *fetch.Client, target string) (*DiscoveredFeed, []byte, error) {
	res, err := client.Fetch(ctx, target, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	parsed, err := parse.Parse(target, res.Body)
	if err != nil {
		return nil, res.Body, nil //nolint:nilerr // not a feed
	}
	return &DiscoveredFeed{
		URL:       target,
		Title:     parsed.Title,
		ItemCount: len(parsed.Items),
	}, res.Body, nil
}

// feedLinks returns the alternate feed links of an HTML page in document
// order, resolved against base. Unparseable pages yield no links.
func feedLinks(page []byte, base *url.URL) []candidate {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil
	}

	var out []candidate
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "link" {
			if c, ok := linkCandidate(n, base); ok {
				out = append(out, c)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			visit(child)
		}
	}
	visit(doc)
	return out
}

func linkCandidate(n *html.Node, base *url.URL) (candidate, bool) {
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		attrs[a.Key] = a.Val
	}
	href := attrs["href"]
	if href == "" || !hasToken(attrs["rel"], "alternate") || !isFeedType(attrs["type"]) {
		return candidate{}, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return candidate{}, false
	}
	return candidate{url: base.ResolveReference(ref).String(), title: attrs["title"]}, true
}

func isFeedType(mediaType string) bool {
	mediaType = strings.ToLower(mediaType)
	for _, marker := range []string{"rss", "atom", "xml"} {
		if strings.Contains(mediaType, marker) {
			return true
		}
	}
	return false
}

func hasToken(list, token string) bool {
	for _, t := range strings.Fields(strings.ToLower(list)) {
		if t == token {
			return true
		}
	}
	return false
}
