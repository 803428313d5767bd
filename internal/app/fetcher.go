// ABOUTME: Fetcher collaborator that turns a feed reference into a freshly parsed feed
// ABOUTME: HTTPFetcher composes the conditional HTTP client with the gofeed parser

package app

import (
	"context"
	"errors"
	"time"

	"github.com/harper/skim/internal/fetch"
	"github.com/harper/skim/internal/models"
	"github.com/harper/skim/internal/parse"
)

// Fetcher retrieves the current upstream state of a feed. It returns
// fetch.ErrNotModified when the cached copy is still current.
type Fetcher interface {
	Fetch(ctx context.Context, ref *models.Feed) (*models.Feed, error)
}

// HTTPFetcher fetches feeds over HTTP using the reference's cache headers.
type HTTPFetcher struct {
	Client *fetch.Client
}

// NewHTTPFetcher returns an HTTPFetcher using client.
func NewHTTPFetcher(client *fetch.Client) *HTTPFetcher {
	return &HTTPFetcher{Client: client}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, ref *models.Feed) (*models.Feed, error) {
	result, err := f.Client.Fetch(ctx, ref.URL, ref.ETag, ref.LastModified)
	if errors.Is(err, fetch.ErrNotModified) {
		return nil, fetch.ErrNotModified
	}
	if err != nil {
		return nil, &FetchError{URL: ref.URL, Err: err}
	}

	feed, err := parse.Parse(ref.URL, result.Body)
	if err != nil {
		return nil, &ParseError{URL: ref.URL, Err: err}
	}

	feed.SetCacheHeaders(result.ETag, result.LastModified)
	now := time.Now()
	feed.LastFetchedAt = &now
	return feed, nil
}
