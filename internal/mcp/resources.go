// ABOUTME: MCP resource providers for skim
// ABOUTME: Exposes read-only views of the feed list, unread items and cache statistics

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	feedsURI       = "skim://feeds"
	unreadItemsURI = "skim://items/unread"
	statsURI       = "skim://stats"
)

// ResourceData is the standard response format for all resources.
type ResourceData struct {
	Metadata ResourceMetadata  `json:"metadata"`
	Data     interface{}       `json:"data"`
	Links    map[string]string `json:"links"`
}

// ResourceMetadata contains metadata about the resource response.
type ResourceMetadata struct {
	Timestamp   time.Time `json:"timestamp"`
	Count       int       `json:"count"`
	ResourceURI string    `json:"resource_uri"`
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcp.Resource{
			URI:         feedsURI,
			Name:        "All Feeds",
			Description: "Every subscribed feed in subscription order with item and unread counts, last fetch time and error state",
			MIMEType:    "application/json",
		},
		s.handleFeedsResource,
	)
	s.mcpServer.AddResource(
		mcp.Resource{
			URI:         unreadItemsURI,
			Name:        "Unread Items",
			Description: "Unread items across all feeds, newest first",
			MIMEType:    "application/json",
		},
		s.handleUnreadItemsResource,
	)
	s.mcpServer.AddResource(
		mcp.Resource{
			URI:         statsURI,
			Name:        "Cache Statistics",
			Description: "Item and unread totals for the whole cache and per feed, plus the most recent successful fetch",
			MIMEType:    "application/json",
		},
		s.handleStatsResource,
	)
}

func (s *Server) handleFeedsResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	feeds := s.ctrl.Feeds()
	outputs := make([]FeedOutput, 0, len(feeds))
	for i := range feeds {
		outputs = append(outputs, toFeedOutput(&feeds[i]))
	}
	return resourceJSON(request, feedsURI, len(outputs), outputs)
}

func (s *Server) handleUnreadItemsResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	var outputs []ItemOutput
	for _, feed := range s.ctrl.Feeds() {
		for i := range feed.Items {
			if feed.Items[i].Unread {
				outputs = append(outputs, toItemOutput(&feed.Items[i]))
			}
		}
	}
	sortOutputsNewestFirst(outputs)
	return resourceJSON(request, unreadItemsURI, len(outputs), outputs)
}

func (s *Server) handleStatsResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stats, err := s.calculateStats()
	if err != nil {
		return nil, fmt.Errorf("failed to calculate stats: %w", err)
	}
	return resourceJSON(request, statsURI, len(stats.ByFeed), stats)
}

func resourceJSON(request mcp.ReadResourceRequest, uri string, count int, data any) ([]mcp.ResourceContents, error) {
	resourceData := ResourceData{
		Metadata: ResourceMetadata{
			Timestamp:   time.Now(),
			Count:       count,
			ResourceURI: uri,
		},
		Data: data,
		Links: map[string]string{
			"feeds":        feedsURI,
			"unread_items": unreadItemsURI,
			"stats":        statsURI,
		},
	}

	jsonBytes, err := json.MarshalIndent(resourceData, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource data: %w", err)
	}

	responseURI := request.Params.URI
	if responseURI == "" {
		responseURI = uri
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      responseURI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}

func sortOutputsNewestFirst(items []ItemOutput) {
	sort.SliceStable(items, func(i, j int) bool {
		return newer(items[i].PublishedAt, items[j].PublishedAt)
	})
}

// StatsData is the payload of the stats resource.
type StatsData struct {
	Summary   StatsSummary `json:"summary"`
	ByFeed    []FeedStats  `json:"by_feed"`
	LastFetch *FetchInfo   `json:"last_fetch,omitempty"`
}

// StatsSummary totals the whole cache.
type StatsSummary struct {
	TotalFeeds  int `json:"total_feeds"`
	TotalItems  int `json:"total_items"`
	UnreadCount int `json:"unread_count"`
}

// FeedStats holds one feed's counts.
type FeedStats struct {
	FeedURL     string     `json:"feed_url"`
	FeedTitle   string     `json:"feed_title"`
	ItemCount   int        `json:"item_count"`
	UnreadCount int        `json:"unread_count"`
	LastFetched *time.Time `json:"last_fetched,omitempty"`
	ErrorCount  int        `json:"error_count"`
	HasErrors   bool       `json:"has_errors"`
}

// FetchInfo names the most recently fetched feed.
type FetchInfo struct {
	LastFetchedAt *time.Time `json:"last_fetched_at"`
	FeedURL       string     `json:"feed_url"`
	FeedTitle     string     `json:"feed_title"`
}

func (s *Server) calculateStats() (*StatsData, error) {
	feedStats, err := s.store.FeedStats()
	if err != nil {
		return nil, fmt.Errorf("failed to get feed stats: %w", err)
	}

	stats := &StatsData{ByFeed: make([]FeedStats, 0, len(feedStats))}
	for _, stat := range feedStats {
		title := stat.FeedTitle
		if title == "" {
			title = stat.FeedURL
		}
		stats.ByFeed = append(stats.ByFeed, FeedStats{
			FeedURL:     stat.FeedURL,
			FeedTitle:   title,
			ItemCount:   stat.ItemCount,
			UnreadCount: stat.UnreadCount,
			LastFetched: stat.LastFetchedAt,
			ErrorCount:  stat.ErrorCount,
			HasErrors:   stat.LastError != nil,
		})
		stats.Summary.TotalFeeds++
		stats.Summary.TotalItems += stat.ItemCount
		stats.Summary.UnreadCount += stat.UnreadCount

		if stat.LastFetchedAt != nil {
			if stats.LastFetch == nil || stat.LastFetchedAt.After(*stats.LastFetch.LastFetchedAt) {
				stats.LastFetch = &FetchInfo{
					LastFetchedAt: stat.LastFetchedAt,
					FeedURL:       stat.FeedURL,
					FeedTitle:     title,
				}
			}
		}
	}
	return stats, nil
}
