// ABOUTME: MCP tool definitions and handlers for feeds and items
// ABOUTME: Read state changes and reloads go through the controller so the cache stays consistent

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harper/skim/internal/app"
	"github.com/harper/skim/internal/config"
	"github.com/harper/skim/internal/content"
	"github.com/harper/skim/internal/models"
	"github.com/harper/skim/internal/timeutil"
	"github.com/mark3labs/mcp-go/mcp"
)

// Type definitions for input/output structures

type FeedOutput struct {
	URL           string     `json:"url"`
	Title         string     `json:"title,omitempty"`
	ItemCount     int        `json:"item_count"`
	UnreadCount   int        `json:"unread_count"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
	LastError     *string    `json:"last_error,omitempty"`
	ErrorCount    int        `json:"error_count"`
}

type ListFeedsOutput struct {
	Feeds []FeedOutput `json:"feeds"`
	Count int          `json:"count"`
}

type ListItemsInput struct {
	FeedURL    *string `json:"feed_url,omitempty"`
	UnreadOnly *bool   `json:"unread_only,omitempty"`
	Since      *string `json:"since,omitempty"`
	Limit      *int    `json:"limit,omitempty"`
}

type ItemOutput struct {
	ID          string     `json:"id"`
	FeedURL     string     `json:"feed_url"`
	Title       string     `json:"title,omitempty"`
	Link        string     `json:"link,omitempty"`
	Author      string     `json:"author,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Unread      bool       `json:"unread"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

type ListItemsOutput struct {
	Items   []ItemOutput   `json:"items"`
	Count   int            `json:"count"`
	Filters map[string]any `json:"filters"`
}

type ItemRefInput struct {
	FeedURL string `json:"feed_url"`
	ItemID  string `json:"item_id"`
}

type GetItemOutput struct {
	ItemOutput
	FeedTitle string `json:"feed_title,omitempty"`
	Content   string `json:"content,omitempty"`
}

type ReloadFeedInput struct {
	URL *string `json:"url,omitempty"`
}

type ReloadResult struct {
	URL         string  `json:"url"`
	Title       string  `json:"title,omitempty"`
	ItemCount   int     `json:"item_count"`
	UnreadCount int     `json:"unread_count"`
	Error       *string `json:"error,omitempty"`
}

type ReloadFeedOutput struct {
	Results     []ReloadResult `json:"results"`
	TotalFeeds  int            `json:"total_feeds"`
	TotalErrors int            `json:"total_errors"`
}

type SearchItemsInput struct {
	Query string `json:"query"`
	Limit *int   `json:"limit,omitempty"`
}

type SearchItemsOutput struct {
	Items []ItemOutput `json:"items"`
	Count int          `json:"count"`
	Query string       `json:"query"`
}

// Tool registration

func (s *Server) registerTools() {
	s.registerListFeedsTool()
	s.registerListItemsTool()
	s.registerGetItemTool()
	s.registerMarkReadTool()
	s.registerMarkUnreadTool()
	s.registerReloadFeedTool()
	s.registerSearchItemsTool()
}

func (s *Server) registerListFeedsTool() {
	tool := mcp.Tool{
		Name:        "list_feeds",
		Description: "Retrieve every subscribed RSS/Atom feed in subscription order, with cached item and unread counts, last fetch time and error state. Use this first to find feed URLs for the other tools.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
	s.mcpServer.AddTool(tool, s.handleListFeeds)
}

func (s *Server) registerListItemsTool() {
	tool := mcp.Tool{
		Name:        "list_items",
		Description: "List cached items, newest first. Filter by feed_url for a single feed, unread_only for unread items, and since with 'today', 'yesterday', 'week', 'month' or YYYY-MM-DD. Use get_item to read the full content.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"feed_url": map[string]interface{}{
					"type":        "string",
					"description": "Optional feed URL. Example: 'https://example.com/feed.xml'",
				},
				"unread_only": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, returns only unread items",
				},
				"since": map[string]interface{}{
					"type":        "string",
					"description": "Only items published on or after this date. Accepts 'today', 'yesterday', 'week', 'month', YYYY-MM-DD or RFC3339",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": fmt.Sprintf("Maximum number of items to return. Default: %d", config.DefaultListLimit),
				},
			},
		},
	}
	s.mcpServer.AddTool(tool, s.handleListItems)
}

func (s *Server) registerGetItemTool() {
	tool := mcp.Tool{
		Name:        "get_item",
		Description: "Get a single item with its content converted from HTML to Markdown. Does not change the read state; call mark_read afterwards if the item was read.",
		InputSchema: itemRefSchema(),
	}
	s.mcpServer.AddTool(tool, s.handleGetItem)
}

func (s *Server) registerMarkReadTool() {
	tool := mcp.Tool{
		Name:        "mark_read",
		Description: "Mark an item as read. The read state is kept across later reloads of the feed.",
		InputSchema: itemRefSchema(),
	}
	s.mcpServer.AddTool(tool, s.handleMarkRead)
}

func (s *Server) registerMarkUnreadTool() {
	tool := mcp.Tool{
		Name:        "mark_unread",
		Description: "Mark an item as unread again.",
		InputSchema: itemRefSchema(),
	}
	s.mcpServer.AddTool(tool, s.handleMarkUnread)
}

func (s *Server) registerReloadFeedTool() {
	tool := mcp.Tool{
		Name:        "reload_feed",
		Description: "Fetch a feed from upstream and merge new items into the cache. Without url, reloads every feed in order; a failing feed does not stop the others. Uses ETag and Last-Modified to skip unchanged feeds.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"url": map[string]interface{}{
					"type":        "string",
					"description": "Optional feed URL to reload. If omitted, reloads all feeds",
				},
			},
		},
	}
	s.mcpServer.AddTool(tool, s.handleReloadFeed)
}

func (s *Server) registerSearchItemsTool() {
	tool := mcp.Tool{
		Name:        "search_items",
		Description: "Search cached item titles and bodies. Returns matching items across all feeds.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search terms. Example: 'golang generics'",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": fmt.Sprintf("Maximum number of results. Default: %d", config.DefaultSearchLimit),
				},
			},
			Required: []string{"query"},
		},
	}
	s.mcpServer.AddTool(tool, s.handleSearchItems)
}

func itemRefSchema() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"feed_url": map[string]interface{}{
				"type":        "string",
				"description": "The feed URL the item belongs to",
			},
			"item_id": map[string]interface{}{
				"type":        "string",
				"description": "The item id as returned by list_items",
			},
		},
		Required: []string{"feed_url", "item_id"},
	}
}

// Handler implementations

func (s *Server) handleListFeeds(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	feeds := s.ctrl.Feeds()
	output := ListFeedsOutput{
		Feeds: make([]FeedOutput, 0, len(feeds)),
		Count: len(feeds),
	}
	for i := range feeds {
		output.Feeds = append(output.Feeds, toFeedOutput(&feeds[i]))
	}
	return jsonResult(output)
}

func (s *Server) handleListItems(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ListItemsInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	limit := config.DefaultListLimit
	if input.Limit != nil {
		if *input.Limit < 0 {
			return nil, fmt.Errorf("limit must be non-negative, got %d", *input.Limit)
		}
		limit = *input.Limit
	}

	filters := map[string]any{"limit": limit}
	var since *time.Time
	if input.Since != nil {
		t, err := timeutil.ParseSince(*input.Since)
		if err != nil {
			return nil, fmt.Errorf("invalid since: %w", err)
		}
		since = &t
		filters["since"] = t
	}
	unreadOnly := input.UnreadOnly != nil && *input.UnreadOnly
	if unreadOnly {
		filters["unread_only"] = true
	}

	feeds := s.ctrl.Feeds()
	if input.FeedURL != nil {
		filters["feed_url"] = *input.FeedURL
		idx := -1
		for i := range feeds {
			if feeds[i].URL == *input.FeedURL {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("feed not found: %s", *input.FeedURL)
		}
		feeds = feeds[idx : idx+1]
	}

	var items []models.Item
	for i := range feeds {
		for _, item := range feeds[i].Items {
			if unreadOnly && !item.Unread {
				continue
			}
			if since != nil && (item.PublishedAt == nil || item.PublishedAt.Before(*since)) {
				continue
			}
			items = append(items, item)
		}
	}
	if input.FeedURL == nil {
		sortNewestFirst(items)
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	output := ListItemsOutput{
		Items:   make([]ItemOutput, 0, len(items)),
		Filters: filters,
	}
	for i := range items {
		output.Items = append(output.Items, toItemOutput(&items[i]))
	}
	output.Count = len(output.Items)
	return jsonResult(output)
}

func (s *Server) handleGetItem(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := bindItemRef(req)
	if err != nil {
		return nil, err
	}

	item, err := s.ctrl.Item(input.FeedURL, input.ItemID)
	if err != nil {
		return nil, itemError(input, err)
	}

	output := GetItemOutput{
		ItemOutput: toItemOutput(&item),
		Content:    content.ToMarkdown(item.Body),
	}
	if pos, ok := s.ctrl.FindFeed(input.FeedURL); ok {
		feeds := s.ctrl.Feeds()
		if pos < len(feeds) {
			output.FeedTitle = feeds[pos].Title
		}
	}
	return jsonResult(output)
}

func (s *Server) handleMarkRead(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.markItem(req, false)
}

func (s *Server) handleMarkUnread(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.markItem(req, true)
}

func (s *Server) markItem(req mcp.CallToolRequest, unread bool) (*mcp.CallToolResult, error) {
	input, err := bindItemRef(req)
	if err != nil {
		return nil, err
	}
	item, err := s.ctrl.MarkItem(input.FeedURL, input.ItemID, unread)
	if err != nil {
		return nil, itemError(input, err)
	}
	return jsonResult(toItemOutput(&item))
}

func (s *Server) handleReloadFeed(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ReloadFeedInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	var urls map[string]bool
	if input.URL != nil {
		pos, ok := s.ctrl.FindFeed(*input.URL)
		if !ok {
			return nil, fmt.Errorf("feed not found: %s", *input.URL)
		}
		// Per-feed failures are recorded on the feed and reported below.
		_ = s.ctrl.Reload(ctx, pos)
		urls = map[string]bool{*input.URL: true}
	} else {
		_ = s.ctrl.ReloadAll(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("reload cancelled: %w", err)
	}

	var output ReloadFeedOutput
	for _, feed := range s.ctrl.Feeds() {
		if urls != nil && !urls[feed.URL] {
			continue
		}
		result := ReloadResult{
			URL:         feed.URL,
			Title:       feed.Title,
			ItemCount:   len(feed.Items),
			UnreadCount: feed.UnreadCount(),
			Error:       feed.LastError,
		}
		if result.Error != nil {
			output.TotalErrors++
		}
		output.Results = append(output.Results, result)
	}
	output.TotalFeeds = len(output.Results)
	return jsonResult(output)
}

func (s *Server) handleSearchItems(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input SearchItemsInput
	if err := req.BindArguments(&input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	limit := config.DefaultSearchLimit
	if input.Limit != nil {
		if *input.Limit <= 0 {
			return nil, fmt.Errorf("limit must be positive, got %d", *input.Limit)
		}
		limit = *input.Limit
	}

	items, err := s.store.Search(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search items: %w", err)
	}

	output := SearchItemsOutput{
		Items: make([]ItemOutput, 0, len(items)),
		Query: query,
	}
	for i := range items {
		output.Items = append(output.Items, toItemOutput(&items[i]))
	}
	output.Count = len(output.Items)
	return jsonResult(output)
}

// Helpers

func bindItemRef(req mcp.CallToolRequest) (ItemRefInput, error) {
	var input ItemRefInput
	if err := req.BindArguments(&input); err != nil {
		return input, fmt.Errorf("invalid input: %w", err)
	}
	if input.FeedURL == "" || input.ItemID == "" {
		return input, fmt.Errorf("feed_url and item_id are required")
	}
	return input, nil
}

func itemError(input ItemRefInput, err error) error {
	switch {
	case errors.Is(err, app.ErrInvalidFeed):
		return fmt.Errorf("feed not found: %s", input.FeedURL)
	case errors.Is(err, app.ErrInvalidItem):
		return fmt.Errorf("item not found: %s", input.ItemID)
	default:
		return fmt.Errorf("failed to update item: %w", err)
	}
}

func toFeedOutput(feed *models.Feed) FeedOutput {
	return FeedOutput{
		URL:           feed.URL,
		Title:         feed.Title,
		ItemCount:     len(feed.Items),
		UnreadCount:   feed.UnreadCount(),
		LastFetchedAt: feed.LastFetchedAt,
		LastError:     feed.LastError,
		ErrorCount:    feed.ErrorCount,
	}
}

func toItemOutput(item *models.Item) ItemOutput {
	return ItemOutput{
		ID:          item.Identity,
		FeedURL:     item.FeedURL,
		Title:       item.Title,
		Link:        item.Link,
		Author:      item.Author,
		PublishedAt: item.PublishedAt,
		Unread:      item.Unread,
		ReadAt:      item.ReadAt,
	}
}

// sortNewestFirst orders items across feeds by publish date; undated
// items go last.
func sortNewestFirst(items []models.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return newer(items[i].PublishedAt, items[j].PublishedAt)
	})
}

func newer(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a != nil && b == nil
	}
	return a.After(*b)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal output: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
