// ABOUTME: Tests for MCP server tools and resources
// ABOUTME: Drives handlers directly against a real controller and SQLite cache

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harper/skim/internal/app"
	"github.com/harper/skim/internal/models"
	"github.com/harper/skim/internal/reconcile"
	"github.com/harper/skim/internal/storage"
	"github.com/harper/skim/internal/subscriptions"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	goodFeed = "https://good.example.com/feed.xml"
	badFeed  = "https://bad.example.com/feed.xml"
)

type fetcherFunc func(ctx context.Context, ref *models.Feed) (*models.Feed, error)

func (f fetcherFunc) Fetch(ctx context.Context, ref *models.Feed) (*models.Feed, error) {
	return f(ctx, ref)
}

func testFeed(url, title string, titles ...string) *models.Feed {
	feed := models.NewFeed(url)
	feed.Title = title
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	for i, t := range titles {
		it := models.NewItem(url, strings.ToLower(t), t)
		it.GUID = t
		it.Body = "<p>About <b>" + t + "</b></p>"
		published := base.Add(-time.Duration(i) * time.Hour)
		it.PublishedAt = &published
		feed.Items = append(feed.Items, *it)
	}
	return feed
}

// Test helpers

func setupTestServer(t *testing.T) (*Server, storage.Store) {
	t.Helper()

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	engine := reconcile.New(store)
	if _, err := engine.Externalize(testFeed(goodFeed, "Good Feed", "Alpha", "Beta")); err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}

	fetcher := fetcherFunc(func(_ context.Context, ref *models.Feed) (*models.Feed, error) {
		if ref.URL == goodFeed {
			return testFeed(goodFeed, "Good Feed", "Gamma", "Alpha", "Beta"), nil
		}
		return nil, &app.FetchError{URL: ref.URL, Err: errors.New("503 Service Unavailable")}
	})

	ctrl := app.New(app.Options{
		Engine:        engine,
		Subscriptions: subscriptions.New([]string{goodFeed, badFeed}, nil),
		Fetcher:       fetcher,
	})
	if _, err := ctrl.Start(); err != nil {
		t.Fatalf("failed to start controller: %v", err)
	}
	return NewServer(ctrl, store, "test"), store
}

func intPtr(i int) *int {
	return &i
}

func boolPtr(b bool) *bool {
	return &b
}

func strPtr(s string) *string {
	return &s
}

// marshalToMap converts a struct to map[string]interface{} for test input
func marshalToMap(t *testing.T, v interface{}) map[string]interface{} {
	t.Helper()
	inputJSON, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal input: %v", err)
	}
	var inputMap map[string]interface{}
	if err := json.Unmarshal(inputJSON, &inputMap); err != nil {
		t.Fatalf("failed to unmarshal to map: %v", err)
	}
	return inputMap
}

func request(t *testing.T, input interface{}) mcp.CallToolRequest {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = marshalToMap(t, input)
	return req
}

func decodeResult(t *testing.T, result *mcp.CallToolResult, out interface{}) {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("expected content in result")
	}
	textContent, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	if err := json.Unmarshal([]byte(textContent.Text), out); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
}

// Tool tests

func TestHandleListFeeds(t *testing.T) {
	server, _ := setupTestServer(t)

	result, err := server.handleListFeeds(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("handleListFeeds failed: %v", err)
	}

	var output ListFeedsOutput
	decodeResult(t, result, &output)
	if output.Count != 2 {
		t.Fatalf("expected 2 feeds, got %d", output.Count)
	}
	if output.Feeds[0].URL != goodFeed || output.Feeds[1].URL != badFeed {
		t.Errorf("expected subscription order, got %q then %q", output.Feeds[0].URL, output.Feeds[1].URL)
	}
	if output.Feeds[0].ItemCount != 2 || output.Feeds[0].UnreadCount != 2 {
		t.Errorf("expected 2/2 items for cached feed, got %d/%d", output.Feeds[0].UnreadCount, output.Feeds[0].ItemCount)
	}
}

func TestHandleListItems_Filters(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	_, err := server.handleMarkRead(ctx, request(t, ItemRefInput{FeedURL: goodFeed, ItemID: "alpha"}))
	if err != nil {
		t.Fatalf("handleMarkRead failed: %v", err)
	}

	result, err := server.handleListItems(ctx, request(t, ListItemsInput{UnreadOnly: boolPtr(true)}))
	if err != nil {
		t.Fatalf("handleListItems failed: %v", err)
	}
	var output ListItemsOutput
	decodeResult(t, result, &output)
	if output.Count != 1 || output.Items[0].ID != "beta" {
		t.Errorf("expected only beta unread, got %+v", output.Items)
	}

	result, err = server.handleListItems(ctx, request(t, ListItemsInput{Since: strPtr("2024-06-01T08:30:00Z")}))
	if err != nil {
		t.Fatalf("handleListItems failed: %v", err)
	}
	decodeResult(t, result, &output)
	if output.Count != 1 || output.Items[0].ID != "alpha" {
		t.Errorf("expected only alpha after cutoff, got %+v", output.Items)
	}

	result, err = server.handleListItems(ctx, request(t, ListItemsInput{FeedURL: strPtr(goodFeed), Limit: intPtr(1)}))
	if err != nil {
		t.Fatalf("handleListItems failed: %v", err)
	}
	decodeResult(t, result, &output)
	if output.Count != 1 {
		t.Errorf("expected limit to apply, got %d items", output.Count)
	}
}

func TestHandleListItems_InvalidInput(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input ListItemsInput
		want  string
	}{
		{"negative limit", ListItemsInput{Limit: intPtr(-5)}, "limit must be non-negative, got -5"},
		{"bad since", ListItemsInput{Since: strPtr("not-a-date")}, "invalid since"},
		{"unknown feed", ListItemsInput{FeedURL: strPtr("https://nowhere.example.com/")}, "feed not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := server.handleListItems(ctx, request(t, tt.input))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if result != nil {
				t.Errorf("expected nil result, got %v", result)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %q, want it to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestHandleGetItem(t *testing.T) {
	server, _ := setupTestServer(t)

	result, err := server.handleGetItem(context.Background(), request(t, ItemRefInput{FeedURL: goodFeed, ItemID: "beta"}))
	if err != nil {
		t.Fatalf("handleGetItem failed: %v", err)
	}
	var output GetItemOutput
	decodeResult(t, result, &output)
	if output.Title != "Beta" || output.FeedTitle != "Good Feed" {
		t.Errorf("got title %q feed %q", output.Title, output.FeedTitle)
	}
	if !strings.Contains(output.Content, "**Beta**") {
		t.Errorf("expected markdown content, got %q", output.Content)
	}
	if !output.Unread {
		t.Error("expected get_item to leave the item unread")
	}
}

func TestHandleItemTools_NotFound(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	_, err := server.handleGetItem(ctx, request(t, ItemRefInput{FeedURL: goodFeed, ItemID: "missing"}))
	if err == nil || err.Error() != "item not found: missing" {
		t.Errorf("unexpected error: %v", err)
	}
	_, err = server.handleMarkRead(ctx, request(t, ItemRefInput{FeedURL: "https://nowhere.example.com/", ItemID: "alpha"}))
	if err == nil || !strings.HasPrefix(err.Error(), "feed not found") {
		t.Errorf("unexpected error: %v", err)
	}
	_, err = server.handleMarkUnread(ctx, request(t, ItemRefInput{FeedURL: goodFeed}))
	if err == nil || err.Error() != "feed_url and item_id are required" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestHandleMarkReadSurvivesReload(t *testing.T) {
	server, store := setupTestServer(t)
	ctx := context.Background()

	result, err := server.handleMarkRead(ctx, request(t, ItemRefInput{FeedURL: goodFeed, ItemID: "alpha"}))
	if err != nil {
		t.Fatalf("handleMarkRead failed: %v", err)
	}
	var item ItemOutput
	decodeResult(t, result, &item)
	if item.Unread {
		t.Error("expected item to be read")
	}

	if _, err := server.handleReloadFeed(ctx, request(t, ReloadFeedInput{URL: strPtr(goodFeed)})); err != nil {
		t.Fatalf("handleReloadFeed failed: %v", err)
	}

	items, err := store.GetItems(goodFeed)
	if err != nil {
		t.Fatalf("GetItems failed: %v", err)
	}
	for _, it := range items {
		if it.Identity == "alpha" && it.Unread {
			t.Error("expected alpha to stay read after reload")
		}
		if it.Identity == "gamma" && !it.Unread {
			t.Error("expected new item gamma to be unread")
		}
	}

	if _, err := server.handleMarkUnread(ctx, request(t, ItemRefInput{FeedURL: goodFeed, ItemID: "alpha"})); err != nil {
		t.Fatalf("handleMarkUnread failed: %v", err)
	}
	items, _ = store.GetItems(goodFeed)
	for _, it := range items {
		if it.Identity == "alpha" && !it.Unread {
			t.Error("expected alpha to be unread again")
		}
	}
}

func TestHandleReloadFeed_All(t *testing.T) {
	server, _ := setupTestServer(t)

	result, err := server.handleReloadFeed(context.Background(), request(t, ReloadFeedInput{}))
	if err != nil {
		t.Fatalf("handleReloadFeed failed: %v", err)
	}
	var output ReloadFeedOutput
	decodeResult(t, result, &output)

	if output.TotalFeeds != 2 || output.TotalErrors != 1 {
		t.Fatalf("expected 2 feeds with 1 error, got %d/%d", output.TotalFeeds, output.TotalErrors)
	}
	if output.Results[0].ItemCount != 3 || output.Results[0].Error != nil {
		t.Errorf("expected good feed to load 3 items, got %+v", output.Results[0])
	}
	if output.Results[1].Error == nil || !strings.Contains(*output.Results[1].Error, "503") {
		t.Errorf("expected bad feed error, got %+v", output.Results[1])
	}
}

func TestHandleReloadFeed_UnknownURL(t *testing.T) {
	server, _ := setupTestServer(t)

	_, err := server.handleReloadFeed(context.Background(), request(t, ReloadFeedInput{URL: strPtr("https://nowhere.example.com/")}))
	if err == nil || !strings.HasPrefix(err.Error(), "feed not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestHandleSearchItems(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	result, err := server.handleSearchItems(ctx, request(t, SearchItemsInput{Query: "beta"}))
	if err != nil {
		t.Fatalf("handleSearchItems failed: %v", err)
	}
	var output SearchItemsOutput
	decodeResult(t, result, &output)
	if output.Count != 1 || output.Items[0].ID != "beta" {
		t.Errorf("expected one match for beta, got %+v", output.Items)
	}

	if _, err := server.handleSearchItems(ctx, request(t, SearchItemsInput{Query: "  "})); err == nil {
		t.Error("expected error for empty query")
	}
	if _, err := server.handleSearchItems(ctx, request(t, SearchItemsInput{Query: "beta", Limit: intPtr(0)})); err == nil {
		t.Error("expected error for zero limit")
	}
}

// Resource tests

func readResource(t *testing.T, handler func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error)) ResourceData {
	t.Helper()
	contents, err := handler(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("resource handler failed: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content block, got %d", len(contents))
	}
	text, ok := contents[0].(*mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var data ResourceData
	if err := json.Unmarshal([]byte(text.Text), &data); err != nil {
		t.Fatalf("failed to parse resource: %v", err)
	}
	return data
}

func TestFeedsResource(t *testing.T) {
	server, _ := setupTestServer(t)

	data := readResource(t, server.handleFeedsResource)
	if data.Metadata.ResourceURI != "skim://feeds" || data.Metadata.Count != 2 {
		t.Errorf("unexpected metadata: %+v", data.Metadata)
	}
}

func TestUnreadItemsResource(t *testing.T) {
	server, _ := setupTestServer(t)
	if _, err := server.handleMarkRead(context.Background(), request(t, ItemRefInput{FeedURL: goodFeed, ItemID: "beta"})); err != nil {
		t.Fatalf("handleMarkRead failed: %v", err)
	}

	data := readResource(t, server.handleUnreadItemsResource)
	if data.Metadata.Count != 1 {
		t.Errorf("expected 1 unread item, got %d", data.Metadata.Count)
	}
}

func TestCalculateStats(t *testing.T) {
	server, _ := setupTestServer(t)
	if _, err := server.handleReloadFeed(context.Background(), request(t, ReloadFeedInput{})); err != nil {
		t.Fatalf("handleReloadFeed failed: %v", err)
	}

	stats, err := server.calculateStats()
	if err != nil {
		t.Fatalf("calculateStats failed: %v", err)
	}
	if stats.Summary.TotalFeeds != 2 || stats.Summary.TotalItems != 3 || stats.Summary.UnreadCount != 3 {
		t.Errorf("unexpected summary: %+v", stats.Summary)
	}
	if stats.LastFetch == nil || stats.LastFetch.FeedURL != goodFeed {
		t.Errorf("expected last fetch to be the good feed, got %+v", stats.LastFetch)
	}

	var failing *FeedStats
	for i := range stats.ByFeed {
		if stats.ByFeed[i].FeedURL == badFeed {
			failing = &stats.ByFeed[i]
		}
	}
	if failing == nil || !failing.HasErrors || failing.FeedTitle != badFeed {
		t.Errorf("expected failing feed row titled by URL, got %+v", failing)
	}
}

func TestNewServer(t *testing.T) {
	server, _ := setupTestServer(t)
	if server.mcpServer == nil {
		t.Fatal("expected mcp server to be created")
	}
}
