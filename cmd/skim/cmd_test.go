// ABOUTME: Tests for CLI commands
// ABOUTME: Checks command structure and runs whole commands against temp config and data dirs

package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/harper/skim/internal/app"
	"github.com/harper/skim/internal/config"
	"github.com/harper/skim/internal/storage"
)

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "skim" {
		t.Errorf("expected Use to be 'skim', got %q", rootCmd.Use)
	}
	if rootCmd.Short == "" {
		t.Error("expected root command to have a short description")
	}
	for _, name := range []string{"urls", "cache", "backend", "debug"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("expected --%s persistent flag to exist", name)
		}
	}
	if f := rootCmd.Flags().Lookup("import"); f == nil || f.Shorthand != "i" {
		t.Error("expected -i/--import flag")
	}
	if f := rootCmd.Flags().Lookup("export"); f == nil || f.Shorthand != "e" {
		t.Error("expected -e/--export flag")
	}
}

func TestSubcommands(t *testing.T) {
	want := []string{"add", "compact", "export", "fetch", "import", "list", "mcp", "migrate", "search", "setup", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd == rootCmd {
			t.Errorf("expected subcommand %q", name)
		}
	}
}

func TestSkipEnvAnnotations(t *testing.T) {
	for _, cmd := range []*cobra.Command{versionCmd, setupCmd} {
		if cmd.Annotations[skipEnv] != "true" {
			t.Errorf("expected %s to skip opening the cache", cmd.Name())
		}
	}
	if listCmd.Annotations[skipEnv] == "true" {
		t.Error("expected list to open the cache")
	}
}

func TestMigrateCommand(t *testing.T) {
	if migrateCmd.Flags().Lookup("to") == nil {
		t.Error("expected --to flag to exist")
	}
	if migrateCmd.Flags().Lookup("force") == nil {
		t.Error("expected --force flag to exist")
	}
}

// Whole-command tests

type cli struct {
	dir     string
	urlFile string
}

func newCLI(t *testing.T, urls ...string) *cli {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))

	c := &cli{dir: dir, urlFile: filepath.Join(dir, "config", "skim", "urls")}
	if len(urls) > 0 {
		if err := config.NewURLFile(c.urlFile).SaveURLs(urls); err != nil {
			t.Fatalf("write url file: %v", err)
		}
	}
	return c
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func (c *cli) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := Execute()
	return out.String(), err
}

func rssServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Test Channel</title>
<item><guid>one</guid><title>First Post</title><description>Hello</description></item>
<item><guid>two</guid><title>Second Post</title><description>World</description></item>
</channel></rss>`)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestVersionCommand(t *testing.T) {
	c := newCLI(t)
	out, err := c.run(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "skim ") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestNoURLsShowsGuidance(t *testing.T) {
	c := newCLI(t)
	out, err := c.run(t, "list")
	if !errors.Is(err, app.ErrNoURLs) {
		t.Fatalf("expected ErrNoURLs, got %v", err)
	}
	if !strings.Contains(out, "No feeds configured") || !strings.Contains(out, c.urlFile) {
		t.Errorf("expected guidance naming the URL file, got %q", out)
	}
}

func TestExportFlagPrintsOnlyOPML(t *testing.T) {
	c := newCLI(t, "https://a.example.com/feed.xml", "https://b.example.com/rss")
	out, err := c.run(t, "-e")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !strings.HasPrefix(out, "<?xml") {
		t.Errorf("expected output to start with the XML header, got %q", out)
	}
	if strings.Contains(out, "Loading") {
		t.Error("expected nothing but OPML on stdout")
	}
	if !strings.Contains(out, `xmlUrl="https://a.example.com/feed.xml"`) || !strings.Contains(out, "skim - Exported Feeds") {
		t.Errorf("unexpected export: %s", out)
	}
}

func TestImportFlagAndList(t *testing.T) {
	c := newCLI(t)
	opmlPath := filepath.Join(c.dir, "feeds.opml")
	doc := `<?xml version="1.0"?>
<opml version="1.0"><body>
  <outline text="Tech">
    <outline type="rss" text="One" xmlUrl="https://one.example.com/rss"/>
  </outline>
  <outline type="rss" text="Two" xmlUrl="https://two.example.com/rss"/>
  <outline type="link" text="Site" url="https://site.example.com/"/>
</body></opml>`
	if err := os.WriteFile(opmlPath, []byte(doc), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := c.run(t, "-i", opmlPath)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !strings.Contains(out, "Imported 2 feed(s).") {
		t.Errorf("unexpected import output: %q", out)
	}

	data, err := os.ReadFile(c.urlFile)
	if err != nil {
		t.Fatalf("read url file: %v", err)
	}
	if string(data) != "https://one.example.com/rss\nhttps://two.example.com/rss\n" {
		t.Errorf("unexpected url file: %q", data)
	}

	out, err = c.run(t, "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "0/0   https://one.example.com/rss") {
		t.Errorf("unexpected list output: %q", out)
	}
}

func TestFetchThenListItems(t *testing.T) {
	server := rssServer(t)
	good := server.URL + "/feed"
	bad := server.URL + "/broken"
	c := newCLI(t, good, bad)

	out, err := c.run(t, "fetch")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if !strings.Contains(out, "2 items, 2 new") {
		t.Errorf("expected new items for good feed, got %q", out)
	}
	if !strings.Contains(out, "1 errors") {
		t.Errorf("expected broken feed to be counted, got %q", out)
	}

	out, err = c.run(t, "fetch", good)
	if err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
	if !strings.Contains(out, "2 items, 0 new") {
		t.Errorf("expected no new items on refetch, got %q", out)
	}

	out, err = c.run(t, "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "Test Channel") || !strings.Contains(out, "500") {
		t.Errorf("expected title and recorded error, got %q", out)
	}

	out, err = c.run(t, "list", "--feed", good)
	if err != nil {
		t.Fatalf("list --feed failed: %v", err)
	}
	if !strings.Contains(out, "● First Post") || !strings.Contains(out, "● Second Post") {
		t.Errorf("expected unread items, got %q", out)
	}

	out, err = c.run(t, "search", "second")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !strings.Contains(out, "Second Post") || strings.Contains(out, "First Post") {
		t.Errorf("unexpected search output: %q", out)
	}
}

func TestFetchUnknownFeed(t *testing.T) {
	c := newCLI(t, "https://a.example.com/feed.xml")
	_, err := c.run(t, "fetch", "https://other.example.com/")
	if err == nil || !strings.Contains(err.Error(), "feed not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAddWithoutDiscovery(t *testing.T) {
	c := newCLI(t)
	out, err := c.run(t, "add", "--no-discover", "https://new.example.com/feed.xml")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if !strings.Contains(out, "Added feed: https://new.example.com/feed.xml") {
		t.Errorf("unexpected output: %q", out)
	}

	out, err = c.run(t, "add", "--no-discover", "https://new.example.com/feed.xml")
	if err != nil {
		t.Fatalf("second add failed: %v", err)
	}
	if !strings.Contains(out, "Already subscribed") {
		t.Errorf("expected duplicate to be reported, got %q", out)
	}
}

func TestAddWithDiscovery(t *testing.T) {
	server := rssServer(t)
	c := newCLI(t)
	out, err := c.run(t, "add", server.URL+"/feed")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if !strings.Contains(out, "Test Channel (2 items)") {
		t.Errorf("expected discovered feed details, got %q", out)
	}
}

func TestMigrateToBadger(t *testing.T) {
	server := rssServer(t)
	c := newCLI(t, server.URL+"/feed")
	if _, err := c.run(t, "fetch"); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	target := filepath.Join(c.dir, "cache.badger")
	out, err := c.run(t, "migrate", "--to", "badger", "--target", target)
	if err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(out, "Items:   2") {
		t.Errorf("unexpected migrate output: %q", out)
	}

	_, err = c.run(t, "migrate", "--to", "badger", "--target", target)
	if err == nil || !strings.Contains(err.Error(), "--force") {
		t.Errorf("expected refusal to overwrite, got %v", err)
	}

	dst, err := storage.Open(storage.BackendBadger, target)
	if err != nil {
		t.Fatalf("open migrated cache: %v", err)
	}
	defer dst.Close()
	items, err := dst.GetItems(server.URL + "/feed")
	if err != nil || len(items) != 2 {
		t.Errorf("expected 2 migrated items, got %d (%v)", len(items), err)
	}
}

func TestMigrationTarget(t *testing.T) {
	cfg := &config.Config{DataDir: "/data/skim"}

	if _, err := migrationTarget(cfg, "markdown", ""); err == nil {
		t.Error("expected invalid backend error")
	}
	if _, err := migrationTarget(cfg, "sqlite", ""); err == nil {
		t.Error("expected same-backend error")
	}
	got, err := migrationTarget(cfg, "badger", "")
	if err != nil {
		t.Fatalf("migrationTarget: %v", err)
	}
	if got != filepath.Join("/data/skim", "cache.badger") {
		t.Errorf("got %q", got)
	}
}

func TestCompact(t *testing.T) {
	c := newCLI(t)
	out, err := c.run(t, "compact")
	if err != nil {
		t.Fatalf("compact failed: %v", err)
	}
	if !strings.Contains(out, "Cache compacted.") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestRepeatedRunsGetAFreshContext(t *testing.T) {
	c := newCLI(t)
	if _, err := c.run(t, "version"); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	for _, name := range []string{"version", "fetch", "list"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil {
			t.Fatalf("find %s: %v", name, err)
		}
		if ctx := cmd.Context(); ctx != nil && ctx.Err() != nil {
			t.Errorf("%s kept the finished run's context: %v", name, ctx.Err())
		}
	}

	server := rssServer(t)
	c = newCLI(t, server.URL+"/feed")
	for i := 0; i < 3; i++ {
		out, err := c.run(t, "fetch")
		if err != nil {
			t.Fatalf("fetch %d failed: %v", i+1, err)
		}
		if strings.Contains(out, "canceled") {
			t.Fatalf("fetch %d saw a canceled context: %q", i+1, out)
		}
	}
}

func TestSearchLimitAndQuerySyntax(t *testing.T) {
	server := rssServer(t)
	c := newCLI(t, server.URL+"/feed")
	if _, err := c.run(t, "fetch"); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	for _, n := range []string{"0", "-3"} {
		_, err := c.run(t, "search", "-n", n, "post")
		if err == nil || !strings.Contains(err.Error(), "limit must be positive") {
			t.Errorf("-n %s: expected limit error, got %v", n, err)
		}
	}

	for _, q := range []string{"first-post", `"second`, "world*", "AND"} {
		if _, err := c.run(t, "search", q); err != nil {
			t.Errorf("search %q failed: %v", q, err)
		}
	}

	out, err := c.run(t, "search", "-n", "1", "post")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if strings.Count(out, "Post") != 1 {
		t.Errorf("expected exactly one result, got %q", out)
	}
}
