// ABOUTME: Root Cobra command, global flags and the shared runtime environment
// ABOUTME: Opens config, log, cache and subscription list, then runs the reader by default

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/harper/skim/internal/app"
	"github.com/harper/skim/internal/config"
	"github.com/harper/skim/internal/fetch"
	"github.com/harper/skim/internal/logging"
	"github.com/harper/skim/internal/reconcile"
	"github.com/harper/skim/internal/storage"
	"github.com/harper/skim/internal/subscriptions"
	"github.com/harper/skim/internal/tui"
)

const skipEnv = "skipEnv"

var (
	urlFilePath string
	cachePath   string
	backendName string
	debugLog    bool
	importPath  string
	exportOPML  bool
)

// env is the runtime shared by every command that touches the cache.
type env struct {
	cfg     *config.Config
	store   storage.Store
	logger  *log.Logger
	ctrl    *app.Controller
	closers []io.Closer
}

var rt *env

func (e *env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

var rootCmd = &cobra.Command{
	Use:   "skim",
	Short: "Terminal RSS/Atom feed reader",
	Long: `
███████╗██╗  ██╗██╗███╗   ███╗
██╔════╝██║ ██╔╝██║████╗ ████║
███████╗█████╔╝ ██║██╔████╔██║
╚════██║██╔═██╗ ██║██║╚██╔╝██║
███████║██║  ██╗██║██║ ╚═╝ ██║
╚══════╝╚═╝  ╚═╝╚═╝╚═╝     ╚═╝

Terminal feed reader for humans and AI agents.

Reads feed URLs from a plain text file, keeps items and read state in a
local cache, and exposes the same cache over MCP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipEnv] == "true" {
			return nil
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err = openEnv(cfg)
		return err
	},
	RunE: runReader,
}

// Execute runs the root command and releases the environment afterwards,
// also when a command fails.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	clearContexts(rootCmd)
	if rt != nil {
		if closeErr := rt.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close: %w", closeErr)
		}
		rt = nil
	}
	return err
}

// clearContexts drops the finished run's context from cmd and its
// subcommands. cobra only hands a command a new context when it has none.
func clearContexts(cmd *cobra.Command) {
	cmd.SetContext(nil) //nolint:staticcheck // nil resets to "no context yet"
	for _, sub := range cmd.Commands() {
		clearContexts(sub)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&urlFilePath, "urls", "u", "", "feed URL file (default: ~/.config/skim/urls)")
	rootCmd.PersistentFlags().StringVarP(&cachePath, "cache", "c", "", "cache location (default: inside the data directory)")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "", "storage backend: sqlite or badger (default: from config)")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "write debug messages to the log file")

	rootCmd.Flags().StringVarP(&importPath, "import", "i", "", "import feeds from an OPML file and exit")
	rootCmd.Flags().BoolVarP(&exportOPML, "export", "e", false, "export feeds as OPML to stdout and exit")
	rootCmd.MarkFlagsMutuallyExclusive("import", "export")
}

// loadConfig reads config.yaml and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if urlFilePath != "" {
		cfg.URLFile = urlFilePath
	}
	if cachePath != "" {
		cfg.CacheFile = cachePath
	}
	if backendName != "" {
		cfg.Backend = backendName
	}
	if debugLog {
		cfg.Debug = true
	}
	return cfg, nil
}

// openEnv wires the log, cache, subscription list and controller.
func openEnv(cfg *config.Config) (*env, error) {
	e := &env{cfg: cfg}

	logPath, err := config.LogPath()
	if err != nil {
		return nil, err
	}
	logger, logFile, err := logging.Open(logPath, cfg.Debug)
	if err != nil {
		return nil, err
	}
	e.logger = logger
	e.closers = append(e.closers, logFile)

	store, err := cfg.OpenStorage()
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}
	e.store = store
	e.closers = append(e.closers, store)

	urlPath, err := cfg.GetURLFile()
	if err != nil {
		e.Close()
		return nil, err
	}
	urlFile := config.NewURLFile(urlPath)
	urls, err := urlFile.Load()
	if err != nil {
		e.Close()
		return nil, err
	}

	client := fetch.NewClient(cfg.GetUserAgent(), cfg.GetHTTPTimeout())
	e.ctrl = app.New(app.Options{
		Engine:        reconcile.New(store),
		Subscriptions: subscriptions.New(urls, urlFile),
		Fetcher:       app.NewHTTPFetcher(client),
		Logger:        logger,
	})
	logger.Debug("environment ready", "backend", cfg.GetBackend(), "urls", urlPath, "feeds", len(urls))
	return e, nil
}

// start internalizes the subscribed feeds, turning an empty list into
// usage guidance.
func start(cmd *cobra.Command) error {
	if _, err := rt.ctrl.Start(); err != nil {
		if errors.Is(err, app.ErrNoURLs) {
			urlPath, _ := rt.cfg.GetURLFile()
			fmt.Fprintf(cmd.ErrOrStderr(), "No feeds configured. Add feed URLs to %s, one per line,\n", urlPath)
			fmt.Fprintln(cmd.ErrOrStderr(), "or run 'skim add <url>' or 'skim -i <file.opml>'.")
		}
		return err
	}
	return nil
}

func runReader(cmd *cobra.Command, args []string) error {
	if importPath != "" {
		return importFile(cmd, importPath)
	}

	if exportOPML {
		if err := start(cmd); err != nil {
			return err
		}
		return rt.ctrl.ExportOPML(cmd.OutOrStdout())
	}

	fmt.Fprint(cmd.OutOrStdout(), "Loading articles from cache...")
	if err := start(cmd); err != nil {
		fmt.Fprintln(cmd.OutOrStdout())
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "done.")

	return tui.RunReader(cmd.Context(), rt.ctrl)
}
