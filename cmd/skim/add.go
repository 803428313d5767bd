// ABOUTME: Add command subscribing to a feed, with autodiscovery from web pages
// ABOUTME: Appends the resolved feed URL to the URL file and internalizes it

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/skim/internal/discover"
	"github.com/harper/skim/internal/fetch"
)

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Subscribe to a feed",
	Long: `Add a feed URL to the subscription list.

If the URL is a web page rather than a feed, skim looks for a linked
RSS/Atom feed and common feed paths. Use --no-discover to add the URL as is.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := args[0]
		noDiscover, _ := cmd.Flags().GetBool("no-discover")
		out := cmd.OutOrStdout()

		if !noDiscover {
			fmt.Fprintf(out, "Discovering feed at %s...\n", url)
			client := fetch.NewClient(rt.cfg.GetUserAgent(), rt.cfg.GetHTTPTimeout())
			found, err := discover.Discover(cmd.Context(), client, url)
			if err != nil {
				return fmt.Errorf("discover feed: %w", err)
			}
			if found.URL != url {
				fmt.Fprintf(out, "Found feed: %s\n", found.URL)
			}
			if found.Title != "" {
				fmt.Fprintf(out, "  %s (%d items)\n", found.Title, found.ItemCount)
			}
			url = found.URL
		}

		added, err := rt.ctrl.AddFeed(url)
		if err != nil {
			return fmt.Errorf("add feed: %w", err)
		}
		if !added {
			fmt.Fprintf(out, "Already subscribed: %s\n", url)
			return nil
		}
		fmt.Fprintf(out, "Added feed: %s\n", url)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().Bool("no-discover", false, "add the URL without feed autodiscovery")
}
