// ABOUTME: Search and compact commands working directly on the cache
// ABOUTME: Search matches item titles and bodies; compact reclaims disk space

package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/skim/internal/config"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search cached items",
	Long:  "Search the titles and bodies of cached items across all feeds.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			return fmt.Errorf("limit must be positive, got %d", limit)
		}
		query := strings.Join(args, " ")

		items, err := rt.store.Search(query, limit)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(items) == 0 {
			fmt.Fprintln(out, "No items found")
			return nil
		}

		faint := color.New(color.Faint).SprintFunc()
		for _, item := range items {
			marker := " "
			if item.Unread {
				marker = "●"
			}
			fmt.Fprintf(out, "%s %s", marker, item.Title)
			if item.PublishedAt != nil {
				fmt.Fprintf(out, " %s", faint(item.PublishedAt.Local().Format(config.DateFormatShort)))
			}
			fmt.Fprintf(out, "\n  %s\n", faint(item.FeedURL))
		}
		return nil
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Reclaim space in the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := rt.store.Compact(); err != nil {
			return fmt.Errorf("compact: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cache compacted.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(compactCmd)
	searchCmd.Flags().IntP("limit", "n", config.DefaultSearchLimit, "max results")
}
