// ABOUTME: List command showing subscribed feeds with unread and total item counts
// ABOUTME: Feeds appear in subscription order with their last fetch error, if any

package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/skim/internal/config"
	"github.com/harper/skim/internal/content"
	"github.com/harper/skim/internal/timeutil"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "l"},
	Short:   "List feeds",
	Long:    "List subscribed feeds with unread/total counts, or the items of one feed with --feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		feedURL, _ := cmd.Flags().GetString("feed")
		limit, _ := cmd.Flags().GetInt("limit")

		if err := start(cmd); err != nil {
			return err
		}
		if feedURL != "" {
			return listItems(cmd, feedURL, limit)
		}

		faint := color.New(color.Faint).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		out := cmd.OutOrStdout()

		for _, feed := range rt.ctrl.Feeds() {
			fmt.Fprintf(out, "%3d/%-3d %s", feed.UnreadCount(), len(feed.Items), feed.DisplayTitle())
			if feed.Title != "" {
				fmt.Fprintf(out, " %s", faint(feed.URL))
			}
			fmt.Fprintln(out)
			if feed.LastError != nil {
				fmt.Fprintf(out, "        %s %s\n", red("✗"), *feed.LastError)
			}
		}
		return nil
	},
}

func listItems(cmd *cobra.Command, feedURL string, limit int) error {
	pos, ok := rt.ctrl.FindFeed(feedURL)
	if !ok {
		return fmt.Errorf("feed not found: %s", feedURL)
	}
	feed := rt.ctrl.Feeds()[pos]

	faint := color.New(color.Faint).SprintFunc()
	out := cmd.OutOrStdout()

	if len(feed.Items) == 0 {
		fmt.Fprintln(out, "No items found")
		return nil
	}
	now := time.Now()
	for i, item := range feed.Items {
		if limit > 0 && i >= limit {
			break
		}
		marker := " "
		if item.Unread {
			marker = "●"
		}
		title := item.Title
		if title == "" {
			title = content.Excerpt(item.Body, config.SeparatorWidth)
		}
		fmt.Fprintf(out, "%s %s", marker, title)
		if item.PublishedAt != nil {
			fmt.Fprintf(out, " %s", faint(timeutil.Relative(*item.PublishedAt, now)))
		}
		fmt.Fprintln(out)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("feed", "f", "", "list the items of this feed URL")
	listCmd.Flags().IntP("limit", "n", config.DefaultListLimit, "max items to show with --feed")
}
