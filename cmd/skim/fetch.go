// ABOUTME: Fetch command reloading feeds headlessly with colored progress output
// ABOUTME: Failures are recorded on the feed and do not stop the remaining feeds

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/skim/internal/models"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Fetch new items from feeds",
	Long: `Reload all subscribed feeds, or a single feed by URL, without opening the reader.

Uses HTTP caching headers (ETag, Last-Modified) to avoid re-fetching unchanged
content. Read state of known items is kept; new items arrive unread.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := start(cmd); err != nil {
			return err
		}

		feeds := rt.ctrl.Feeds()
		positions := make([]int, 0, len(feeds))
		if len(args) == 1 {
			pos, ok := rt.ctrl.FindFeed(args[0])
			if !ok {
				return fmt.Errorf("feed not found: %s", args[0])
			}
			positions = append(positions, pos)
		} else {
			for i := range feeds {
				positions = append(positions, i)
			}
		}

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		out := cmd.OutOrStdout()

		totalNew, totalErrors := 0, 0
		for _, pos := range positions {
			before := feeds[pos]
			fmt.Fprintf(out, "Fetching %s... ", before.DisplayTitle())

			err := rt.ctrl.Reload(cmd.Context(), pos)
			if err != nil {
				fmt.Fprintf(out, "%s %s\n", red("✗"), err.Error())
				totalErrors++
				if cmd.Context().Err() != nil {
					break
				}
				continue
			}

			after := rt.ctrl.Feeds()[pos]
			added := newItemCount(&before, &after)
			totalNew += added
			fmt.Fprintf(out, "%s %d items, %d new\n", green("✓"), len(after.Items), added)
		}

		fmt.Fprintln(out)
		fmt.Fprintf(out, "Summary: %d feed(s) fetched\n", len(positions))
		if totalNew > 0 {
			fmt.Fprintf(out, "  %s %d new items\n", green("✓"), totalNew)
		}
		if totalErrors > 0 {
			fmt.Fprintf(out, "  %s %d errors\n", red("✗"), totalErrors)
		}
		return nil
	},
}

// newItemCount counts items in after whose identity was not in before.
func newItemCount(before, after *models.Feed) int {
	seen := make(map[string]bool, len(before.Items))
	for _, item := range before.Items {
		seen[item.Identity] = true
	}
	n := 0
	for _, item := range after.Items {
		if !seen[item.Identity] {
			n++
		}
	}
	return n
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
