// ABOUTME: Import command adding the rss outlines of an OPML file to the URL file
// ABOUTME: Shared with the -i root flag; the list is persisted once per import

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file.opml>",
	Short: "Import feeds from an OPML file",
	Long: `Add every outline with type="rss" and an xmlUrl to the feed URL file.

Outlines are visited depth first, so nested folders keep their document
order. URLs that are already subscribed are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return importFile(cmd, args[0])
	},
}

func importFile(cmd *cobra.Command, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open opml: %w", err)
	}
	defer f.Close()

	added, err := rt.ctrl.ImportOPML(f)
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}

	out := cmd.OutOrStdout()
	for _, url := range added {
		fmt.Fprintf(out, "  + %s\n", url)
	}
	fmt.Fprintf(out, "Imported %d feed(s).\n", len(added))
	return nil
}

func init() {
	rootCmd.AddCommand(importCmd)
}
