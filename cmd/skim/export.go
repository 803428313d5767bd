// ABOUTME: Export command for writing the subscribed feeds as OPML to stdout
// ABOUTME: Feeds are internalized first so cached titles appear in the outlines

package main

import (
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export OPML to stdout",
	Long:  "Export the current feed list in OPML format to standard output",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := start(cmd); err != nil {
			return err
		}
		return rt.ctrl.ExportOPML(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
