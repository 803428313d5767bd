// ABOUTME: MCP server command for skim CLI
// ABOUTME: Starts stdio-based MCP server for AI agent integration

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/skim/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI agents",
	Long: `Start the Model Context Protocol (MCP) server on stdio.

This allows AI agents like Claude to list feeds and items, read articles,
track read state, reload feeds and search the cache through structured tools.

The server communicates via JSON-RPC on stdin/stdout. Diagnostics go to
the log file, never to stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := start(cmd); err != nil {
			return err
		}

		server := mcp.NewServer(rt.ctrl, rt.store, Version)
		rt.logger.Info("mcp server starting")
		if err := server.ServeStdio(); err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
