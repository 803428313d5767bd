// ABOUTME: MCP server implementation for skim
// ABOUTME: Exposes the feed list, item read state, reloads and search to AI agents

package mcp

import (
	"github.com/harper/skim/internal/app"
	"github.com/harper/skim/internal/storage"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the MCP server with skim-specific context
type Server struct {
	mcpServer *server.MCPServer
	ctrl      *app.Controller
	store     storage.Store
}

// NewServer creates a new MCP server over a started controller and the
// store behind it.
func NewServer(ctrl *app.Controller, store storage.Store, version string) *Server {
	s := &Server{
		ctrl:  ctrl,
		store: store,
	}

	s.mcpServer = server.NewMCPServer(
		"skim",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
	)

	s.registerTools()
	s.registerResources()

	return s
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
