package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
)

// MCPServer runs the gateway's MCP tools over stdio. It satisfies the
// gateway's Server interface so the coordinator can start it.
type MCPServer struct {
	*server.MCPServer
}

func NewMCPServer(name, version string) *MCPServer {
	return &MCPServer{MCPServer: server.NewMCPServer(name, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)}
}

func (s *MCPServer) Start() error {
	slog.Info("Started stdio MCP server")
	defer func() {
		slog.Info("Shut down stdio MCP server")
	}()
	return server.ServeStdio(s.MCPServer)
}
