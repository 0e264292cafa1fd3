// Package mcp serves the assessment workflow over the Model Context Protocol.
package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-assess/pkg/services"
)

// Server wraps the mcp-go MCPServer.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates an MCP server whose tool calls are written to the audit log.
func NewServer(name, version string, logger *zap.Logger) *Server {
	audit := NewAuditLogger(logger)
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithHooks(audit.Hooks()),
		server.WithRecovery(),
	)

	return &Server{
		mcp:    mcpServer,
		logger: logger.Named("mcp"),
	}
}

// NewAssessmentServer creates a server with every assessment tool registered.
func NewAssessmentServer(version string, svc services.AssessmentService, health tools.HealthInfo, logger *zap.Logger) *Server {
	s := NewServer("ekaya-assess", version, logger)
	deps := &tools.AssessmentToolDeps{Service: svc, Logger: s.logger}
	tools.RegisterAssessmentTools(s.mcp, deps)
	tools.RegisterReportTools(s.mcp, deps)
	health.Version = version
	tools.RegisterHealthTool(s.mcp, health)
	return s
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}

// NewStreamableHTTPServer creates an HTTP transport for this server. The
// router mounts it, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// ServeStdio serves the protocol on stdin and stdout until ctx is done.
// Logs must go to stderr while this runs.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio")
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}
